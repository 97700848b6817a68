// Package runtime wires storage, config, transport, and the telemetry
// facade into a single-node collector instance. It exposes Open/Close,
// basic health checks, and the facade higher-level surfaces serve from.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	rt.Service().Log(context.Background(), "dom.click", nil, nil)
package runtime
