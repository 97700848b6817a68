// Package httpserver provides the admin/ingest REST surface: event ingest,
// stats, flush and clear triggers, and runtime configuration, as JSON
// endpoints over the telemetry facade.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8480")
package httpserver
