// Package log provides OpenBDR's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Formatters (text, JSON) and outputs
// (console, file, null) are pluggable so the collector, the native host, and
// the CLI can share one logging pipeline with different destinations.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("flush"))
//	l.Info("exported batch", log.Str("file", name), log.Int("events", n))
//
// Use ApplyConfig to build a logger from a declarative Config. To integrate
// with libraries that log through the standard library (Pebble does), use
// RedirectStdLog.
package log
