// Package config holds the collector's process configuration: data and log
// directories, listen addresses, flush policy defaults, and native transport
// settings. Values load from a JSON or YAML file, then OPENBDR_* environment
// variables overlay on top.
//
// This is the bootstrap configuration. The runtime configuration the UI can
// mutate (output directory, auto-flush, threshold, capture filter) lives in
// the event store's persisted config record and is seeded from these values
// on first start.
package config
