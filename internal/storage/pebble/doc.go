// Package pebblestore wraps a Pebble database for the telemetry collector.
//
// It pins the fsync policy in one place, exposes batch commits so the event
// store can update records and accounting metadata atomically, and provides
// the prefix-scan and range-delete primitives the buffered-event keyspace
// relies on.
package pebblestore
