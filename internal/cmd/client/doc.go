// Package client provides the `openbdr` command-line client.
//
// The CLI talks to a running collector's HTTP endpoint to log events,
// inspect buffer stats, trigger flushes, and change configuration from a
// terminal. It is primarily intended for developers and operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it defaults
// to http://127.0.0.1:8480 and can be overridden with OPENBDR_HTTP.
//
// Usage
//
//	openbdr log --type dom.click --payload '{"selector":"#buy"}'
//
//	openbdr stats
//
//	openbdr flush
//
//	openbdr clear --confirm
//
//	openbdr config get
//	openbdr config set --size-threshold 10485760 --auto-flush=true
//	openbdr config set --filter 'category == "network"'
package client
