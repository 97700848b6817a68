// Package transport implements the channel to the native writer host.
//
// The wire format is the host's native messaging framing: a 4-byte
// little-endian length prefix followed by one JSON envelope
// {type, _id?, ...}. The Client maintains the connection state machine
// (Disconnected -> Connecting -> Connected), correlates requests to
// responses by id, reconnects with bounded backoff after a drop, and
// buffers events in a capped FIFO while disconnected. No failure escapes
// the transport boundary into producer code paths; everything degrades to
// buffering or stats.
package transport
