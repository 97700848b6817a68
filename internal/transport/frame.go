package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds a single framed message. A flush batch at the default
// 50MB threshold fits with headroom.
const MaxFrameSize = 64 << 20

// Conn frames envelopes over a byte stream: 4-byte little-endian length
// prefix, then the JSON envelope. Writes are serialized; reads are expected
// from a single reader goroutine.
type Conn struct {
	rwc io.ReadWriteCloser
	wmu sync.Mutex
}

// NewConn wraps a byte stream (Unix socket, pipe, stdio).
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{rwc: rwc}
}

// Write frames and sends one envelope.
func (c *Conn) Write(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("transport: frame too large: %d bytes", len(payload))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.rwc.Write(hdr[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if _, err := c.rwc.Write(payload); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Read blocks for the next envelope.
func (c *Conn) Read() (Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.rwc, hdr[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return Envelope{}, fmt.Errorf("transport: frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.rwc, payload); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("transport: decode frame: %w", err)
	}
	return env, nil
}

// Close closes the underlying stream.
func (c *Conn) Close() error { return c.rwc.Close() }
