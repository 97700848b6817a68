package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// State is the client's view of the channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned by operations that require a live channel.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrResponseTimeout is returned when the host does not answer in time.
	ErrResponseTimeout = errors.New("transport: response timeout")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: client closed")
)

// Dialer opens the byte stream to the host.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// UnixDialer dials the host's Unix domain socket.
func UnixDialer(path string) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}

// Options configures a Client. Zero values take the documented defaults.
type Options struct {
	Dial            Dialer
	Logger          log.Logger
	SessionMeta     map[string]any
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	Retry           RetryPolicy
	BufferCap       int

	// Sleep is the reconnect wait; tests inject a no-op.
	Sleep func(time.Duration)
}

// pendingReply carries one correlated response to its waiter. Each waiter
// expires its own entry on timeout, so the map never accumulates orphans.
type pendingReply struct {
	ch chan Envelope
}

// Client owns the channel to the native writer host: connection lifecycle,
// request/response correlation, bounded reconnection, and offline buffering.
type Client struct {
	opts   Options
	logger log.Logger

	mu         sync.Mutex
	state      State
	conn       *Conn
	pending    map[string]*pendingReply
	buffer     *offlineBuffer
	closed     bool
	reconnects uint64

	wg sync.WaitGroup
}

// NewClient builds a client; Connect establishes the channel.
func NewClient(opts Options) (*Client, error) {
	if opts.Dial == nil {
		return nil, errors.New("transport: dialer is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 5 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	return &Client{
		opts:    opts,
		logger:  logger.WithComponent("transport.client"),
		pending: make(map[string]*pendingReply),
		buffer:  newOfflineBuffer(opts.BufferCap),
	}, nil
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// Connect dials the host, verifies it with a PING handshake, announces the
// session, and drains any offline backlog as a single batch.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		// Connected, or another caller (the reconnect loop) is mid-dial.
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	rwc, err := c.opts.Dial(dialCtx)
	cancel()
	if err != nil {
		c.setDisconnected()
		return fmt.Errorf("transport: dial: %w", err)
	}
	conn := NewConn(rwc)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn)

	resp, err := c.request(ctx, TypePing, nil)
	if err == nil && !resp.Bool("pong") {
		// A correlated reply is not enough: the host must prove liveness.
		err = errors.New("ping reply missing pong")
	}
	if err != nil {
		c.mu.Lock()
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport: handshake: %w", err)
	}

	c.mu.Lock()
	c.state = StateConnected
	backlog := c.buffer.drain()
	c.mu.Unlock()
	c.logger.Info("connected to host", log.Int("backlog", len(backlog)))

	if _, err := c.request(ctx, TypeSessionStart, map[string]any{"metadata": c.opts.SessionMeta}); err != nil {
		c.logger.Warn("session start not acknowledged", log.Err(err))
	}
	if len(backlog) > 0 {
		if err := c.deliver(ctx, backlog); err != nil {
			c.logger.Warn("backlog delivery failed, re-buffering", log.Err(err), log.Int("events", len(backlog)))
			c.mu.Lock()
			for _, ev := range backlog {
				c.buffer.push(ev)
			}
			c.mu.Unlock()
		}
	}
	return nil
}

// LogEvent hands one event to the host. Failure never surfaces: events are
// placed in the offline buffer (exactly once) and resent on reconnect.
func (c *Client) LogEvent(ctx context.Context, ev event.Event) {
	c.mu.Lock()
	if c.closed || c.state != StateConnected {
		c.buffer.push(ev)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if _, err := c.request(ctx, TypeLogEvent, map[string]any{"event": ev}); err != nil {
		c.logger.Debug("event delivery failed, buffering", log.Err(err), log.Str("event_id", ev.EventID))
		c.mu.Lock()
		c.buffer.push(ev)
		c.mu.Unlock()
	}
}

// DeliverBatch sends a flush batch and waits for the host's acknowledgment.
// Unlike LogEvent, the error surfaces so the caller can retain its buffer.
func (c *Client) DeliverBatch(ctx context.Context, events []event.Event) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()
	return c.deliver(ctx, events)
}

func (c *Client) deliver(ctx context.Context, events []event.Event) error {
	resp, err := c.request(ctx, TypeLogBatch, map[string]any{"events": events})
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("transport: host rejected batch: %s", resp.Str("error"))
	}
	return nil
}

// Status queries the host's writer status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	connected := c.state == StateConnected && !c.closed
	c.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}
	resp, err := c.request(ctx, TypeGetStatus, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Flush asks the host to rotate its current file.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	connected := c.state == StateConnected && !c.closed
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	resp, err := c.request(ctx, TypeFlush, nil)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("transport: host flush failed: %s", resp.Str("error"))
	}
	return nil
}

// Stats describes the client for the stats surface.
type Stats struct {
	State      string `json:"state"`
	Buffered   int    `json:"buffered"`
	Dropped    uint64 `json:"dropped"`
	Reconnects uint64 `json:"reconnects"`
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:      c.state.String(),
		Buffered:   c.buffer.len(),
		Dropped:    c.buffer.dropped,
		Reconnects: c.reconnects,
	}
}

// Close drains the backlog when possible, announces session end, and tears
// down the channel. Further operations fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	connected := c.state == StateConnected
	backlog := c.buffer.drain()
	c.mu.Unlock()

	if connected && conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ResponseTimeout)
		if len(backlog) > 0 {
			if err := c.deliver(ctx, backlog); err != nil {
				c.logger.Warn("backlog lost at shutdown", log.Err(err), log.Int("events", len(backlog)))
			}
		}
		if _, err := c.request(ctx, TypeSessionEnd, nil); err != nil {
			c.logger.Debug("session end not acknowledged", log.Err(err))
		}
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.mu.Lock()
	c.state = StateDisconnected
	c.failPending(ErrClosed)
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// request sends one correlated envelope and waits for the matching response.
func (c *Client) request(ctx context.Context, msgType string, body map[string]any) (Envelope, error) {
	id := uuid.NewString()
	reply := &pendingReply{ch: make(chan Envelope, 1)}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Envelope{}, ErrNotConnected
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := conn.Write(Envelope{Type: msgType, ID: id, Body: body}); err != nil {
		return Envelope{}, err
	}

	timer := time.NewTimer(c.opts.ResponseTimeout)
	defer timer.Stop()
	select {
	case resp := <-reply.ch:
		if errStr := resp.Str("error"); errStr != "" && !resp.Success() && resp.Type == "" {
			return resp, fmt.Errorf("transport: host error: %s", errStr)
		}
		return resp, nil
	case <-timer.C:
		return Envelope{}, ErrResponseTimeout
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// readLoop dispatches responses by correlation id. Arrival order does not
// matter; each response finds its waiter through the pending map.
func (c *Client) readLoop(conn *Conn) {
	defer c.wg.Done()
	for {
		env, err := conn.Read()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		if env.ID == "" {
			c.logger.Debug("uncorrelated message from host", log.Str("type", env.Type))
			continue
		}
		c.mu.Lock()
		reply, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			reply.ch <- env
		}
	}
}

// handleDisconnect transitions to Disconnected and starts a bounded
// reconnect loop, unless the drop belongs to a superseded connection.
func (c *Client) handleDisconnect(conn *Conn, cause error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.failPending(ErrNotConnected)
	c.mu.Unlock()
	conn.Close()

	c.logger.Warn("host channel dropped", log.Err(cause))
	c.wg.Add(1)
	go c.reconnectLoop()
}

// failPending wakes all outstanding waiters. Caller holds c.mu.
func (c *Client) failPending(err error) {
	for id, reply := range c.pending {
		delete(c.pending, id)
		reply.ch <- Envelope{Body: map[string]any{"success": false, "error": err.Error()}}
	}
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	policy := c.opts.Retry
	for attempt := uint32(1); attempt <= policy.MaxAttempts; attempt++ {
		c.opts.Sleep(policy.Delay(attempt))
		c.mu.Lock()
		if c.closed || c.state == StateConnected {
			c.mu.Unlock()
			return
		}
		c.reconnects++
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout+c.opts.ResponseTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("reconnect attempt failed",
			log.Uint64("attempt", uint64(attempt)),
			log.Uint64("max_attempts", uint64(policy.MaxAttempts)),
			log.Err(err))
	}
	c.logger.Error("reconnect attempts exhausted, buffering offline")
}
