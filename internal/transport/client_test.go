package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

func testEvent(i int) event.Event {
	return event.New(fmt.Sprintf("id-%04d", i), "dom.click", map[string]any{"n": i}, nil, time.Now())
}

// startHost runs a scripted host on the far side of a pipe.
func startHost(t *testing.T, rwc io.ReadWriteCloser, handle func(env Envelope, c *Conn)) {
	t.Helper()
	conn := NewConn(rwc)
	go func() {
		for {
			env, err := conn.Read()
			if err != nil {
				return
			}
			handle(env, conn)
		}
	}()
}

func ackAll(env Envelope, c *Conn) {
	body := map[string]any{"success": true}
	if env.Type == TypePing {
		body["pong"] = true
	}
	c.Write(Reply(env, body))
}

func newPipeClient(t *testing.T, opts Options) (*Client, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	opts.Dial = func(ctx context.Context) (io.ReadWriteCloser, error) { return local, nil }
	if opts.Logger == nil {
		opts.Logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	if opts.Sleep == nil {
		opts.Sleep = func(time.Duration) {}
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close(); local.Close(); remote.Close() })
	return c, remote
}

func TestConnectHandshake(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c, remote := newPipeClient(t, Options{SessionMeta: map[string]any{"hostname": "test"}})
	startHost(t, remote, func(env Envelope, conn *Conn) {
		mu.Lock()
		seen = append(seen, env.Type)
		mu.Unlock()
		ackAll(env, conn)
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := c.Stats().State; got != "connected" {
		t.Fatalf("state = %q, want connected", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != TypePing || seen[1] != TypeSessionStart {
		t.Fatalf("handshake sequence = %v", seen)
	}
}

func TestConnectRejectsPingReplyWithoutPong(t *testing.T) {
	c, remote := newPipeClient(t, Options{})
	startHost(t, remote, func(env Envelope, conn *Conn) {
		// Correlated ack, but no liveness marker.
		conn.Write(Reply(env, map[string]any{"success": true}))
	})

	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("connect must fail when the ping reply carries no pong")
	}
	if got := c.Stats().State; got != "disconnected" {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestConnectWhileConnectingDialsOnce(t *testing.T) {
	local, remote := net.Pipe()
	var dials atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	c, err := NewClient(Options{
		Logger: log.NewLogger(log.WithOutput(log.NewNullOutput())),
		Sleep:  func(time.Duration) {},
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			if dials.Add(1) == 1 {
				close(entered)
				<-release
			}
			return local, nil
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close(); local.Close(); remote.Close() })
	startHost(t, remote, ackAll)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()
	<-entered

	// A second caller racing the in-flight dial must not open another conn.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("racing connect: %v", err)
	}
	if got := dials.Load(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func TestLogEventTimeoutBuffersExactlyOnce(t *testing.T) {
	c, remote := newPipeClient(t, Options{ResponseTimeout: 50 * time.Millisecond})
	startHost(t, remote, func(env Envelope, conn *Conn) {
		if env.Type == TypeLogEvent {
			return // swallow: force a response timeout
		}
		ackAll(env, conn)
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.LogEvent(context.Background(), testEvent(1))

	st := c.Stats()
	if st.Buffered != 1 {
		t.Fatalf("buffered = %d, want exactly 1", st.Buffered)
	}
	if st.Dropped != 0 {
		t.Fatalf("dropped = %d, want 0", st.Dropped)
	}
}

func TestLogEventWhileDisconnectedBuffers(t *testing.T) {
	c, err := NewClient(Options{
		Dial:   func(ctx context.Context) (io.ReadWriteCloser, error) { return nil, errors.New("no host") },
		Logger: log.NewLogger(log.WithOutput(log.NewNullOutput())),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	for i := 0; i < 3; i++ {
		c.LogEvent(context.Background(), testEvent(i))
	}
	if got := c.Stats().Buffered; got != 3 {
		t.Fatalf("buffered = %d, want 3", got)
	}
}

func TestOfflineBufferRetainsNewest(t *testing.T) {
	b := newOfflineBuffer(1000)
	for i := 0; i < 1500; i++ {
		b.push(testEvent(i))
	}
	if b.len() != 1000 {
		t.Fatalf("len = %d, want 1000", b.len())
	}
	if b.dropped != 500 {
		t.Fatalf("dropped = %d, want 500", b.dropped)
	}
	events := b.drain()
	if events[0].EventID != "id-0500" {
		t.Fatalf("oldest retained = %s, want id-0500", events[0].EventID)
	}
	if events[len(events)-1].EventID != "id-1499" {
		t.Fatalf("newest retained = %s, want id-1499", events[len(events)-1].EventID)
	}
	if b.len() != 0 {
		t.Fatalf("drain must empty the buffer")
	}
}

func TestResponsesMatchedByIDNotArrival(t *testing.T) {
	var mu sync.Mutex
	var held *Envelope
	c, remote := newPipeClient(t, Options{ResponseTimeout: 2 * time.Second})
	startHost(t, remote, func(env Envelope, conn *Conn) {
		if env.Type != TypeGetStatus {
			ackAll(env, conn)
			return
		}
		// Hold the first status request, answer the second immediately,
		// then release the first. Replies arrive out of request order.
		mu.Lock()
		if held == nil {
			e := env
			held = &e
			mu.Unlock()
			return
		}
		first := *held
		held = nil
		mu.Unlock()
		conn.Write(Reply(env, map[string]any{"success": true, "tag": env.Str("tag")}))
		conn.Write(Reply(first, map[string]any{"success": true, "tag": first.Str("tag")}))
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	results := make(map[string]string)
	var rmu sync.Mutex
	var wg sync.WaitGroup
	for _, tag := range []string{"a", "b"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			resp, err := c.request(context.Background(), TypeGetStatus, map[string]any{"tag": tag})
			if err != nil {
				t.Errorf("request %s: %v", tag, err)
				return
			}
			rmu.Lock()
			results[tag] = resp.Str("tag")
			rmu.Unlock()
		}(tag)
		time.Sleep(20 * time.Millisecond) // deterministic arrival order at the host
	}
	wg.Wait()

	if results["a"] != "a" || results["b"] != "b" {
		t.Fatalf("correlation mismatch: %v", results)
	}
}

func TestDeliverBatch(t *testing.T) {
	var mu sync.Mutex
	var batchLen int
	c, remote := newPipeClient(t, Options{})
	startHost(t, remote, func(env Envelope, conn *Conn) {
		if env.Type == TypeLogBatch {
			mu.Lock()
			if events, ok := env.Body["events"].([]any); ok {
				batchLen = len(events)
			}
			mu.Unlock()
		}
		ackAll(env, conn)
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	batch := []event.Event{testEvent(1), testEvent(2), testEvent(3)}
	if err := c.DeliverBatch(context.Background(), batch); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if batchLen != 3 {
		t.Fatalf("host saw %d events, want 3", batchLen)
	}
}

func TestDeliverBatchNotConnected(t *testing.T) {
	c, err := NewClient(Options{
		Dial:   func(ctx context.Context) (io.ReadWriteCloser, error) { return nil, errors.New("no host") },
		Logger: log.NewLogger(log.WithOutput(log.NewNullOutput())),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.DeliverBatch(context.Background(), []event.Event{testEvent(1)}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestReconnectExhaustionBuffersOffline(t *testing.T) {
	local, remote := net.Pipe()
	var dialed atomic.Bool
	opts := Options{
		Logger:          log.NewLogger(log.WithOutput(log.NewNullOutput())),
		ResponseTimeout: 100 * time.Millisecond,
		Retry:           RetryPolicy{Type: BackoffNone, MaxAttempts: 3},
		Sleep:           func(time.Duration) {},
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			if dialed.Swap(true) {
				return nil, errors.New("host gone")
			}
			return local, nil
		},
	}
	c, err := NewClient(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close(); local.Close(); remote.Close() })
	startHost(t, remote, ackAll)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	remote.Close() // drop the channel

	deadline := time.Now().Add(2 * time.Second)
	for c.Stats().Reconnects < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	st := c.Stats()
	if st.Reconnects != 3 {
		t.Fatalf("reconnects = %d, want 3", st.Reconnects)
	}
	if st.State != "disconnected" {
		t.Fatalf("state = %q, want disconnected", st.State)
	}

	c.LogEvent(context.Background(), testEvent(1))
	if got := c.Stats().Buffered; got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
}
