package host

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ishan3299/OpenBDR/internal/telemetry/partition"
	"github.com/ishan3299/OpenBDR/internal/transport"
)

// startTestHost serves a host over a pipe and returns the client-side conn.
func startTestHost(t *testing.T, dir string, clock *time.Time) *transport.Conn {
	t.Helper()
	w := newTestWriter(t, dir, 0, clock)
	h := New(w, testLogger())
	h.now = func() time.Time { return *clock }

	local, remote := net.Pipe()
	t.Cleanup(func() { local.Close(); remote.Close() })
	go h.Serve(context.Background(), remote)
	return transport.NewConn(local)
}

func roundTrip(t *testing.T, conn *transport.Conn, env transport.Envelope) transport.Envelope {
	t.Helper()
	if err := conn.Write(env); err != nil {
		t.Fatalf("write %s: %v", env.Type, err)
	}
	resp, err := conn.Read()
	if err != nil {
		t.Fatalf("read %s reply: %v", env.Type, err)
	}
	if resp.ID != env.ID {
		t.Fatalf("reply id = %q, want %q", resp.ID, env.ID)
	}
	return resp
}

func TestPingPong(t *testing.T) {
	clock := hourOne
	conn := startTestHost(t, t.TempDir(), &clock)

	resp := roundTrip(t, conn, transport.Envelope{Type: transport.TypePing, ID: "p1"})
	if !resp.Success() || !resp.Bool("pong") {
		t.Fatalf("ping reply: %v", resp.Body)
	}
}

func TestLogEventAppendsLine(t *testing.T) {
	dir := t.TempDir()
	clock := hourOne
	conn := startTestHost(t, dir, &clock)

	resp := roundTrip(t, conn, transport.Envelope{Type: transport.TypeLogEvent, ID: "1", Body: map[string]any{
		"event": map[string]any{"eventId": "e1", "eventType": "dom.click"},
	}})
	if !resp.Success() || resp.Str("eventId") != "e1" {
		t.Fatalf("log event reply: %v", resp.Body)
	}
	roundTrip(t, conn, transport.Envelope{Type: transport.TypeFlush, ID: "2"})

	file := partition.Filename(filepath.Join(dir, "logs"), clock, 1)
	if lines := readLines(t, file); len(lines) != 1 {
		t.Fatalf("file lines = %d, want 1", len(lines))
	}
}

func TestLogBatchReportsCount(t *testing.T) {
	dir := t.TempDir()
	clock := hourOne
	conn := startTestHost(t, dir, &clock)

	resp := roundTrip(t, conn, transport.Envelope{Type: transport.TypeLogBatch, ID: "b", Body: map[string]any{
		"events": []any{
			map[string]any{"eventId": "e1"},
			map[string]any{"eventId": "e2"},
		},
	}})
	if !resp.Success() || resp.Body["count"] != 2.0 {
		t.Fatalf("batch reply: %v", resp.Body)
	}

	file := partition.Filename(filepath.Join(dir, "logs"), clock, 1)
	if lines := readLines(t, file); len(lines) != 2 {
		t.Fatalf("file lines = %d, want 2", len(lines))
	}
}

func TestGetStatusFields(t *testing.T) {
	clock := hourOne
	conn := startTestHost(t, t.TempDir(), &clock)

	roundTrip(t, conn, transport.Envelope{Type: transport.TypeLogEvent, ID: "1", Body: map[string]any{
		"event": map[string]any{"eventId": "e1"},
	}})
	resp := roundTrip(t, conn, transport.Envelope{Type: transport.TypeGetStatus, ID: "s"})
	if !resp.Success() || !resp.Bool("connected") {
		t.Fatalf("status reply: %v", resp.Body)
	}
	if resp.Str("lastEventId") != "e1" {
		t.Fatalf("lastEventId = %q", resp.Str("lastEventId"))
	}
	if resp.Str("currentPartition") != "year=2026/month=03/day=14/hour=09" {
		t.Fatalf("currentPartition = %q", resp.Str("currentPartition"))
	}
}

func TestUnknownTypeFailsSafely(t *testing.T) {
	clock := hourOne
	conn := startTestHost(t, t.TempDir(), &clock)

	resp := roundTrip(t, conn, transport.Envelope{Type: "BOGUS", ID: "x"})
	if resp.Success() {
		t.Fatalf("unknown type must not succeed")
	}
	if resp.Str("error") == "" {
		t.Fatalf("expected error string")
	}

	// The loop must survive the bad message.
	resp = roundTrip(t, conn, transport.Envelope{Type: transport.TypePing, ID: "y"})
	if !resp.Success() {
		t.Fatalf("host stopped serving after unknown type")
	}
}

func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	clock := hourOne
	conn := startTestHost(t, dir, &clock)

	resp := roundTrip(t, conn, transport.Envelope{Type: transport.TypeSessionStart, ID: "1", Body: map[string]any{
		"metadata": map[string]any{"hostname": "test"},
	}})
	if !resp.Success() || resp.Str("file") == "" {
		t.Fatalf("session start reply: %v", resp.Body)
	}

	resp = roundTrip(t, conn, transport.Envelope{Type: transport.TypeSessionEnd, ID: "2"})
	if !resp.Success() {
		t.Fatalf("session end reply: %v", resp.Body)
	}

	file := partition.Filename(filepath.Join(dir, "logs"), clock, 1)
	lines := readLines(t, file)
	if len(lines) != 2 {
		t.Fatalf("session events = %d lines, want 2", len(lines))
	}
}

func TestUnixSocketServe(t *testing.T) {
	dir := t.TempDir()
	clock := hourOne
	w := newTestWriter(t, dir, 0, &clock)
	h := New(w, testLogger())

	socket := filepath.Join(dir, "host.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ListenAndServe(ctx, socket) }()
	t.Cleanup(cancel)

	var nc net.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		nc, err = net.Dial("unix", socket)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	t.Cleanup(func() { nc.Close() })

	conn := transport.NewConn(nc)
	resp := roundTrip(t, conn, transport.Envelope{Type: transport.TypePing, ID: "p"})
	if !resp.Success() {
		t.Fatalf("ping over socket: %v", resp.Body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop")
	}
}
