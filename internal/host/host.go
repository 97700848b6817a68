// Package host implements the native writer host: the durable end of the
// framed-JSON channel. It appends delivered events as JSONL under Hive-style
// hour partitions with size- and time-based rotation, and answers the
// control messages (status, config, flush) the client sends.
package host

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ishan3299/OpenBDR/internal/transport"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// Host serves the writer over one or more framed channels.
type Host struct {
	writer *Writer
	logger log.Logger
	now    func() time.Time
}

// New wraps a writer. The clock is injectable for tests.
func New(writer *Writer, logger log.Logger) *Host {
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	return &Host{writer: writer, logger: logger.WithComponent("host"), now: time.Now}
}

// Handle processes one request and returns the response body. Handler errors
// are folded into {"success": false, "error": ...}; they never kill the
// serving loop.
func (h *Host) Handle(env transport.Envelope) map[string]any {
	body, err := h.dispatch(env)
	if err != nil {
		h.logger.Warn("message failed", log.Str("type", env.Type), log.Err(err))
		return map[string]any{"success": false, "error": err.Error()}
	}
	return body
}

func (h *Host) dispatch(env transport.Envelope) (map[string]any, error) {
	switch env.Type {
	case transport.TypePing:
		return map[string]any{"success": true, "pong": true}, nil

	case transport.TypeSessionStart:
		if err := h.writeSessionEvent("session.start", env.Body["metadata"]); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "file": h.writer.Status()["currentFile"]}, nil

	case transport.TypeSessionEnd:
		if err := h.writeSessionEvent("session.end", env.Body["metadata"]); err != nil {
			return nil, err
		}
		if err := h.writer.Flush(); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil

	case transport.TypeLogEvent:
		ev, ok := env.Body["event"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("host: LOG_EVENT without event object")
		}
		if err := h.writer.WriteEvent(ev); err != nil {
			return nil, err
		}
		id, _ := ev["eventId"].(string)
		return map[string]any{"success": true, "eventId": id}, nil

	case transport.TypeLogBatch:
		raw, ok := env.Body["events"].([]any)
		if !ok {
			return nil, fmt.Errorf("host: LOG_BATCH without events array")
		}
		events := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			ev, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("host: LOG_BATCH entry is not an object")
			}
			events = append(events, ev)
		}
		if err := h.writer.WriteBatch(events); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "count": len(events)}, nil

	case transport.TypeGetStatus:
		status := h.writer.Status()
		status["success"] = true
		status["connected"] = true
		return status, nil

	case transport.TypeSetConfig:
		cfg, _ := env.Body["config"].(map[string]any)
		if dir, ok := cfg["logDir"].(string); ok && dir != "" {
			if err := h.writer.SetLogDir(dir); err != nil {
				return nil, err
			}
		}
		return map[string]any{"success": true, "logDir": h.writer.Status()["logDir"]}, nil

	case transport.TypeFlush:
		if err := h.writer.Flush(); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil

	default:
		return nil, fmt.Errorf("host: unknown message type: %s", env.Type)
	}
}

func (h *Host) writeSessionEvent(eventType string, metadata any) error {
	now := h.now().UTC()
	payload, _ := metadata.(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	return h.writer.WriteEvent(map[string]any{
		"timestamp": now.Format(time.RFC3339Nano),
		"eventId":   fmt.Sprintf("session-%d", now.UnixMilli()),
		"eventType": eventType,
		"payload":   payload,
	})
}

// Serve answers requests on one framed channel until it closes or ctx ends.
func (h *Host) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := transport.NewConn(rwc)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		env, err := conn.Read()
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return err
		}
		resp := transport.Reply(env, h.Handle(env))
		if err := conn.Write(resp); err != nil {
			return err
		}
		if env.Type == transport.TypeSessionEnd {
			return nil
		}
	}
}

// ListenAndServe accepts framed channels on a Unix domain socket. A stale
// socket file from an earlier run is removed before listening.
func (h *Host) ListenAndServe(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("host: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("host: listen %s: %w", socketPath, err)
	}
	defer ln.Close()
	h.logger.Info("listening", log.Str("socket", socketPath))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("host: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Serve(ctx, conn); err != nil {
				h.logger.Warn("channel closed with error", log.Err(err))
			}
		}()
	}
}
