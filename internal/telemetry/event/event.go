// Package event defines the telemetry event record and its JSONL encoding.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event is a single browser-activity record. Events are immutable once
// created; the store only ever deletes them in bulk during a flush.
//
// The JSONL record is exactly these five fields, in this order.
type Event struct {
	Timestamp string         `json:"timestamp"`
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
}

// New builds an event stamped with the current UTC time. Payload fields must
// already be redacted by the producer.
func New(id, eventType string, payload, metadata map[string]any, now time.Time) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Event{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		EventID:   id,
		EventType: eventType,
		Payload:   payload,
		Metadata:  metadata,
	}
}

// Category returns the substring of EventType before the first dot, or the
// whole type when it has no dot.
func (e Event) Category() string {
	if i := strings.IndexByte(e.EventType, '.'); i >= 0 {
		return e.EventType[:i]
	}
	return e.EventType
}

// Encode serializes the event as a single compact JSON line (no newline).
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event: encode %s: %w", e.EventID, err)
	}
	return b, nil
}

// Decode parses a single JSON record back into an Event.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("event: decode: %w", err)
	}
	return e, nil
}

// EncodeJSONL serializes events one JSON object per line, newline-joined.
func EncodeJSONL(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	for i, e := range events {
		b, err := e.Encode()
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// SplitJSONL splits a JSONL payload back into raw per-event JSON lines,
// skipping empty lines.
func SplitJSONL(data []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
