package transport

import "github.com/ishan3299/OpenBDR/internal/telemetry/event"

// offlineBuffer is a capped FIFO of events awaiting a live channel. When
// full, the oldest entry is dropped to admit the newest. Callers hold the
// client mutex; the buffer itself is not synchronized.
type offlineBuffer struct {
	cap     int
	events  []event.Event
	dropped uint64
}

func newOfflineBuffer(capacity int) *offlineBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &offlineBuffer{cap: capacity}
}

func (b *offlineBuffer) push(ev event.Event) {
	if len(b.events) >= b.cap {
		drop := len(b.events) - b.cap + 1
		b.events = append(b.events[:0], b.events[drop:]...)
		b.dropped += uint64(drop)
	}
	b.events = append(b.events, ev)
}

// drain hands back the buffered events in arrival order and empties the buffer.
func (b *offlineBuffer) drain() []event.Event {
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

func (b *offlineBuffer) len() int { return len(b.events) }
