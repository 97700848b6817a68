// Package id generates event identifiers for the telemetry store.
//
// An event id is "{ms:012x}{seq:05x}-{rand}": a millisecond timestamp and a
// per-process sequence in fixed-width hex, plus a random suffix. The
// fixed-width prefix makes ids lexicographically ordered by creation time, so
// the store's key order is the insertion order; the random suffix keeps ids
// unique across process restarts within the same millisecond.
package id

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NowMs returns current time in milliseconds since Unix epoch. Overridable in tests.
var NowMs = func() int64 { return time.Now().UnixMilli() }

const seqMax = 1<<20 - 1

// Generator produces monotonically increasing event ids per process.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint32
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new event id. If the clock goes backwards it pins to the
// last seen millisecond and keeps incrementing the sequence, so ids never
// regress. If the sequence saturates within one millisecond it waits for the
// next millisecond.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		if g.seq == seqMax {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.seq = 0
		} else {
			g.seq++
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	var b strings.Builder
	b.Grow(12 + 5 + 1 + 8)
	writeHex(&b, uint64(ms), 12)
	writeHex(&b, uint64(g.seq), 5)
	b.WriteByte('-')
	b.WriteString(uuid.NewString()[:8])
	return b.String()
}

func writeHex(b *strings.Builder, v uint64, width int) {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = hexdigits[v&0x0f]
		v >>= 4
	}
	b.Write(buf)
}
