// Package store is the durable buffer for telemetry events, backed by
// Pebble. Events key by id (time-ordered, so iteration order is insertion
// order); a meta record carries running count and serialized-size accounting,
// updated in the same batch as each append so the invariant
// size == sum(len(serialized(e))) holds across crashes.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/ishan3299/OpenBDR/internal/storage/pebble"
	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	logpkg "github.com/ishan3299/OpenBDR/pkg/log"
)

// ErrDuplicateKey is returned when an appended event's id already exists.
var ErrDuplicateKey = errors.New("store: duplicate event id")

// Store owns buffered event lifetime. Append/Clear are mutually exclusive:
// no event appended during a clear is dropped or double-counted.
type Store struct {
	db     *pebblestore.DB
	logger logpkg.Logger

	mu    sync.Mutex
	count int64
	size  int64
}

// Open loads (or rebuilds) the accounting meta record and returns a Store.
func Open(db *pebblestore.DB, logger logpkg.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger.WithComponent("store")}
	meta, err := db.Get(keyMeta)
	switch {
	case err == nil && len(meta) >= 16:
		s.count = int64(binary.BigEndian.Uint64(meta[:8]))
		s.size = int64(binary.BigEndian.Uint64(meta[8:16]))
	case err == nil || errors.Is(err, pebblestore.ErrNotFound):
		// First open, meta lost, or meta truncated by a torn write:
		// recompute from the event records.
		if err := s.recompute(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("store: load meta: %w", err)
	}
	return s, nil
}

func (s *Store) recompute() error {
	var count, size int64
	err := s.db.ScanPrefix(keyEventPrefix, func(_, value []byte) error {
		count++
		size += int64(len(value))
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: recompute meta: %w", err)
	}
	s.count, s.size = count, size
	if count > 0 {
		s.logger.Info("rebuilt buffer accounting", logpkg.Int64("count", count), logpkg.Int64("bytes", size))
	}
	return nil
}

func encodeMeta(count, size int64) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], uint64(count))
	binary.BigEndian.PutUint64(b[8:16], uint64(size))
	return b[:]
}

// Append inserts a new event keyed by its id. The event record and the
// updated meta record commit in one batch. Returns ErrDuplicateKey when the
// id already exists.
func (s *Store) Append(ctx context.Context, ev event.Event) error {
	val, err := ev.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyEvent(ev.EventID)
	exists, err := s.db.Has(key)
	if err != nil {
		return fmt.Errorf("store: append %s: %w", ev.EventID, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, ev.EventID)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, val, nil); err != nil {
		return fmt.Errorf("store: append %s: %w", ev.EventID, err)
	}
	if err := b.Set(keyMeta, encodeMeta(s.count+1, s.size+int64(len(val))), nil); err != nil {
		return fmt.Errorf("store: append meta: %w", err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("store: append commit: %w", err)
	}
	s.count++
	s.size += int64(len(val))
	return nil
}

// Events returns every buffered event in insertion order. Used at flush time
// and for stats; not on the hot append path.
func (s *Store) Events(ctx context.Context) ([]event.Event, error) {
	var out []event.Event
	err := s.db.ScanPrefix(keyEventPrefix, func(_, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := event.Decode(value)
		if err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan events: %w", err)
	}
	return out, nil
}

// CategoryCounts tallies buffered events per event-type category.
func (s *Store) CategoryCounts(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	err := s.db.ScanPrefix(keyEventPrefix, func(_, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := event.Decode(value)
		if err != nil {
			return err
		}
		counts[ev.Category()]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: category counts: %w", err)
	}
	return counts, nil
}

// Count returns the number of buffered events.
func (s *Store) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Size returns the running serialized size of the buffer in bytes.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Clear removes every buffered event and resets accounting, in one batch.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := eventRange()
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(start, end, nil); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	if err := b.Set(keyMeta, encodeMeta(0, 0), nil); err != nil {
		return fmt.Errorf("store: clear meta: %w", err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("store: clear commit: %w", err)
	}
	s.count, s.size = 0, 0
	return nil
}
