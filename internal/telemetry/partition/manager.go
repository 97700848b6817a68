package partition

import (
	"fmt"
	"sync"
	"time"
)

// State is the persisted partition position. It lives inside the event
// store's config record; the Manager delegates persistence to the owner via
// the persist callback.
type State struct {
	CurrentKey   string `json:"currentPartitionKey"`
	FileSequence int    `json:"fileSequence"`
}

// Manager tracks the open partition and its file sequence.
//
// Sequence numbers for a given partition key are monotonically increasing and
// never reused after a successful flush. A clock regression that lands in an
// earlier partition is treated like any other key change: it rolls over and
// resets the sequence (known limitation, same behavior as the native host).
type Manager struct {
	mu      sync.Mutex
	state   State
	persist func(State) error
}

// NewManager builds a Manager around a persisted state snapshot. persist is
// invoked after every state mutation.
func NewManager(state State, persist func(State) error) *Manager {
	if state.FileSequence < 1 {
		state.FileSequence = 1
	}
	return &Manager{state: state, persist: persist}
}

// CheckRollover compares now's partition key to the stored one. On any
// change (including the initial unset state) it resets the sequence to 1,
// records the new key, persists, and reports true. Call exactly once per
// flush, before computing the export filename.
func (m *Manager) CheckRollover(now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(now)
	if m.state.CurrentKey == key {
		return false, nil
	}
	m.state.CurrentKey = key
	m.state.FileSequence = 1
	if err := m.persist(m.state); err != nil {
		return true, fmt.Errorf("partition: persist rollover: %w", err)
	}
	return true, nil
}

// Filename returns the export path for the current sequence at instant now.
func (m *Manager) Filename(outputDir string, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Filename(outputDir, now, m.state.FileSequence)
}

// AdvanceSequence increments the file sequence and persists. Call only after
// a confirmed successful export.
func (m *Manager) AdvanceSequence() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.FileSequence++
	if err := m.persist(m.state); err != nil {
		return fmt.Errorf("partition: persist sequence: %w", err)
	}
	return nil
}

// Sequence returns the current file sequence.
func (m *Manager) Sequence() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.FileSequence
}

// CurrentKey returns the stored partition key ("" before the first flush).
func (m *Manager) CurrentKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentKey
}

// Snapshot returns a copy of the persisted state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
