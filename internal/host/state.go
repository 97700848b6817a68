package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// writerState survives host restarts so an interrupted hour can resume its
// file and sequence instead of clobbering earlier output.
type writerState struct {
	CurrentFile   string `json:"currentFile"`
	CurrentSize   int64  `json:"currentSize"`
	FileSequence  int    `json:"fileSequence"`
	LastPartition string `json:"lastPartition"`
	LastEventID   string `json:"lastEventId"`
	LastUpdated   string `json:"lastUpdated"`
}

func loadState(path string) (writerState, error) {
	st := writerState{FileSequence: 1}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("host: read state: %w", err)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return writerState{FileSequence: 1}, fmt.Errorf("host: decode state: %w", err)
	}
	if st.FileSequence < 1 {
		st.FileSequence = 1
	}
	return st, nil
}

// saveState writes atomically: tmp file then rename.
func saveState(path string, st writerState, now time.Time) error {
	st.LastUpdated = now.UTC().Format(time.RFC3339Nano)
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("host: encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("host: state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("host: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("host: commit state: %w", err)
	}
	return nil
}
