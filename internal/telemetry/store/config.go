package store

import (
	"encoding/json"
	"errors"
	"fmt"

	pebblestore "github.com/ishan3299/OpenBDR/internal/storage/pebble"
	"github.com/ishan3299/OpenBDR/internal/telemetry/partition"
)

// ErrNoConfig is returned by LoadConfig when no config record has been
// persisted yet.
var ErrNoConfig = errors.New("store: no config record")

// Config is the persisted runtime configuration record. It is loaded once at
// initialization, mutated through explicit setters on the facade, and saved
// after every mutation.
type Config struct {
	OutputDir          string          `json:"outputDir"`
	AutoFlush          bool            `json:"autoFlush"`
	SizeThresholdBytes int64           `json:"sizeThresholdBytes"`
	FlushIntervalMS    int64           `json:"flushIntervalMs"`
	Sink               string          `json:"sink"`
	Filter             string          `json:"filter"`
	Partition          partition.State `json:"partition"`
	// ClearPending marks that a post-export clear failed and must be retried
	// at next initialization.
	ClearPending bool `json:"clearPending"`
}

// LoadConfig reads the persisted config record.
func (s *Store) LoadConfig() (Config, error) {
	b, err := s.db.Get(keyConfig)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Config{}, ErrNoConfig
		}
		return Config{}, fmt.Errorf("store: load config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("store: decode config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config record.
func (s *Store) SaveConfig(cfg Config) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: encode config: %w", err)
	}
	if err := s.db.Set(keyConfig, b); err != nil {
		return fmt.Errorf("store: save config: %w", err)
	}
	return nil
}
