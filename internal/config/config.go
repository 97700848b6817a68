package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default limits mirror the native host: 50MB size threshold, hourly flush.
const (
	DefaultSizeThresholdBytes = 50 * 1024 * 1024
	DefaultFlushInterval      = time.Hour
	DefaultOfflineBufferCap   = 1000
	DefaultConnectTimeout     = 5 * time.Second
	DefaultResponseTimeout    = 5 * time.Second
	DefaultConnectAttempts    = 3
)

// Sink strategy names accepted in configuration.
const (
	SinkLocal  = "local"
	SinkNative = "native"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// HTTPAddr is the admin/ingest API listen address.
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	// OutputDir is where exported JSONL partitions are written (local sink) or
	// the directory handed to the native host (native sink).
	OutputDir string `json:"outputDir" yaml:"outputDir"`
	// Sink selects the export strategy: "local" or "native".
	Sink string `json:"sink" yaml:"sink"`
	// SocketPath is the Unix socket the native writer host listens on.
	SocketPath string `json:"socketPath" yaml:"socketPath"`

	// AutoFlush enables threshold- and timer-driven flushes.
	AutoFlush bool `json:"autoFlush" yaml:"autoFlush"`
	// SizeThresholdBytes triggers a flush when the buffered serialized size
	// crosses it.
	SizeThresholdBytes int64 `json:"sizeThresholdBytes" yaml:"sizeThresholdBytes"`
	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`
	// Filter is an optional CEL capture-filter expression.
	Filter string `json:"filter" yaml:"filter"`

	// OfflineBufferCap bounds the transport's in-memory buffer while disconnected.
	OfflineBufferCap int `json:"offlineBufferCap" yaml:"offlineBufferCap"`
	// ConnectTimeout bounds the transport handshake.
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`
	// ResponseTimeout bounds each correlated request.
	ResponseTimeout time.Duration `json:"responseTimeout" yaml:"responseTimeout"`
	// ConnectAttempts bounds automatic reconnection after a disconnect.
	ConnectAttempts int `json:"connectAttempts" yaml:"connectAttempts"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:           ":8480",
		OutputDir:          DefaultOutputDir(),
		Sink:               SinkLocal,
		SocketPath:         DefaultSocketPath(),
		AutoFlush:          true,
		SizeThresholdBytes: DefaultSizeThresholdBytes,
		FlushInterval:      DefaultFlushInterval,
		OfflineBufferCap:   DefaultOfflineBufferCap,
		ConnectTimeout:     DefaultConnectTimeout,
		ResponseTimeout:    DefaultResponseTimeout,
		ConnectAttempts:    DefaultConnectAttempts,
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the collector cannot run with.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("config: outputDir must not be empty")
	}
	if c.Sink != SinkLocal && c.Sink != SinkNative {
		return fmt.Errorf("config: sink must be %q or %q, got %q", SinkLocal, SinkNative, c.Sink)
	}
	if c.SizeThresholdBytes <= 0 {
		return fmt.Errorf("config: sizeThresholdBytes must be positive")
	}
	if c.OfflineBufferCap <= 0 {
		return fmt.Errorf("config: offlineBufferCap must be positive")
	}
	return nil
}
