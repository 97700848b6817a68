package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays OPENBDR_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("OPENBDR_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("OPENBDR_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("OPENBDR_SINK"); v != "" {
		cfg.Sink = v
	}
	if v := os.Getenv("OPENBDR_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("OPENBDR_AUTO_FLUSH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoFlush = b
		}
	}
	if v := os.Getenv("OPENBDR_SIZE_THRESHOLD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.SizeThresholdBytes = n
		}
	}
	if v := os.Getenv("OPENBDR_FLUSH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.FlushInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("OPENBDR_FILTER"); v != "" {
		cfg.Filter = v
	}
	if v := os.Getenv("OPENBDR_OFFLINE_BUFFER_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OfflineBufferCap = n
		}
	}
	if v := os.Getenv("OPENBDR_CONNECT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.ConnectTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("OPENBDR_RESPONSE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.ResponseTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("OPENBDR_CONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ConnectAttempts = n
		}
	}
}
