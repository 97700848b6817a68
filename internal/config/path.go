package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory based on the host OS.
// It prefers standard locations when available and falls back to a dotdir
// in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "openbdr")
	}

	// macOS: ~/Library/Application Support/OpenBDR
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "OpenBDR")
	}

	// Windows: %USERPROFILE%/AppData/Local/OpenBDR
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "OpenBDR")
	}

	// Fallback: ~/.openbdr
	return filepath.Join(homeDir, ".openbdr")
}

// DefaultOutputDir is where exported JSONL partitions land by default.
func DefaultOutputDir() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// DefaultSocketPath is the Unix socket the native writer host serves on.
func DefaultSocketPath() string {
	return filepath.Join(DefaultDataDir(), "host.sock")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
