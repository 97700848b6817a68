package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ishan3299/OpenBDR/internal/telemetry/partition"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// DefaultMaxFileSize is the size-based rotation threshold.
const DefaultMaxFileSize = 50 * 1024 * 1024

// flushEvery is how many appended events may accumulate before an fsync.
const flushEvery = 10

// WriterOptions configures the rotating partition writer.
type WriterOptions struct {
	LogDir      string
	StatePath   string
	ConfigPath  string
	MaxFileSize int64
	Logger      log.Logger

	// Now is the partition clock; tests pin it.
	Now func() time.Time
}

// hostConfig is the persisted SET_CONFIG state: a redirected log directory
// survives host restarts.
type hostConfig struct {
	LogDir string `json:"logDir"`
}

func loadHostConfig(path string) (hostConfig, error) {
	var cfg hostConfig
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("host: read config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return hostConfig{}, fmt.Errorf("host: decode config: %w", err)
	}
	return cfg, nil
}

func saveHostConfig(path string, cfg hostConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("host: encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("host: config dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("host: write config: %w", err)
	}
	return nil
}

// Writer appends JSONL events under Hive-style hour partitions, rotating on
// partition change and on file size, and persists its position for crash
// recovery.
type Writer struct {
	logger      log.Logger
	statePath   string
	configPath  string
	maxFileSize int64
	now         func() time.Time

	mu      sync.Mutex
	logDir  string
	state   writerState
	fh      *os.File
	pending int
}

// NewWriter loads persisted state and, when the saved file still exists in
// the current partition, reopens it for append so the sequence continues.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.LogDir == "" {
		return nil, fmt.Errorf("host: log dir is required")
	}
	if opts.StatePath == "" {
		opts.StatePath = filepath.Join(filepath.Dir(opts.LogDir), "state.json")
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = filepath.Join(filepath.Dir(opts.StatePath), "config.json")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}

	st, err := loadState(opts.StatePath)
	if err != nil {
		return nil, err
	}
	hcfg, err := loadHostConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logDir := opts.LogDir
	if hcfg.LogDir != "" {
		logDir = hcfg.LogDir
	}
	w := &Writer{
		logger:      logger.WithComponent("host.writer"),
		statePath:   opts.StatePath,
		configPath:  opts.ConfigPath,
		maxFileSize: opts.MaxFileSize,
		now:         opts.Now,
		logDir:      logDir,
		state:       st,
	}

	if st.CurrentFile != "" && st.LastPartition == partition.Key(w.now()) {
		if info, err := os.Stat(st.CurrentFile); err == nil {
			fh, err := os.OpenFile(st.CurrentFile, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("host: resume %s: %w", st.CurrentFile, err)
			}
			w.fh = fh
			w.state.CurrentSize = info.Size()
			w.logger.Info("resumed partition file",
				log.Str("file", st.CurrentFile),
				log.Int64("size", info.Size()))
		}
	}
	return w, nil
}

// WriteEvent appends one event line, rotating first when the partition
// changed or the current file passed the size threshold.
func (w *Writer) WriteEvent(ev map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(ev)
}

// WriteBatch appends all events and fsyncs once at the end.
func (w *Writer) WriteBatch(events []map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ev := range events {
		if err := w.writeLocked(ev); err != nil {
			return err
		}
	}
	return w.flushLocked()
}

func (w *Writer) writeLocked(ev map[string]any) error {
	if err := w.checkRotationLocked(); err != nil {
		return err
	}
	if err := w.ensureFileLocked(); err != nil {
		return err
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("host: encode event: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.fh.Write(line); err != nil {
		return fmt.Errorf("host: append event: %w", err)
	}
	w.state.CurrentSize += int64(len(line))
	if id, ok := ev["eventId"].(string); ok {
		w.state.LastEventID = id
	}
	w.pending++
	if w.pending >= flushEvery {
		return w.flushLocked()
	}
	return nil
}

func (w *Writer) checkRotationLocked() error {
	key := partition.Key(w.now())
	if w.state.LastPartition != "" && w.state.LastPartition != key {
		return w.rotateLocked("time")
	}
	if w.fh != nil && w.state.CurrentSize >= w.maxFileSize {
		return w.rotateLocked("size")
	}
	return nil
}

// rotateLocked closes the current file and points at the next one: sequence 1
// in a fresh partition, next sequence inside the same partition.
func (w *Writer) rotateLocked(reason string) error {
	if w.fh != nil {
		w.fh.Sync()
		w.fh.Close()
		w.fh = nil
	}
	key := partition.Key(w.now())
	if w.state.LastPartition != key {
		w.state.FileSequence = 1
		w.state.LastPartition = key
	} else {
		w.state.FileSequence++
	}
	if err := w.openCurrentLocked(); err != nil {
		return err
	}
	w.logger.Info("rotated partition file",
		log.Str("reason", reason),
		log.Str("file", w.state.CurrentFile))
	return saveState(w.statePath, w.state, w.now())
}

func (w *Writer) ensureFileLocked() error {
	if w.fh != nil {
		return nil
	}
	w.state.LastPartition = partition.Key(w.now())
	if err := w.openCurrentLocked(); err != nil {
		return err
	}
	return saveState(w.statePath, w.state, w.now())
}

func (w *Writer) openCurrentLocked() error {
	name := partition.Filename(w.logDir, w.now(), w.state.FileSequence)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("host: partition dir: %w", err)
	}
	fh, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("host: open %s: %w", name, err)
	}
	size := int64(0)
	if info, err := fh.Stat(); err == nil {
		size = info.Size()
	}
	w.fh = fh
	w.state.CurrentFile = name
	w.state.CurrentSize = size
	return nil
}

// Flush fsyncs the current file and persists state.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if w.fh != nil {
		if err := w.fh.Sync(); err != nil {
			return fmt.Errorf("host: fsync: %w", err)
		}
	}
	w.pending = 0
	return saveState(w.statePath, w.state, w.now())
}

// Rotate forces a new file regardless of thresholds.
func (w *Writer) Rotate(reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked(reason)
}

// SetLogDir redirects output, persists the choice, and rotates into the new
// directory.
func (w *Writer) SetLogDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logDir = dir
	if err := saveHostConfig(w.configPath, hostConfig{LogDir: dir}); err != nil {
		return err
	}
	return w.rotateLocked("config_change")
}

// Status reports the writer's position for GET_STATUS.
func (w *Writer) Status() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]any{
		"logDir":           w.logDir,
		"currentFile":      w.state.CurrentFile,
		"currentSize":      w.state.CurrentSize,
		"currentSizeMB":    float64(w.state.CurrentSize) / 1024 / 1024,
		"currentPartition": partition.Path(w.now()),
		"fileSequence":     w.state.FileSequence,
		"lastEventId":      w.state.LastEventID,
	}
}

// Close flushes, persists state, and releases the file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fh != nil {
		w.fh.Sync()
		w.fh.Close()
		w.fh = nil
	}
	w.pending = 0
	return saveState(w.statePath, w.state, w.now())
}
