// Package telemetry is the capture facade: the single entry point producers
// log through. It owns the durable buffer, the capture filter, flush
// triggers, and the stats surface. Logging never fails visibly; every
// degradation is absorbed into counters.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ishan3299/OpenBDR/internal/config"
	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/internal/telemetry/filter"
	"github.com/ishan3299/OpenBDR/internal/telemetry/flush"
	"github.com/ishan3299/OpenBDR/internal/telemetry/partition"
	"github.com/ishan3299/OpenBDR/internal/telemetry/sink"
	"github.com/ishan3299/OpenBDR/internal/telemetry/store"
	"github.com/ishan3299/OpenBDR/internal/transport"
	"github.com/ishan3299/OpenBDR/pkg/id"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// Options wires a Service.
type Options struct {
	Store  *store.Store
	Sink   sink.Sink
	Config config.Config
	Logger log.Logger

	// Client is set with the native sink; events are also streamed to the
	// host one at a time as they arrive.
	Client *transport.Client

	// Now is the clock used for event timestamps and partitioning; tests
	// pin it.
	Now func() time.Time
}

// Stats is the observability snapshot.
type Stats struct {
	BufferedEvents int64            `json:"bufferedEvents"`
	BufferedBytes  int64            `json:"bufferedBytes"`
	BufferedSize   string           `json:"bufferedSize"`
	Categories     map[string]int64 `json:"categories"`
	Partition      partition.State  `json:"partition"`
	Sink           string           `json:"sink"`
	AutoFlush      bool             `json:"autoFlush"`
	FilterEnabled  bool             `json:"filterEnabled"`
	Captured       uint64           `json:"captured"`
	Filtered       uint64           `json:"filtered"`
	Dropped        uint64           `json:"dropped"`
	ClearPending   bool             `json:"clearPending"`

	Transport *transport.Stats `json:"transport,omitempty"`
}

// ConfigPatch is a partial runtime reconfiguration. Nil fields keep their
// current value. The sink strategy is fixed for the process lifetime.
type ConfigPatch struct {
	OutputDir          *string `json:"outputDir,omitempty"`
	AutoFlush          *bool   `json:"autoFlush,omitempty"`
	SizeThresholdBytes *int64  `json:"sizeThresholdBytes,omitempty"`
	FlushIntervalMS    *int64  `json:"flushIntervalMs,omitempty"`
	Filter             *string `json:"filter,omitempty"`
}

// Service composes the store, filter, partition tracking, and flush
// orchestration behind one facade.
type Service struct {
	store  *store.Store
	sink   sink.Sink
	client *transport.Client
	logger log.Logger
	ids    *id.Generator
	now    func() time.Time

	orch *flush.Orchestrator
	pm   *partition.Manager

	mu     sync.RWMutex
	cfg    store.Config
	filter filter.Filter
	closed bool

	captured atomic.Uint64
	filtered atomic.Uint64
	dropped  atomic.Uint64
}

// NewService initializes the facade: loads (or seeds) the persisted config
// record, retries an interrupted post-export clear, compiles the capture
// filter, and builds the flush pipeline.
func NewService(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	logger = logger.WithComponent("telemetry")
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cfg, err := opts.Store.LoadConfig()
	if errors.Is(err, store.ErrNoConfig) {
		cfg = store.Config{
			OutputDir:          opts.Config.OutputDir,
			AutoFlush:          opts.Config.AutoFlush,
			SizeThresholdBytes: opts.Config.SizeThresholdBytes,
			FlushIntervalMS:    opts.Config.FlushInterval.Milliseconds(),
			Sink:               opts.Config.Sink,
			Filter:             opts.Config.Filter,
		}
		if err := opts.Store.SaveConfig(cfg); err != nil {
			return nil, err
		}
		logger.Info("seeded config record", log.Str("sink", cfg.Sink))
	} else if err != nil {
		return nil, err
	}

	if cfg.ClearPending {
		logger.Warn("retrying interrupted post-export clear")
		if err := opts.Store.Clear(context.Background()); err != nil {
			logger.Error("clear retry failed, exported events may flush twice", log.Err(err))
		} else {
			cfg.ClearPending = false
			if err := opts.Store.SaveConfig(cfg); err != nil {
				return nil, err
			}
		}
	}

	f, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &Service{
		store:  opts.Store,
		sink:   opts.Sink,
		client: opts.Client,
		logger: logger,
		ids:    id.NewGenerator(),
		now:    now,
		filter: f,
	}
	s.cfg = cfg

	s.pm = partition.NewManager(cfg.Partition, func(st partition.State) error {
		s.mu.Lock()
		s.cfg.Partition = st
		cfg := s.cfg
		s.mu.Unlock()
		return s.store.SaveConfig(cfg)
	})
	s.orch = flush.NewOrchestrator(flush.Options{
		Store:     opts.Store,
		Partition: s.pm,
		Sink:      opts.Sink,
		OutputDir: cfg.OutputDir,
		Logger:    logger,
		Now:       now,
		OnClearFailure: func(clearErr error) {
			s.mu.Lock()
			s.cfg.ClearPending = true
			cfg := s.cfg
			s.mu.Unlock()
			if err := s.store.SaveConfig(cfg); err != nil {
				s.logger.Error("marking clear-pending failed", log.Err(err))
			}
		},
	})
	return s, nil
}

// Start launches background work: the periodic flush loop and, with the
// native sink, the host connection. Both stop when ctx ends.
func (s *Service) Start(ctx context.Context) {
	s.mu.RLock()
	autoFlush := s.cfg.AutoFlush
	interval := time.Duration(s.cfg.FlushIntervalMS) * time.Millisecond
	s.mu.RUnlock()

	if autoFlush && interval > 0 {
		go s.orch.RunPeriodic(ctx, interval)
	}
	if s.client != nil {
		go func() {
			if err := s.client.Connect(ctx); err != nil {
				s.logger.Warn("host connection failed, buffering offline", log.Err(err))
			}
		}()
	}
}

// Log captures one event. It never returns an error: filtered and dropped
// events are absorbed into counters. The assigned event id is returned;
// admitted reports whether the event reached the buffer.
func (s *Service) Log(ctx context.Context, eventType string, payload, metadata map[string]any) (eventID string, admitted bool) {
	s.mu.RLock()
	f := s.filter
	closed := s.closed
	autoFlush := s.cfg.AutoFlush
	threshold := s.cfg.SizeThresholdBytes
	s.mu.RUnlock()
	if closed {
		s.dropped.Add(1)
		return "", false
	}

	ev := event.New(s.ids.Next(), eventType, payload, metadata, s.now())
	if !f.Admit(ev) {
		s.filtered.Add(1)
		return ev.EventID, false
	}

	if err := s.store.Append(ctx, ev); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("event dropped", log.Str("event_type", eventType), log.Err(err))
		return ev.EventID, false
	}
	s.captured.Add(1)

	if s.client != nil {
		go s.client.LogEvent(context.Background(), ev)
	}
	if autoFlush && s.store.Size() >= threshold {
		go func() {
			if _, err := s.orch.Flush(context.Background(), flush.ReasonThreshold); err != nil {
				s.logger.Debug("threshold flush failed", log.Err(err))
			}
		}()
	}
	return ev.EventID, true
}

// FlushNow drains the buffer through the sink.
func (s *Service) FlushNow(ctx context.Context) (flush.Result, error) {
	return s.orch.Flush(ctx, flush.ReasonManual)
}

// Clear discards all buffered events without exporting them.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// GetStats snapshots the buffer, partition position, and counters.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	categories, err := s.store.CategoryCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	cfg := s.cfg
	filterEnabled := s.filter.Enabled()
	s.mu.RUnlock()

	st := Stats{
		BufferedEvents: s.store.Count(),
		BufferedBytes:  s.store.Size(),
		BufferedSize:   humanize.IBytes(uint64(s.store.Size())),
		Categories:     categories,
		Partition:      s.pm.Snapshot(),
		Sink:           s.sink.Name(),
		AutoFlush:      cfg.AutoFlush,
		FilterEnabled:  filterEnabled,
		Captured:       s.captured.Load(),
		Filtered:       s.filtered.Load(),
		Dropped:        s.dropped.Load(),
		ClearPending:   cfg.ClearPending,
	}
	if s.client != nil {
		cs := s.client.Stats()
		st.Transport = &cs
	}
	return st, nil
}

// Config returns the active persisted configuration.
func (s *Service) Config() store.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig validates and applies a patch, persisting the updated record.
// On any validation failure nothing is applied.
func (s *Service) SetConfig(patch ConfigPatch) (store.Config, error) {
	if patch.OutputDir != nil && *patch.OutputDir == "" {
		return store.Config{}, fmt.Errorf("%w: outputDir must not be empty", ErrInvalidConfig)
	}
	if patch.SizeThresholdBytes != nil && *patch.SizeThresholdBytes <= 0 {
		return store.Config{}, fmt.Errorf("%w: sizeThresholdBytes must be positive", ErrInvalidConfig)
	}
	if patch.FlushIntervalMS != nil && *patch.FlushIntervalMS < 0 {
		return store.Config{}, fmt.Errorf("%w: flushIntervalMs must not be negative", ErrInvalidConfig)
	}
	var newFilter filter.Filter
	if patch.Filter != nil {
		f, err := filter.New(*patch.Filter)
		if err != nil {
			return store.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		newFilter = f
	}

	s.mu.Lock()
	if patch.OutputDir != nil {
		s.cfg.OutputDir = *patch.OutputDir
	}
	if patch.AutoFlush != nil {
		s.cfg.AutoFlush = *patch.AutoFlush
	}
	if patch.SizeThresholdBytes != nil {
		s.cfg.SizeThresholdBytes = *patch.SizeThresholdBytes
	}
	if patch.FlushIntervalMS != nil {
		s.cfg.FlushIntervalMS = *patch.FlushIntervalMS
	}
	if patch.Filter != nil {
		s.cfg.Filter = *patch.Filter
		s.filter = newFilter
	}
	cfg := s.cfg
	s.mu.Unlock()

	if patch.OutputDir != nil {
		s.orch.SetOutputDir(cfg.OutputDir)
	}
	if err := s.store.SaveConfig(cfg); err != nil {
		return store.Config{}, err
	}
	s.logger.Info("config updated",
		log.Bool("auto_flush", cfg.AutoFlush),
		log.Int64("size_threshold", cfg.SizeThresholdBytes),
		log.Bool("filter", cfg.Filter != ""))
	return cfg, nil
}

// Close performs a best-effort shutdown flush and tears down the transport.
// Events that cannot be exported stay in the durable buffer for next start.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	autoFlush := s.cfg.AutoFlush
	s.mu.Unlock()

	if autoFlush && s.store.Count() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := s.orch.Flush(ctx, flush.ReasonShutdown); err != nil {
			s.logger.Warn("shutdown flush failed, buffer retained", log.Err(err))
		}
		cancel()
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("transport close", log.Err(err))
		}
	}
	return nil
}
