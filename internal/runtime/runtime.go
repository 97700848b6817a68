package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"
	"time"

	cfgpkg "github.com/ishan3299/OpenBDR/internal/config"
	pebblestore "github.com/ishan3299/OpenBDR/internal/storage/pebble"
	"github.com/ishan3299/OpenBDR/internal/telemetry"
	"github.com/ishan3299/OpenBDR/internal/telemetry/sink"
	"github.com/ishan3299/OpenBDR/internal/telemetry/store"
	"github.com/ishan3299/OpenBDR/internal/transport"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
}

// Runtime wires storage, transport, and the telemetry facade for a
// single-node collector.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	client  *transport.Client
	service *telemetry.Service
}

// Open initializes storage under DataDir, builds the configured sink, and
// starts the facade.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(opts.DataDir, "db"),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
	})
	if err != nil {
		return nil, err
	}
	st, err := store.Open(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var client *transport.Client
	var s sink.Sink
	switch opts.Config.Sink {
	case cfgpkg.SinkNative:
		client, err = transport.NewClient(transport.Options{
			Dial:            transport.UnixDialer(opts.Config.SocketPath),
			Logger:          logger,
			SessionMeta:     sessionMeta(),
			ConnectTimeout:  opts.Config.ConnectTimeout,
			ResponseTimeout: opts.Config.ResponseTimeout,
			Retry: transport.RetryPolicy{
				Type:        transport.BackoffExp,
				Base:        500 * time.Millisecond,
				Cap:         10 * time.Second,
				Factor:      2.0,
				MaxAttempts: uint32(opts.Config.ConnectAttempts),
			},
			BufferCap: opts.Config.OfflineBufferCap,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
		s = sink.NewNative(client)
	default:
		s = sink.NewLocal(logger)
	}

	svc, err := telemetry.NewService(telemetry.Options{
		Store:  st,
		Sink:   s,
		Client: client,
		Config: opts.Config,
		Logger: logger,
	})
	if err != nil {
		if client != nil {
			client.Close()
		}
		db.Close()
		return nil, err
	}
	return &Runtime{db: db, config: opts.Config, client: client, service: svc}, nil
}

func sessionMeta() map[string]any {
	hostname, _ := os.Hostname()
	return map[string]any{
		"os":       goruntime.GOOS,
		"arch":     goruntime.GOARCH,
		"hostname": hostname,
	}
}

// Start launches background work (periodic flush, host connection).
func (r *Runtime) Start(ctx context.Context) { r.service.Start(ctx) }

// Service returns the telemetry facade.
func (r *Runtime) Service() *telemetry.Service { return r.service }

// Close flushes and closes the facade, then the storage.
func (r *Runtime) Close() error {
	var firstErr error
	if r.service != nil {
		if err := r.service.Close(); err != nil {
			firstErr = err
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
