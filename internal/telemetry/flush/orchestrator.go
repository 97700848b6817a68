// Package flush coordinates draining the event store into an export sink:
// trigger coalescing, partition rollover, delivery, and the clear that only
// happens after delivery succeeded.
package flush

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/internal/telemetry/partition"
	"github.com/ishan3299/OpenBDR/internal/telemetry/sink"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// EventStore is the slice of the durable buffer the orchestrator drains.
type EventStore interface {
	Events(ctx context.Context) ([]event.Event, error)
	Clear(ctx context.Context) error
}

// Reason records what triggered a flush.
type Reason string

const (
	ReasonThreshold Reason = "threshold"
	ReasonInterval  Reason = "interval"
	ReasonManual    Reason = "manual"
	ReasonShutdown  Reason = "shutdown"
)

// Result describes one completed flush.
type Result struct {
	NoOp       bool   `json:"noOp"`
	Filename   string `json:"filename,omitempty"`
	EventCount int    `json:"eventCount"`
	Reason     Reason `json:"reason"`
}

// Options wires an Orchestrator.
type Options struct {
	Store     EventStore
	Partition *partition.Manager
	Sink      sink.Sink
	OutputDir string
	Logger    log.Logger

	// OnClearFailure runs when delivery succeeded but the store clear did
	// not, leaving already-exported events behind. The service layer marks
	// the store so the clear is retried at next startup.
	OnClearFailure func(error)

	// Now is the partition clock; tests pin it.
	Now func() time.Time
}

// Orchestrator serializes flushes: one in flight, concurrent triggers
// coalesce into the running pass and observe its result.
type Orchestrator struct {
	store     EventStore
	partition *partition.Manager
	sink      sink.Sink
	logger    log.Logger
	onClear   func(error)
	now       func() time.Time

	mu        sync.Mutex
	running   bool
	waiters   []chan outcome
	outputDir string
}

// SetOutputDir redirects future exports; the running flush is unaffected.
func (o *Orchestrator) SetOutputDir(dir string) {
	o.mu.Lock()
	o.outputDir = dir
	o.mu.Unlock()
}

type outcome struct {
	result Result
	err    error
}

func NewOrchestrator(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:     opts.Store,
		partition: opts.Partition,
		sink:      opts.Sink,
		outputDir: opts.OutputDir,
		logger:    logger.WithComponent("flush"),
		onClear:   opts.OnClearFailure,
		now:       now,
	}
}

// Flush drains the store through the sink. An empty store is a no-op. When a
// flush is already running, the call waits for it and returns its result
// instead of starting another.
func (o *Orchestrator) Flush(ctx context.Context, reason Reason) (Result, error) {
	o.mu.Lock()
	if o.running {
		ch := make(chan outcome, 1)
		o.waiters = append(o.waiters, ch)
		o.mu.Unlock()
		select {
		case out := <-ch:
			return out.result, out.err
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	o.running = true
	o.mu.Unlock()

	result, err := o.run(ctx, reason)

	o.mu.Lock()
	o.running = false
	waiters := o.waiters
	o.waiters = nil
	o.mu.Unlock()
	for _, ch := range waiters {
		ch <- outcome{result: result, err: err}
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, reason Reason) (Result, error) {
	events, err := o.store.Events(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(events) == 0 {
		return Result{NoOp: true, Reason: reason}, nil
	}

	now := o.now()
	if _, err := o.partition.CheckRollover(now); err != nil {
		return Result{}, err
	}
	o.mu.Lock()
	outputDir := o.outputDir
	o.mu.Unlock()
	filename := o.partition.Filename(outputDir, now)

	started := o.now()
	if err := o.sink.Deliver(ctx, filename, events); err != nil {
		o.logger.Warn("delivery failed, buffer retained",
			log.Str("sink", o.sink.Name()),
			log.Str("reason", string(reason)),
			log.Int("events", len(events)),
			log.Err(err))
		return Result{}, err
	}

	if err := o.store.Clear(ctx); err != nil {
		// The exported file is already durable. Record the failure for a
		// retry at next startup and report the flush as successful; the
		// sequence still advances so the written filename is not reused.
		o.logger.Error("clear failed after successful delivery", log.Err(err))
		if o.onClear != nil {
			o.onClear(err)
		}
	}
	if err := o.partition.AdvanceSequence(); err != nil {
		return Result{}, err
	}

	o.logger.Info("flushed",
		log.Str("sink", o.sink.Name()),
		log.Str("reason", string(reason)),
		log.Str("file", filename),
		log.Int("events", len(events)),
		log.Dur("took", o.now().Sub(started)))
	return Result{Filename: filename, EventCount: len(events), Reason: reason}, nil
}

// RunPeriodic flushes on the interval until ctx ends. Failures are already
// logged by Flush; the loop keeps going.
func (o *Orchestrator) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Flush(ctx, ReasonInterval); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Debug("periodic flush failed", log.Err(err))
			}
		}
	}
}
