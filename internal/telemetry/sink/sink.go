// Package sink delivers export batches to their destination: the local
// filesystem or the native writer host.
package sink

import (
	"context"
	"errors"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
)

// ErrUnavailable marks a delivery failure where the buffered events must be
// retained for a later retry.
var ErrUnavailable = errors.New("sink: unavailable")

// Sink writes one export batch. filename is the partitioned path the flush
// orchestrator chose; sinks that manage their own layout may ignore it.
type Sink interface {
	// Name identifies the sink in stats and logs.
	Name() string
	// Deliver exports the batch. A non-nil error means nothing may be
	// treated as exported and the caller keeps its buffer.
	Deliver(ctx context.Context, filename string, events []event.Event) error
}
