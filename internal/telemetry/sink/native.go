package sink

import (
	"context"
	"fmt"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/internal/transport"
)

// Native hands export batches to the writer host over the framed channel.
// The host owns partitioning and rotation on its side, so the orchestrator's
// filename is advisory only.
type Native struct {
	client *transport.Client
}

func NewNative(client *transport.Client) *Native {
	return &Native{client: client}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Deliver(ctx context.Context, filename string, events []event.Event) error {
	if err := n.client.DeliverBatch(ctx, events); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
