package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

// Local writes export batches as JSONL files under the configured output
// directory, creating partition directories on demand. A name collision gets
// a -1, -2, ... suffix instead of overwriting.
type Local struct {
	logger log.Logger
}

func NewLocal(logger log.Logger) *Local {
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NewNullOutput()))
	}
	return &Local{logger: logger.WithComponent("sink.local")}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Deliver(ctx context.Context, filename string, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := event.EncodeJSONL(events)
	if err != nil {
		return fmt.Errorf("sink: serialize batch: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("sink: partition dir: %w", err)
	}
	target := uniquify(filename)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", target, err)
	}
	if target != filename {
		l.logger.Warn("export filename collision", log.Str("requested", filename), log.Str("written", target))
	}
	l.logger.Info("exported batch", log.Str("file", target), log.Int("events", len(events)))
	return nil
}

// uniquify returns the first non-existing variant of filename:
// events_001.jsonl, events_001-1.jsonl, events_001-2.jsonl, ...
func uniquify(filename string) string {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return filename
	}
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
