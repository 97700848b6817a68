package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ishan3299/OpenBDR/internal/config"
	pebblestore "github.com/ishan3299/OpenBDR/internal/storage/pebble"
	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
	"github.com/ishan3299/OpenBDR/internal/telemetry/store"
	"github.com/ishan3299/OpenBDR/pkg/log"
)

func testLogger() log.Logger {
	return log.NewLogger(log.WithOutput(log.NewNullOutput()))
}

func newTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: filepath.Join(t.TempDir(), "db"),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// countingSink records deliveries for assertions.
type countingSink struct {
	mu     sync.Mutex
	events int
	calls  int
}

func (c *countingSink) Name() string { return "counting" }

func (c *countingSink) Deliver(ctx context.Context, filename string, events []event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.events += len(events)
	return nil
}

func (c *countingSink) snapshot() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.events
}

func testConfig(dir string) config.Config {
	cfg := config.Default()
	cfg.OutputDir = dir
	cfg.AutoFlush = false
	return cfg
}

func newTestService(t *testing.T, s *store.Store, cfg config.Config) (*Service, *countingSink) {
	t.Helper()
	cs := &countingSink{}
	svc, err := NewService(Options{Store: s, Sink: cs, Config: cfg, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, cs
}

func openStore(t *testing.T, db *pebblestore.DB) *store.Store {
	t.Helper()
	s, err := store.Open(db, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestLogCapturesAndCounts(t *testing.T) {
	s := openStore(t, newTestDB(t))
	svc, _ := newTestService(t, s, testConfig(t.TempDir()))
	ctx := context.Background()

	for _, et := range []string{"navigation.completed", "dom.click", "dom.scroll"} {
		id, admitted := svc.Log(ctx, et, map[string]any{"k": "v"}, nil)
		if !admitted || id == "" {
			t.Fatalf("log %s: admitted=%v id=%q", et, admitted, id)
		}
	}

	st, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.BufferedEvents != 3 || st.Captured != 3 {
		t.Fatalf("buffered=%d captured=%d, want 3/3", st.BufferedEvents, st.Captured)
	}
	if st.Categories["dom"] != 2 || st.Categories["navigation"] != 1 {
		t.Fatalf("categories = %v", st.Categories)
	}
	if st.BufferedBytes <= 0 || st.BufferedSize == "" {
		t.Fatalf("size accounting missing: %d %q", st.BufferedBytes, st.BufferedSize)
	}
}

func TestFilterRejectsWithoutError(t *testing.T) {
	s := openStore(t, newTestDB(t))
	cfg := testConfig(t.TempDir())
	cfg.Filter = `category == "navigation"`
	svc, _ := newTestService(t, s, cfg)
	ctx := context.Background()

	if _, admitted := svc.Log(ctx, "navigation.completed", nil, nil); !admitted {
		t.Fatalf("navigation must pass the filter")
	}
	if _, admitted := svc.Log(ctx, "dom.click", nil, nil); admitted {
		t.Fatalf("dom must be filtered")
	}

	st, _ := svc.GetStats(ctx)
	if st.BufferedEvents != 1 || st.Filtered != 1 {
		t.Fatalf("buffered=%d filtered=%d, want 1/1", st.BufferedEvents, st.Filtered)
	}
}

func TestThresholdTriggersFlushOnce(t *testing.T) {
	s := openStore(t, newTestDB(t))
	cfg := testConfig(t.TempDir())
	cfg.AutoFlush = true
	cfg.SizeThresholdBytes = 200
	svc, cs := newTestService(t, s, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Log(ctx, "dom.click", map[string]any{"n": i}, nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls, _ := cs.snapshot(); calls > 0 && s.Count() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	calls, delivered := cs.snapshot()
	if calls == 0 {
		t.Fatalf("threshold never flushed")
	}
	if delivered == 0 || s.Size() >= 200 {
		t.Fatalf("flush did not drain below threshold: delivered=%d size=%d", delivered, s.Size())
	}
}

func TestFlushNowDrains(t *testing.T) {
	s := openStore(t, newTestDB(t))
	svc, cs := newTestService(t, s, testConfig(t.TempDir()))
	ctx := context.Background()

	svc.Log(ctx, "dom.click", nil, nil)
	svc.Log(ctx, "dom.click", nil, nil)

	res, err := svc.FlushNow(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if res.NoOp || res.EventCount != 2 {
		t.Fatalf("result = %+v, want 2 exported", res)
	}
	if _, delivered := cs.snapshot(); delivered != 2 {
		t.Fatalf("sink saw %d events, want 2", delivered)
	}
	if s.Count() != 0 {
		t.Fatalf("store not drained")
	}
}

func TestSetConfigValidation(t *testing.T) {
	s := openStore(t, newTestDB(t))
	svc, _ := newTestService(t, s, testConfig(t.TempDir()))

	empty := ""
	if _, err := svc.SetConfig(ConfigPatch{OutputDir: &empty}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("empty outputDir: err = %v", err)
	}
	bad := int64(0)
	if _, err := svc.SetConfig(ConfigPatch{SizeThresholdBytes: &bad}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero threshold: err = %v", err)
	}
	badFilter := `category ==`
	if _, err := svc.SetConfig(ConfigPatch{Filter: &badFilter}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("bad filter: err = %v", err)
	}

	// Nothing was applied by the rejected patches.
	if cfg := svc.Config(); cfg.OutputDir == "" || cfg.SizeThresholdBytes == 0 {
		t.Fatalf("rejected patch mutated config: %+v", cfg)
	}

	threshold := int64(1024)
	auto := true
	cfg, err := svc.SetConfig(ConfigPatch{SizeThresholdBytes: &threshold, AutoFlush: &auto})
	if err != nil {
		t.Fatalf("valid patch: %v", err)
	}
	if cfg.SizeThresholdBytes != 1024 || !cfg.AutoFlush {
		t.Fatalf("patch not applied: %+v", cfg)
	}
}

func TestConfigPersistsAcrossRestart(t *testing.T) {
	db := newTestDB(t)
	s := openStore(t, db)
	svc, _ := newTestService(t, s, testConfig(t.TempDir()))

	expr := `category == "network"`
	if _, err := svc.SetConfig(ConfigPatch{Filter: &expr}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	svc.Close()

	svc2, _ := newTestService(t, openStore(t, db), testConfig(t.TempDir()))
	st, _ := svc2.GetStats(context.Background())
	if !st.FilterEnabled {
		t.Fatalf("filter did not survive restart")
	}
	if svc2.Config().Filter != expr {
		t.Fatalf("filter expr = %q", svc2.Config().Filter)
	}
}

func TestClearPendingRetriedAtInit(t *testing.T) {
	db := newTestDB(t)
	s := openStore(t, db)
	ctx := context.Background()

	ev := event.New("00000000000000000-aaaaaaaa", "dom.click", nil, nil, time.Now())
	if err := s.Append(ctx, ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.SaveConfig(store.Config{
		OutputDir:          t.TempDir(),
		Sink:               config.SinkLocal,
		SizeThresholdBytes: config.DefaultSizeThresholdBytes,
		ClearPending:       true,
	}); err != nil {
		t.Fatalf("save config: %v", err)
	}

	svc, _ := newTestService(t, s, testConfig(t.TempDir()))
	if s.Count() != 0 {
		t.Fatalf("pending clear not retried, count = %d", s.Count())
	}
	if svc.Config().ClearPending {
		t.Fatalf("clearPending flag not reset")
	}
}

func TestLogAfterCloseDrops(t *testing.T) {
	s := openStore(t, newTestDB(t))
	svc, _ := newTestService(t, s, testConfig(t.TempDir()))

	svc.Close()
	if _, admitted := svc.Log(context.Background(), "dom.click", nil, nil); admitted {
		t.Fatalf("log after close must not be admitted")
	}
}
