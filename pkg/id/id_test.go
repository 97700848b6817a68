package id

import (
	"strings"
	"testing"
	"time"
)

func TestOrderingMonotonic(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 1000 }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next()
	b := g.Next()
	if !(a[:17] < b[:17]) {
		t.Fatalf("expected ordered prefixes: %s vs %s", a, b)
	}
}

func TestClockRegressionGuard(t *testing.T) {
	g := NewGenerator()
	ms := int64(1000)
	NowMs = func() int64 { return ms }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next()
	ms = 900 // clock went backwards
	b := g.Next()
	if !(a[:17] < b[:17]) {
		t.Fatalf("expected b>a despite clock regression: %s vs %s", a, b)
	}
}

func TestUniqueSuffix(t *testing.T) {
	g := NewGenerator()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if !strings.Contains(id, "-") || len(id) != 12+5+1+8 {
			t.Fatalf("unexpected id shape %q", id)
		}
	}
}
