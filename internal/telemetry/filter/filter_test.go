package filter

import (
	"testing"
	"time"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
)

func ev(eventType string, payload map[string]any) event.Event {
	return event.New("id", eventType, payload, nil, time.Now())
}

func TestEmptyExpressionAdmitsAll(t *testing.T) {
	f, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if f.Enabled() {
		t.Fatalf("empty filter should be disabled")
	}
	if !f.Admit(ev("anything.goes", nil)) {
		t.Fatalf("disabled filter must admit")
	}
}

func TestCategoryFilter(t *testing.T) {
	f, err := New(`category == "navigation"`)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !f.Admit(ev("navigation.completed", nil)) {
		t.Fatalf("navigation should be admitted")
	}
	if f.Admit(ev("dom.click", nil)) {
		t.Fatalf("dom should be rejected")
	}
}

func TestPayloadFieldFilter(t *testing.T) {
	f, err := New(`event_type.startsWith("network") && payload.status >= 400.0`)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !f.Admit(ev("network.response", map[string]any{"status": 503.0})) {
		t.Fatalf("5xx should be admitted")
	}
	if f.Admit(ev("network.response", map[string]any{"status": 200.0})) {
		t.Fatalf("2xx should be rejected")
	}
}

func TestEvalErrorRejects(t *testing.T) {
	f, err := New(`payload.missing_field == "x"`)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if f.Admit(ev("a.b", map[string]any{})) {
		t.Fatalf("evaluation error must reject the event")
	}
}

func TestInvalidExpression(t *testing.T) {
	if _, err := New(`category ==`); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, err := New(`unknown_var == 1`); err == nil {
		t.Fatalf("expected check error for unknown variable")
	}
}
