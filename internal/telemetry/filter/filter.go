// Package filter evaluates an optional CEL capture-filter expression against
// incoming events before they reach the store.
package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/ishan3299/OpenBDR/internal/telemetry/event"
)

// Filter wraps a compiled CEL program. When disabled (empty expression),
// Admit always returns true. An event for which the expression errors or
// returns false is not captured.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// New compiles the expression. Variables available to expressions:
// event_type (string), category (string), payload (dyn).
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("event_type", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("payload", cel.DynType),
	)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: env: %w", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("filter: parse: %w", iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, fmt.Errorf("filter: check: %w", iss2.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: program: %w", err)
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether a non-empty expression is active.
func (f Filter) Enabled() bool { return f.enabled }

// Admit evaluates the expression against ev. When disabled, returns true.
func (f Filter) Admit(ev event.Event) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"event_type": ev.EventType,
		"category":   ev.Category(),
		"payload":    ev.Payload,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
