package remap

import "github.com/ssw/routeflow/pkg/event"

// Condition wraps a compiled Program whose top-level result is expected
// to be Boolean, matching spec.md §4.2's "use as a condition": Check
// evaluates the program against a disposable clone of the event so any
// internal mutation never leaks into the event topology actually routes,
// and reports false (plus the evaluation error) if the program failed to
// resolve at all.
type Condition struct {
	program *Program
	rt      *Runtime
}

// NewCondition builds a Condition around program, giving it its own
// Runtime scratch space.
func NewCondition(program *Program) *Condition {
	return &Condition{program: program, rt: NewRuntime()}
}

// Check runs the condition against e, returning e unchanged regardless of
// outcome. A non-nil error means the program terminated (abort or
// runtime error) rather than producing a usable boolean; the caller
// (typically a topology route/filter transform) is expected to emit an
// error event for that case and treat the condition as false.
func (c *Condition) Check(e event.Event) (bool, event.Event, error) {
	clone := e.Clone()
	target := NewEventTarget(&clone)
	result, term := c.rt.Resolve(target, c.program)
	if term != nil {
		return false, e, term
	}
	return result.Truthy(), e, nil
}
