package event

import (
	"fmt"

	"github.com/ssw/routeflow/pkg/value"
)

// Array is a homogeneous batch of events sharing one Kind: the unit that
// moves across a "ready-events" edge in the topology once the upstream
// batching adapter has coalesced singleton events. A batch of size 1 is
// the common case for a source that emits one event at a time.
type Array struct {
	kind   Kind
	events []Event
}

// NewArray builds an Array from events, which must all share the same
// Kind; returns an error otherwise (the batching adapter never mixes
// kinds, this guards against a caller-level mistake).
func NewArray(events []Event) (Array, error) {
	if len(events) == 0 {
		return Array{}, nil
	}
	kind := events[0].Kind()
	for _, e := range events[1:] {
		if e.Kind() != kind {
			return Array{}, fmt.Errorf("event: array must be homogeneous, got %d mixed with %d", kind, e.Kind())
		}
	}
	return Array{kind: kind, events: events}, nil
}

// Kind reports the shared kind of every event in the array. Meaningless
// on an empty array.
func (a Array) Kind() Kind { return a.kind }

// Len returns the number of events.
func (a Array) Len() int { return len(a.events) }

// Events returns the backing slice.
func (a Array) Events() []Event { return a.events }

// Append adds e to the array. The caller is responsible for only
// appending events of the array's Kind (enforced by the batching
// adapter, not re-checked here for hot-path performance).
func (a *Array) Append(e Event) {
	if len(a.events) == 0 {
		a.kind = e.Kind()
	}
	a.events = append(a.events, e)
}

// EstimatedJSONSize is a cheap, allocation-free estimate of the array's
// encoded size used by the sink driver's Batcher to trip a max_bytes
// condition without actually encoding (see pkg/sinkdriver). It is not an
// upper bound: every number counts as 8 bytes, strings are counted
// unescaped, and a metric counts as its name plus 32 bytes.
func (a Array) EstimatedJSONSize() int {
	total := 2 // brackets
	for i, e := range a.events {
		if i > 0 {
			total++ // comma
		}
		total += estimateEventSize(e)
	}
	return total
}

func estimateEventSize(e Event) int {
	switch e.Kind() {
	case KindLog:
		return estimateValueSize(e.log.body)
	case KindTrace:
		return estimateValueSize(e.trace.body)
	case KindMetric:
		return len(e.metric.Name) + 32
	default:
		return 0
	}
}

func estimateValueSize(v value.Value) int {
	switch v.Kind() {
	case value.KindNull:
		return 4
	case value.KindBoolean:
		return 5
	case value.KindInteger, value.KindFloat:
		return 8
	case value.KindBytes:
		b, _ := v.BytesValue()
		return len(b) + 2
	case value.KindTimestamp:
		return 26
	case value.KindRegex:
		return 16
	case value.KindArray:
		arr, _ := v.ArrayValue()
		total := 2
		for _, e := range arr {
			total += estimateValueSize(e) + 1
		}
		return total
	case value.KindObject:
		obj, _ := v.ObjectValue()
		total := 2
		for k, e := range obj {
			total += len(k) + 3 + estimateValueSize(e) + 1
		}
		return total
	default:
		return 0
	}
}
