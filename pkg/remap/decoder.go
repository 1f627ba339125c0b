package remap

import (
	"fmt"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

// Decoder adapts a compiled Program into codec.RemapRunner, implementing
// spec.md §4.2's "use as a decoder": the raw frame is bound to "." as
// Bytes, the program runs, and the final "." is interpreted as one
// event (object), a batch (array of objects), or a decode error
// (anything else, including an explicit abort).
type Decoder struct {
	program *Program
	rt      *Runtime
}

// NewDecoder builds a Decoder around program.
func NewDecoder(program *Program) *Decoder {
	return &Decoder{program: program, rt: NewRuntime()}
}

// RunDecoder satisfies codec.RemapRunner.
func (d *Decoder) RunDecoder(frame []byte, namespace event.Namespace) ([]event.Event, error) {
	root := value.Bytes(append([]byte(nil), frame...))
	target := NewValueTarget(&root)

	result, term := d.rt.Resolve(target, d.program)
	if term != nil {
		if term.Kind == TerminateAbort {
			return nil, fmt.Errorf("remap decode: program aborted: %s", term.Message)
		}
		return nil, fmt.Errorf("remap decode: %s", term.Message)
	}

	switch result.Kind() {
	case value.KindObject:
		return []event.Event{d.toLog(result, namespace)}, nil
	case value.KindArray:
		arr, _ := result.ArrayValue()
		out := make([]event.Event, 0, len(arr))
		for i, v := range arr {
			if v.Kind() != value.KindObject {
				return nil, fmt.Errorf("remap decode: batch element %d must be an object, got %s", i, v.Kind())
			}
			out = append(out, d.toLog(v, namespace))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("remap decode: final value must be an object or array of objects, got %s", result.Kind())
	}
}

func (d *Decoder) toLog(body value.Value, namespace event.Namespace) event.Event {
	md := event.NewMetadata("remap", "")
	return event.NewLog(event.NewLogEvent(body), md)
}
