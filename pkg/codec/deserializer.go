package codec

import (
	"encoding/json"
	"fmt"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

// Deserializer turns one frame into one or more Log events. A program
// may legitimately produce zero, one, or many events from a single frame
// (the remap-program deserializer's ". = [a, b, c]" case, spec.md §8
// scenario 2), so the return is always a slice.
type Deserializer interface {
	Parse(frame []byte) ([]event.Event, error)
}

// BytesDeserializer wraps the raw frame as a single Bytes value under
// the event body's reserved "message" field. It never fails.
type BytesDeserializer struct {
	Namespace event.Namespace
}

func (d *BytesDeserializer) Parse(frame []byte) ([]event.Event, error) {
	body := value.Object(map[string]value.Value{
		"message": value.Bytes(append([]byte(nil), frame...)),
	})
	le := event.NewLogEvent(body)
	md := event.NewMetadata("", "")
	return []event.Event{event.NewLog(le, md)}, nil
}

// JSONDeserializer parses the frame as a single JSON document (object or
// array at the top level) into a value.Value body.
type JSONDeserializer struct{}

func (d *JSONDeserializer) Parse(frame []byte) ([]event.Event, error) {
	var raw interface{}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("codec: json deserialize: %w", err)
	}
	body, err := fromJSON(raw)
	if err != nil {
		return nil, err
	}
	le := event.NewLogEvent(body)
	md := event.NewMetadata("", "")
	return []event.Event{event.NewLog(le, md)}, nil
}

func fromJSON(raw interface{}) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(v), nil
	case float64:
		if v == float64(int64(v)) {
			return value.Int(int64(v)), nil
		}
		return value.MustFloat(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return value.Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return value.Value{}, fmt.Errorf("codec: invalid json number %q: %w", v, err)
		}
		return value.MustFloat(f), nil
	case string:
		return value.String(v), nil
	case []interface{}:
		out := make([]value.Value, len(v))
		for i, e := range v {
			ev, err := fromJSON(e)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = ev
		}
		return value.Array(out), nil
	case map[string]interface{}:
		out := make(map[string]value.Value, len(v))
		for k, e := range v {
			ev, err := fromJSON(e)
			if err != nil {
				return value.Value{}, err
			}
			out[k] = ev
		}
		return value.Object(out), nil
	default:
		return value.Value{}, fmt.Errorf("codec: unsupported json value type %T", raw)
	}
}

// RemapRunner is the narrow interface the remap runtime satisfies so
// that RemapDeserializer can use a compiled program as a decoder without
// codec importing the remap package's full surface (AST, type-checker,
// stdlib registry). pkg/remap's Decoder implements this directly.
type RemapRunner interface {
	// RunDecoder executes the compiled program against a freshly parsed
	// single-event target built from frame, and returns every resulting
	// Log event. An "abort" expression or a non-object/non-array final
	// "." must surface as an error whose message contains "abort" in the
	// first case.
	RunDecoder(frame []byte, namespace event.Namespace) ([]event.Event, error)
}

// RemapDeserializer decodes a frame by running a compiled remap program
// against it, per spec.md §4.2's "use as a decoder".
type RemapDeserializer struct {
	Runner    RemapRunner
	Namespace event.Namespace
}

func (d *RemapDeserializer) Parse(frame []byte) ([]event.Event, error) {
	events, err := d.Runner.RunDecoder(frame, d.Namespace)
	if err != nil {
		return nil, fmt.Errorf("codec: remap decoder: %w", err)
	}
	return events, nil
}
