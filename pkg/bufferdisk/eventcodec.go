package bufferdisk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

// wireValue is a JSON-friendly mirror of value.Value that preserves the
// tagged-union's kind so a round trip through the disk buffer doesn't
// collapse integer/float/bytes/timestamp distinctions the way a plain
// json.Marshal of the body would.
type wireValue struct {
	Kind   int                  `json:"k"`
	Bool   bool                 `json:"b,omitempty"`
	Int    int64                `json:"i,omitempty"`
	Float  float64              `json:"f,omitempty"`
	Bytes  []byte               `json:"by,omitempty"`
	Time   time.Time            `json:"ts,omitempty"`
	Array  []wireValue          `json:"a,omitempty"`
	Object map[string]wireValue `json:"o,omitempty"`
}

func toWireValue(v value.Value) wireValue {
	switch v.Kind() {
	case value.KindBoolean:
		b, _ := v.Boolean()
		return wireValue{Kind: int(value.KindBoolean), Bool: b}
	case value.KindInteger:
		i, _ := v.Integer()
		return wireValue{Kind: int(value.KindInteger), Int: i}
	case value.KindFloat:
		f, _ := v.Float64()
		return wireValue{Kind: int(value.KindFloat), Float: f}
	case value.KindBytes:
		b, _ := v.BytesValue()
		return wireValue{Kind: int(value.KindBytes), Bytes: append([]byte(nil), b...)}
	case value.KindTimestamp:
		t, _ := v.TimestampValue()
		return wireValue{Kind: int(value.KindTimestamp), Time: t}
	case value.KindRegex:
		// Lossy on purpose: a compiled regex landing in an event body
		// bound for a disk buffer is not a case spec.md names, so it is
		// carried as its source pattern rather than growing the wire
		// format a distinct regex variant.
		re, _ := v.RegexValue()
		pattern := ""
		if re != nil {
			pattern = re.String()
		}
		return wireValue{Kind: int(value.KindBytes), Bytes: []byte(pattern)}
	case value.KindArray:
		arr, _ := v.ArrayValue()
		out := make([]wireValue, len(arr))
		for i, e := range arr {
			out[i] = toWireValue(e)
		}
		return wireValue{Kind: int(value.KindArray), Array: out}
	case value.KindObject:
		obj, _ := v.ObjectValue()
		out := make(map[string]wireValue, len(obj))
		for k, e := range obj {
			out[k] = toWireValue(e)
		}
		return wireValue{Kind: int(value.KindObject), Object: out}
	default:
		return wireValue{Kind: int(value.KindNull)}
	}
}

func fromWireValue(w wireValue) (value.Value, error) {
	switch value.Kind(w.Kind) {
	case value.KindNull:
		return value.Null(), nil
	case value.KindBoolean:
		return value.Bool(w.Bool), nil
	case value.KindInteger:
		return value.Int(w.Int), nil
	case value.KindFloat:
		return value.Float(w.Float)
	case value.KindBytes:
		return value.Bytes(w.Bytes), nil
	case value.KindTimestamp:
		return value.Timestamp(w.Time), nil
	case value.KindArray:
		out := make([]value.Value, len(w.Array))
		for i, e := range w.Array {
			v, err := fromWireValue(e)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = v
		}
		return value.Array(out), nil
	case value.KindObject:
		out := make(map[string]value.Value, len(w.Object))
		for k, e := range w.Object {
			v, err := fromWireValue(e)
			if err != nil {
				return value.Value{}, err
			}
			out[k] = v
		}
		return value.Object(out), nil
	default:
		return value.Value{}, fmt.Errorf("bufferdisk: unknown wire value kind %d", w.Kind)
	}
}

// wireEvent mirrors event.Event for on-disk persistence. Only the
// Metadata fields that shape delivery (source type/ID) are carried;
// remap-assigned "%"-fields, finalizers, and secret redaction state are
// transient and reconstructed fresh once an event has already made it
// this far downstream, matching the teacher dispatcher's batch-level
// (not per-event) durability posture.
type wireEvent struct {
	Kind       int       `json:"k"`
	SourceType string    `json:"st,omitempty"`
	SourceID   string    `json:"sid,omitempty"`
	Body       wireValue `json:"body"`

	MetricName      string             `json:"mn,omitempty"`
	MetricNamespace string             `json:"mns,omitempty"`
	MetricTags      map[string]string  `json:"mt,omitempty"`
	MetricTimestamp time.Time          `json:"mts,omitempty"`
	MetricInterval  time.Duration      `json:"mi,omitempty"`
	MetricValueKind int                `json:"mvk,omitempty"`
	MetricCounter   float64            `json:"mc,omitempty"`
	MetricGauge     float64            `json:"mg,omitempty"`
	MetricSamples   []float64          `json:"ms,omitempty"`
	MetricBuckets   []wireBucket       `json:"mb,omitempty"`
	MetricSet       []string           `json:"mset,omitempty"`
	MetricSketch    []byte             `json:"msk,omitempty"`
}

// wireBucket mirrors one entry of event.MetricValue.Buckets: encoding/
// json refuses a map with a float64 key directly, so histogram buckets
// travel as an explicit bound/count pair slice instead.
type wireBucket struct {
	UpperBound float64 `json:"u"`
	Count      uint64  `json:"c"`
}

func toWireEvent(e event.Event) wireEvent {
	w := wireEvent{Kind: int(e.Kind())}
	if md := e.Metadata(); md != nil {
		w.SourceType = md.SourceType()
		w.SourceID = md.SourceID()
	}

	switch e.Kind() {
	case event.KindLog:
		w.Body = toWireValue(e.AsLog().Body())
	case event.KindTrace:
		w.Body = toWireValue(e.AsTrace().Body())
	case event.KindMetric:
		m := e.AsMetric()
		w.MetricName = m.Name
		w.MetricNamespace = m.Namespace
		w.MetricTags = m.Tags
		w.MetricTimestamp = m.Timestamp
		w.MetricInterval = m.Interval
		w.MetricValueKind = int(m.Value.Kind)
		w.MetricCounter = m.Value.CounterValue
		w.MetricGauge = m.Value.GaugeValue
		w.MetricSamples = m.Value.Samples
		if len(m.Value.Buckets) > 0 {
			w.MetricBuckets = make([]wireBucket, 0, len(m.Value.Buckets))
			for bound, count := range m.Value.Buckets {
				w.MetricBuckets = append(w.MetricBuckets, wireBucket{UpperBound: bound, Count: count})
			}
		}
		w.MetricSet = m.Value.SetValues
		w.MetricSketch = m.Value.SketchDigest
	}
	return w
}

func fromWireEvent(w wireEvent) (event.Event, error) {
	md := event.NewMetadata(w.SourceType, w.SourceID)

	switch event.Kind(w.Kind) {
	case event.KindLog:
		body, err := fromWireValue(w.Body)
		if err != nil {
			return event.Event{}, err
		}
		return event.NewLog(event.NewLogEvent(body), md), nil
	case event.KindTrace:
		body, err := fromWireValue(w.Body)
		if err != nil {
			return event.Event{}, err
		}
		return event.NewTrace(event.NewTraceEvent(body), md), nil
	case event.KindMetric:
		var buckets map[float64]uint64
		if len(w.MetricBuckets) > 0 {
			buckets = make(map[float64]uint64, len(w.MetricBuckets))
			for _, b := range w.MetricBuckets {
				buckets[b.UpperBound] = b.Count
			}
		}
		mv := event.MetricValue{
			Kind:         event.MetricKind(w.MetricValueKind),
			CounterValue: w.MetricCounter,
			GaugeValue:   w.MetricGauge,
			Samples:      w.MetricSamples,
			Buckets:      buckets,
			SetValues:    w.MetricSet,
			SketchDigest: w.MetricSketch,
		}
		m := event.NewMetricEvent(w.MetricName, mv, w.MetricTimestamp)
		m.Namespace = w.MetricNamespace
		m.Tags = w.MetricTags
		m.Interval = w.MetricInterval
		return event.NewMetric(m, md), nil
	default:
		return event.Event{}, fmt.Errorf("bufferdisk: unknown wire event kind %d", w.Kind)
	}
}

// EncodeArray renders a batch as the record payload a Writer persists.
func EncodeArray(arr event.Array) ([]byte, error) {
	events := arr.Events()
	wire := make([]wireEvent, len(events))
	for i, e := range events {
		wire[i] = toWireEvent(e)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("bufferdisk: encode batch: %w", err)
	}
	return data, nil
}

// DecodeArray reconstructs a batch from a record payload a Reader
// returned.
func DecodeArray(data []byte) (event.Array, error) {
	var wire []wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return event.Array{}, fmt.Errorf("bufferdisk: decode batch: %w", err)
	}
	events := make([]event.Event, len(wire))
	for i, w := range wire {
		e, err := fromWireEvent(w)
		if err != nil {
			return event.Array{}, err
		}
		events[i] = e
	}
	return event.NewArray(events)
}
