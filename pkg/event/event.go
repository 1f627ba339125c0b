package event

import (
	"time"

	"github.com/ssw/routeflow/pkg/value"
)

// Namespace selects how a Log event's well-known fields (message,
// timestamp, source type) are addressed: Legacy keeps them at the top
// level of the event body for backward compatibility with flat log
// formats; Vector keeps the body as the user sees it and relocates
// well-known fields into Metadata under reserved paths.
type Namespace int

const (
	NamespaceLegacy Namespace = iota
	NamespaceVector
)

// Kind discriminates the three event variants the topology runtime
// moves: logs, metrics, and traces. A single Processor/Sink typically
// only accepts a subset, enforced by the topology's type-superset check
// (pkg/topology).
type Kind int

const (
	KindLog Kind = iota
	KindMetric
	KindTrace
)

// Event is the sum type carried on every topology edge. Exactly one of
// Log/Metric/Trace is populated, selected by Kind.
type Event struct {
	kind     Kind
	log      *LogEvent
	metric   *MetricEvent
	trace    *TraceEvent
	metadata *Metadata
}

func NewLog(l *LogEvent, md *Metadata) Event   { return Event{kind: KindLog, log: l, metadata: md} }
func NewMetric(m *MetricEvent, md *Metadata) Event {
	return Event{kind: KindMetric, metric: m, metadata: md}
}
func NewTrace(t *TraceEvent, md *Metadata) Event { return Event{kind: KindTrace, trace: t, metadata: md} }

func (e Event) Kind() Kind           { return e.kind }
func (e Event) Metadata() *Metadata  { return e.metadata }
func (e Event) IsLog() bool          { return e.kind == KindLog }
func (e Event) IsMetric() bool       { return e.kind == KindMetric }
func (e Event) IsTrace() bool        { return e.kind == KindTrace }
func (e Event) AsLog() *LogEvent     { return e.log }
func (e Event) AsMetric() *MetricEvent { return e.metric }
func (e Event) AsTrace() *TraceEvent { return e.trace }

// Clone deep-copies a Log or Trace body and the metadata fields (a
// Metric is copied shallowly: the clone shares its Tags map and its
// value's slices and maps) but starts a fresh finalizer lineage: the clone is a logically independent copy,
// not a fan-out duplicate (use Finalizer.Share via the topology's
// fan-out for that).
func (e Event) Clone() Event {
	out := Event{kind: e.kind, metadata: e.metadata.Clone()}
	switch e.kind {
	case KindLog:
		l := *e.log
		l.body = e.log.body.Clone()
		out.log = &l
	case KindMetric:
		m := *e.metric
		out.metric = &m
	case KindTrace:
		t := *e.trace
		t.body = e.trace.body.Clone()
		out.trace = &t
	}
	return out
}

// Get resolves path against the event, dispatching to Metadata when
// path.Root is RootMetadata and to the event body otherwise.
func (e Event) Get(path value.Path) (*value.Value, bool) {
	if path.Root == value.RootMetadata {
		return e.metadata.Get(path)
	}
	switch e.kind {
	case KindLog:
		return e.log.body.Get(path)
	case KindTrace:
		return e.trace.body.Get(path)
	default:
		return nil, false
	}
}

// Insert writes path against the event body or metadata. Only Log and
// Trace events expose a mutable Object body; Metric events reject
// arbitrary body paths (their shape is fixed, see MetricEvent).
func (e Event) Insert(path value.Path, v value.Value) error {
	if path.Root == value.RootMetadata {
		return e.metadata.Insert(path, v)
	}
	switch e.kind {
	case KindLog:
		return e.log.body.Insert(path, v)
	case KindTrace:
		return e.trace.body.Insert(path, v)
	default:
		return errUnsupportedBodyPath
	}
}

// Remove deletes path from the event body or metadata.
func (e Event) Remove(path value.Path, compact bool) bool {
	if path.Root == value.RootMetadata {
		return e.metadata.Remove(path, compact)
	}
	switch e.kind {
	case KindLog:
		return e.log.body.Remove(path, compact)
	case KindTrace:
		return e.trace.body.Remove(path, compact)
	default:
		return false
	}
}

// Paths enumerates every leaf path in the event body (metadata paths are
// addressed separately, they are not part of a program's implicit ".").
func (e Event) Paths() []value.Path {
	switch e.kind {
	case KindLog:
		return e.log.body.Paths()
	case KindTrace:
		return e.trace.body.Paths()
	default:
		return nil
	}
}

var errUnsupportedBodyPath = bodyPathError{}

type bodyPathError struct{}

func (bodyPathError) Error() string { return "event: metric events do not expose an Object body path" }

// LogEvent wraps a mutable Object-rooted value.Value body.
type LogEvent struct {
	body value.Value
}

// NewLogEvent wraps body (expected to be an Object or Array value, per
// the remap decoder's contract).
func NewLogEvent(body value.Value) *LogEvent { return &LogEvent{body: body} }

// Body returns the raw body value. Callers needing mutation should go
// through Event.Insert/Remove so metadata-aware paths keep working.
func (l *LogEvent) Body() value.Value { return l.body }

// TraceEvent is a Log-shaped event with a reserved distinguishing tag;
// the topology's type-superset check treats Trace as distinct from Log
// even though both carry an Object body.
type TraceEvent struct {
	body value.Value
}

func NewTraceEvent(body value.Value) *TraceEvent { return &TraceEvent{body: body} }
func (t *TraceEvent) Body() value.Value          { return t.body }

// MetricKind discriminates counter/gauge/distribution/histogram/set/
// sketch-shaped metrics, per spec's glossary.
type MetricKind int

const (
	MetricCounter MetricKind = iota
	MetricGauge
	MetricDistribution
	MetricHistogram
	MetricSet
	MetricSketch
)

// MetricValue is a tagged union over the six supported metric shapes.
// Exactly one field is meaningful, selected by Kind.
type MetricValue struct {
	Kind         MetricKind
	CounterValue float64
	GaugeValue   float64
	Samples      []float64          // Distribution
	Buckets      map[float64]uint64 // Histogram: upper bound -> cumulative count
	SetValues    []string           // Set
	SketchDigest []byte             // Sketch: opaque serialized digest (e.g. DDSketch)
}

// MetricEvent is a named, tagged, timestamped numeric observation.
type MetricEvent struct {
	Name      string
	Namespace string
	Tags      map[string]string
	Timestamp time.Time
	Interval  time.Duration // zero for an instantaneous (gauge-like) sample
	Value     MetricValue
}

func NewMetricEvent(name string, v MetricValue, ts time.Time) *MetricEvent {
	return &MetricEvent{Name: name, Value: v, Timestamp: ts, Tags: map[string]string{}}
}
