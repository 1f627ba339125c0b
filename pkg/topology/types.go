// Package topology wires sources, transforms and sinks into a running
// dataflow graph: validated edges, bounded per-edge channels, fan-out to
// multiple downstreams, a ready-events batching adapter, the three
// transform kinds, and coordinated shutdown/reload.
package topology

import (
	"fmt"

	"github.com/ssw/routeflow/pkg/event"
)

// DataKind is a bitmask over the event kinds a node can accept or emit,
// matching spec.md §4.6's "typed by the data type of events that may
// flow along them (log/metric/trace/any)".
type DataKind uint8

const (
	DataLog DataKind = 1 << iota
	DataMetric
	DataTrace
)

// DataAny accepts every kind; used by a downstream input that doesn't
// care what it's fed (e.g. a generic file sink).
const DataAny = DataLog | DataMetric | DataTrace

// Contains reports whether k is a superset of other, i.e. every kind in
// other is also accepted by k.
func (k DataKind) Contains(other DataKind) bool { return k&other == other }

func (k DataKind) String() string {
	if k == DataAny {
		return "any"
	}
	var parts []string
	if k&DataLog != 0 {
		parts = append(parts, "log")
	}
	if k&DataMetric != 0 {
		parts = append(parts, "metric")
	}
	if k&DataTrace != 0 {
		parts = append(parts, "trace")
	}
	if len(parts) == 0 {
		return "none"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "+" + p
	}
	return out
}

func dataKindOf(e event.Event) DataKind {
	switch e.Kind() {
	case event.KindLog:
		return DataLog
	case event.KindMetric:
		return DataMetric
	case event.KindTrace:
		return DataTrace
	default:
		return 0
	}
}

// Role distinguishes the three node positions in a Graph.
type Role int

const (
	RoleSource Role = iota
	RoleTransform
	RoleSink
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleTransform:
		return "transform"
	case RoleSink:
		return "sink"
	default:
		return "unknown"
	}
}

// NodeSpec describes one node for graph validation purposes: what it
// produces (Outputs, meaningless for a sink), what it is willing to
// accept on each named input (Inputs), and the upstream node names it
// actually reads from (Reads). Reads entries must resolve to another
// node's name in the same Graph.
type NodeSpec struct {
	Name    string
	Role    Role
	Inputs  DataKind // superset of data this node's input edge may carry; RoleSource nodes ignore this
	Outputs DataKind // kind(s) this node may emit; RoleSink nodes ignore this
	Reads   []string // upstream node names this node subscribes to
}

// EdgeConfig configures one input channel's backpressure behavior.
type EdgeConfig struct {
	Capacity   int  // bounded channel capacity for event.Array batches
	DropNewest bool // if true, a full channel silently drops instead of blocking the sender
}

// DefaultEdgeConfig matches the teacher's dispatcher default queue
// sizing (internal/dispatcher.DispatcherConfig's QueueSize default),
// generalized to the per-edge granularity spec.md §4.6 requires.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{Capacity: 1000, DropNewest: false}
}

// ValidationError reports every problem found by Graph.Validate at
// once, rather than failing on the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("topology: invalid graph: %s", e.Problems[0])
	}
	msg := fmt.Sprintf("topology: invalid graph (%d problems):", len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}
