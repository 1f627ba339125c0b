package topology

import (
	"context"
	"sync/atomic"

	"github.com/ssw/routeflow/pkg/event"
)

// Edge is a bounded MPSC channel of event.Array batches connecting one
// upstream output to one downstream input, per spec.md §4.6's
// "Channels" rule. A full edge applies backpressure (Send blocks) unless
// configured DropNewest, in which case a full-queue Send succeeds
// without enqueueing and bumps Dropped so the caller can emit an
// internal "load shed" event.
type Edge struct {
	name    string
	ch      chan event.Array
	config  EdgeConfig
	dropped int64
}

// NewEdge allocates the channel backing one graph edge.
func NewEdge(name string, config EdgeConfig) *Edge {
	if config.Capacity <= 0 {
		config.Capacity = DefaultEdgeConfig().Capacity
	}
	return &Edge{name: name, ch: make(chan event.Array, config.Capacity), config: config}
}

// Name identifies the edge for logging/metrics.
func (e *Edge) Name() string { return e.name }

// Send delivers batch to the edge. Under normal (blocking) config it
// suspends the caller until there is room or ctx is cancelled. Under
// DropNewest, a full channel makes Send return (false, nil) immediately
// instead of blocking; the caller is expected to treat false as "load
// shed" and account for it (e.g. bump a metric), not as an error.
func (e *Edge) Send(ctx context.Context, batch event.Array) (sent bool, err error) {
	if e.config.DropNewest {
		select {
		case e.ch <- batch:
			return true, nil
		default:
			atomic.AddInt64(&e.dropped, 1)
			return false, nil
		}
	}
	select {
	case e.ch <- batch:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Recv exposes the receive side for the downstream's run loop.
func (e *Edge) Recv() <-chan event.Array { return e.ch }

// Close closes the channel. Only the single writer side may call this,
// matching spec.md §5's "single writer task" shared-state discipline.
func (e *Edge) Close() { close(e.ch) }

// Dropped returns the cumulative count of load-shed sends.
func (e *Edge) Dropped() int64 { return atomic.LoadInt64(&e.dropped) }

// Len reports the number of batches currently queued, for metrics and
// backpressure-percentage calculations.
func (e *Edge) Len() int { return len(e.ch) }

// Cap reports the edge's configured capacity.
func (e *Edge) Cap() int { return cap(e.ch) }
