package topology

import (
	"context"
	"time"

	"github.com/ssw/routeflow/pkg/event"
)

// Output is what a transform or source writes produced events into;
// runSource/runFunction/runTick/runTask pass the node's Fanout through this narrow
// interface so transform implementations never see channel plumbing.
type Output interface {
	Emit(ctx context.Context, e event.Event) error
}

// FunctionTransform is spec.md §4.6's "Function" kind: synchronous
// (event) -> 0..N events, with no state across events unless the
// implementation explicitly owns some (e.g. a sampler's counters).
type FunctionTransform interface {
	Process(ctx context.Context, e event.Event, out Output) error
}

// TickTransform is spec.md §4.6's "Tick" kind: a FunctionTransform plus
// a periodic Tick invocation at a configured interval, used by
// rate-limited/windowed transforms (e.g. throttle's idle-key sweep).
type TickTransform interface {
	FunctionTransform
	TickInterval() time.Duration
	Tick(ctx context.Context, out Output) error
}

// TaskTransform is spec.md §4.6's "Task" kind: consumes and produces
// streams directly, for stateful reducers like aggregations that cannot
// be expressed as one event in, zero-or-more events out.
type TaskTransform interface {
	Run(ctx context.Context, in <-chan event.Array, out Output) error
}

// Source produces events from outside the graph (file tail, broker
// consumer, ...) until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, out Output) error
}

// Sink delivers a batch to an external system. Finalization (marking
// each event's Finalizer Delivered/Errored) is the Sink implementation's
// responsibility, typically via pkg/sinkdriver.Driver.
type Sink interface {
	Send(ctx context.Context, batch event.Array) error
}

// fanoutOutput adapts a node's ReadyBatcher + Fanout pair into the
// Output interface seen by transform/source implementations: events are
// pushed through the batcher one at a time and only forwarded to the
// Fanout once a batch is ready (capacity reached) or the node's run loop
// calls flush on a pending tick/idle condition.
type fanoutOutput struct {
	batcher *ReadyBatcher
	fanout  *Fanout
}

func newFanoutOutput(capacity int, fanout *Fanout) *fanoutOutput {
	return &fanoutOutput{batcher: NewReadyBatcher(capacity), fanout: fanout}
}

func (o *fanoutOutput) Emit(ctx context.Context, e event.Event) error {
	if ready, ok := o.batcher.Push(e); ok && ready != nil {
		return o.fanout.Send(ctx, *ready)
	}
	return nil
}

// flush emits whatever is buffered without waiting for capacity,
// matching the "on upstream pending" rule in spec.md §4.6.
func (o *fanoutOutput) flush(ctx context.Context) error {
	if ready := o.batcher.Pending(); ready != nil {
		return o.fanout.Send(ctx, *ready)
	}
	return nil
}
