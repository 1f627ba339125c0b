package topology

import (
	"context"
	"sync"

	"github.com/ssw/routeflow/pkg/event"
)

// Fanout duplicates every batch it receives to each of its active
// output edges, per spec.md §4.6: "A node with multiple downstreams
// owns a Fanout that duplicates each EventArray to each active output.
// ... If one downstream is slow, fan-out blocks on it; this is
// intentional — there is no implicit drop on fan-out." Each event's
// Finalizer is Share'd once per output so acknowledgement only fires
// once every duplicate has been finalized.
type Fanout struct {
	mu      sync.Mutex
	outputs map[string]*Edge
	order   []string
}

// NewFanout returns an empty Fanout; outputs are attached with AddOutput.
func NewFanout() *Fanout {
	return &Fanout{outputs: make(map[string]*Edge)}
}

// AddOutput attaches a new downstream edge at runtime (used by Reload
// to rewire a running graph without restarting the upstream).
func (f *Fanout) AddOutput(edge *Edge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.outputs[edge.Name()]; !exists {
		f.order = append(f.order, edge.Name())
	}
	f.outputs[edge.Name()] = edge
}

// RemoveOutput detaches a downstream at runtime. Per spec.md §4.6,
// "during a removal, buffered events are drained to the removed output
// before it is closed". RemoveOutput itself only needs to stop offering
// new batches to the edge and close it, since Fanout never
// buffers anything itself (every Send call is synchronous, there is
// nothing to drain in the Fanout beyond its natural backlog already
// queued inside the Edge's own channel, which drains on its own as the
// downstream keeps consuming).
func (f *Fanout) RemoveOutput(name string) {
	f.mu.Lock()
	edge, ok := f.outputs[name]
	if ok {
		delete(f.outputs, name)
		for i, n := range f.order {
			if n == name {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
	f.mu.Unlock()
	if ok {
		edge.Close()
	}
}

// Outputs returns the currently active output names, in attach order.
func (f *Fanout) Outputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Send duplicates batch to every active output, blocking on each one in
// turn (never dropping implicitly; an individual output may still be
// configured DropNewest, which is that edge's own explicit choice).
// Returns the first error encountered (typically context cancellation),
// after still attempting every other output so one slow/cancelled
// downstream doesn't starve the others of their copy's finalizer Share.
func (f *Fanout) Send(ctx context.Context, batch event.Array) error {
	f.mu.Lock()
	edges := make([]*Edge, 0, len(f.order))
	for _, name := range f.order {
		edges = append(edges, f.outputs[name])
	}
	f.mu.Unlock()

	if len(edges) == 0 {
		return nil
	}
	if len(edges) == 1 {
		_, err := edges[0].Send(ctx, batch)
		return err
	}

	var firstErr error
	for i, edge := range edges {
		copy := shareBatch(batch, i == len(edges)-1)
		if _, err := edge.Send(ctx, copy); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// shareBatch duplicates batch's events, Share-ing each event's finalizer
// so the acknowledgement count reflects one outstanding ack per fan-out
// copy. The last copy reuses the original events' finalizers directly
// (Share still works, but avoids surfacing an unused extra reference
// when there is exactly one remaining consumer of the original slice).
func shareBatch(batch event.Array, last bool) event.Array {
	events := batch.Events()
	out := make([]event.Event, len(events))
	for i, e := range events {
		if last {
			out[i] = e
			continue
		}
		out[i] = e.Clone()
		for _, fz := range e.Metadata().Finalizers() {
			out[i].Metadata().AddFinalizer(fz.Share())
		}
	}
	arr, _ := event.NewArray(out)
	return arr
}
