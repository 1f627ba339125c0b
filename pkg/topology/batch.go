package topology

import (
	"github.com/ssw/routeflow/pkg/event"
)

// ReadyBatcher coalesces events that a node emits one at a time
// into larger event.Arrays of a configured capacity, per spec.md §4.6's
// "Batching for efficiency":
//
//   - If the arriving array's variant matches the buffered array,
//     extend; split off when size >= capacity.
//   - If variants differ, emit the buffered array and begin buffering
//     the new one.
//   - On upstream "pending", emit any non-empty buffer immediately (no
//     unbounded latency).
type ReadyBatcher struct {
	capacity int
	buf      []event.Event
	kind     event.Kind
	hasBuf   bool
}

// NewReadyBatcher returns a batcher that coalesces up to capacity events
// per emitted Array. A non-positive capacity behaves as 1 (no
// coalescing, every Push emits immediately).
func NewReadyBatcher(capacity int) *ReadyBatcher {
	if capacity <= 0 {
		capacity = 1
	}
	return &ReadyBatcher{capacity: capacity}
}

// Push offers one arriving event to the batcher. It returns a non-nil
// ready array whenever the push causes a flush: either because the
// arriving event's Kind differs from what's buffered (the old buffer
// flushes first), or because the buffer reached capacity after
// extension. Push only accepts single events so per-event coalescing
// logic stays in one place; source adapters feeding a whole array call
// it once per element.
func (b *ReadyBatcher) Push(e event.Event) (ready *event.Array, ok bool) {
	if b.hasBuf && e.Kind() != b.kind {
		flushed := b.flushLocked()
		b.buf = append(b.buf, e)
		b.kind = e.Kind()
		b.hasBuf = true
		if flushed != nil {
			return flushed, true
		}
		// Nothing was buffered to flush (shouldn't happen since hasBuf
		// was true), fall through to the capacity check below.
	} else {
		b.buf = append(b.buf, e)
		b.kind = e.Kind()
		b.hasBuf = true
	}

	if len(b.buf) >= b.capacity {
		return b.flushLocked(), true
	}
	return nil, false
}

// Pending flushes any non-empty buffer immediately, matching spec.md
// §4.6's "On upstream pending, emit any non-empty buffer immediately
// (no unbounded latency)". Returns nil if nothing was buffered.
func (b *ReadyBatcher) Pending() *event.Array {
	if !b.hasBuf || len(b.buf) == 0 {
		return nil
	}
	return b.flushLocked()
}

func (b *ReadyBatcher) flushLocked() *event.Array {
	if len(b.buf) == 0 {
		b.hasBuf = false
		return nil
	}
	arr, err := event.NewArray(b.buf)
	b.buf = nil
	b.hasBuf = false
	if err != nil {
		// Push only ever appends events of one Kind between flushes, so
		// this branch is unreachable in practice; treat it as an empty
		// flush rather than panicking mid-stream.
		return nil
	}
	return &arr
}
