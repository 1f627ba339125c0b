package sinkdriver

import (
	"sync"
	"time"

	"github.com/ssw/routeflow/pkg/event"
)

// BatchSizer estimates a batch's encoded size without fully encoding it,
// the hook spec.md §4.5 names as estimated_encoded_size. event.Array's
// own EstimatedJSONSize satisfies this for the common JSON-shaped sinks;
// a sink with a denser wire format can supply its own.
type BatchSizer func(event.Array) int

// BatcherConfig configures trip conditions. Zero MaxEvents, Timeout and
// Sizer are replaced by defaults, following the teacher's pkg/batching
// constructor pattern; a zero MaxBytes disables the byte-size trip.
type BatcherConfig struct {
	MaxEvents int
	MaxBytes  int
	Timeout   time.Duration
	Sizer     BatchSizer
}

func (c *BatcherConfig) applyDefaults() {
	if c.MaxEvents == 0 {
		c.MaxEvents = 1000
	}
	if c.Timeout == 0 {
		c.Timeout = 1 * time.Second
	}
	if c.Sizer == nil {
		c.Sizer = event.Array.EstimatedJSONSize
	}
}

// Batcher accumulates events until one of three trip conditions fires:
// MaxEvents reached, MaxBytes reached (per Sizer's estimate), or Timeout
// elapsed since the first event in the current batch. Grounded on the
// teacher's pkg/batching.AdaptiveBatcher for the flush-channel/timer
// shape, simplified to the fixed (non-adaptive) trip conditions spec.md
// §4.5 names.
type Batcher struct {
	cfg BatcherConfig

	mu        sync.Mutex
	pending   []event.Event
	firstAt   time.Time
	timer     *time.Timer
	flushChan chan event.Array
	closed    bool
}

// NewBatcher starts a Batcher; Flushes arrive on the returned channel
// until Close is called.
func NewBatcher(cfg BatcherConfig) *Batcher {
	cfg.applyDefaults()
	b := &Batcher{cfg: cfg, flushChan: make(chan event.Array, 8)}
	return b
}

// Flushes returns the channel batches are delivered on.
func (b *Batcher) Flushes() <-chan event.Array { return b.flushChan }

// Add appends e to the pending batch, tripping a flush if any condition
// is met.
func (b *Batcher) Add(e event.Event) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.firstAt = time.Now()
		b.resetTimerLocked()
	}
	b.pending = append(b.pending, e)

	trip := len(b.pending) >= b.cfg.MaxEvents
	if !trip && b.cfg.MaxBytes > 0 {
		arr, _ := event.NewArray(b.pending)
		if b.cfg.Sizer(arr) >= b.cfg.MaxBytes {
			trip = true
		}
	}
	if trip {
		b.flushLocked()
	}
	b.mu.Unlock()
}

func (b *Batcher) resetTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.cfg.Timeout, func() {
		b.mu.Lock()
		if len(b.pending) > 0 {
			b.flushLocked()
		}
		b.mu.Unlock()
	})
}

// flushLocked must be called with b.mu held.
func (b *Batcher) flushLocked() {
	if len(b.pending) == 0 || b.closed {
		return
	}
	arr, err := event.NewArray(b.pending)
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
	}
	if err != nil {
		return
	}
	b.flushChan <- arr
}

// Flush forces out the current pending batch immediately, if non-empty.
func (b *Batcher) Flush() {
	b.mu.Lock()
	b.flushLocked()
	b.mu.Unlock()
}

// Close flushes any remaining pending events and closes the Flushes
// channel. No further Add calls are valid after Close.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.flushLocked()
	b.closed = true
	b.mu.Unlock()
	close(b.flushChan)
}
