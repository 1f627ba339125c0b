// Package sinkdriver implements the shared request pipeline every sink
// integration runs its outgoing batches through: batching, adaptive
// concurrency, retry classification, and a health-gated circuit
// breaker, matching spec.md §4.5.
package sinkdriver

import (
	"context"
	"math"
	"sync"
	"time"
)

// ConcurrencySettings configures the AIMD controller. Zero values are
// replaced by defaults in NewConcurrencyLimiter, following the
// teacher's constructor-defaulting convention.
type ConcurrencySettings struct {
	// Initial is the starting permit count. Defaults to 1.
	Initial int
	// Max bounds how high the limit can climb. 0 means unbounded.
	Max int
	// DecreaseRatio multiplies the current limit on a retriable error.
	// Defaults to 0.5, matching the reference settings.
	DecreaseRatio float64
	// RTTDeviationScale widens or narrows the "was this a measurement"
	// acceptance band around the observed average RTT. Defaults to 2.0.
	RTTDeviationScale float64
}

func (s *ConcurrencySettings) applyDefaults() {
	if s.Initial == 0 {
		s.Initial = 1
	}
	if s.DecreaseRatio == 0 {
		s.DecreaseRatio = 0.5
	}
	if s.RTTDeviationScale == 0 {
		s.RTTDeviationScale = 2.0
	}
}

// ConcurrencyLimiter is a mutex/condvar-backed AIMD controller, the Go
// counterpart of the reference Waiting/Ready/Empty poll_ready state
// machine: Acquire blocks on a condition variable instead of polling a
// future, but the decision logic it gates -- whether a completed
// request counts as a capacity "measurement" -- is the same.
type ConcurrencyLimiter struct {
	settings ConcurrencySettings

	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inFlight int

	rttAvg   time.Duration
	rttCount int
}

// NewConcurrencyLimiter constructs a limiter starting at settings.Initial
// permits.
func NewConcurrencyLimiter(settings ConcurrencySettings) *ConcurrencyLimiter {
	settings.applyDefaults()
	c := &ConcurrencyLimiter{settings: settings, limit: settings.Initial}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Permit is returned by Acquire; call Release exactly once when the
// guarded request completes.
type Permit struct {
	acquired time.Time
}

// Acquire blocks until inFlight < limit, honoring ctx cancellation via a
// background watcher goroutine that wakes the condition variable.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context) (*Permit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight >= c.limit {
		stop := make(chan struct{})
		defer close(stop)
		if ctx.Done() != nil {
			go func() {
				select {
				case <-ctx.Done():
					c.cond.Broadcast()
				case <-stop:
				}
			}()
		}
		for c.inFlight >= c.limit {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			c.cond.Wait()
		}
	}
	c.inFlight++
	return &Permit{acquired: time.Now()}, nil
}

// Outcome reports what happened to the request this permit guarded.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetriableError
	OutcomeOtherError
)

// Release frees the permit and updates the AIMD limit. A success only
// grows the limit once an RTT baseline already exists to measure it
// against -- the very first success this limiter ever observes only
// establishes that baseline instead of growing the limit, and every
// success after that grows it if its RTT falls within the accepted
// deviation band of the running average. This follows purely from
// sequential successful measurements, matching the reference
// controller's increases_limit scenario in
// original_source/src/sinks/util/adaptive_concurrency/service.rs, which
// grows the limit after two purely sequential sends with no contention
// involved.
func (c *ConcurrencyLimiter) Release(p *Permit, outcome Outcome) {
	rtt := time.Since(p.acquired)

	c.mu.Lock()
	c.inFlight--

	switch outcome {
	case OutcomeRetriableError:
		newLimit := int(math.Floor(float64(c.limit) * c.settings.DecreaseRatio))
		if newLimit < 1 {
			newLimit = 1
		}
		if newLimit < c.limit {
			c.limit = newLimit
		}
	case OutcomeSuccess:
		if c.rttCount > 0 && c.isMeasurementLocked(rtt) {
			if c.settings.Max == 0 || c.limit < c.settings.Max {
				c.limit++
			}
		}
		c.updateRTTLocked(rtt)
	}

	c.mu.Unlock()
	c.cond.Broadcast()
}

// isMeasurementLocked reports whether rtt falls within the accepted
// deviation band of the running average. Only called once a baseline
// average already exists (c.rttCount > 0 at the call site in Release).
func (c *ConcurrencyLimiter) isMeasurementLocked(rtt time.Duration) bool {
	band := time.Duration(float64(c.rttAvg) * c.settings.RTTDeviationScale)
	return rtt <= c.rttAvg+band
}

func (c *ConcurrencyLimiter) updateRTTLocked(rtt time.Duration) {
	if c.rttCount == 0 {
		c.rttAvg = rtt
	} else {
		// exponentially weighted moving average, alpha = 0.25
		c.rttAvg = c.rttAvg + (rtt-c.rttAvg)/4
	}
	c.rttCount++
}

// Limit returns the current permit ceiling, exposed for metrics/tests.
func (c *ConcurrencyLimiter) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}
