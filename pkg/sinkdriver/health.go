package sinkdriver

import (
	"context"
	"sync"
	"time"
)

// HealthState enumerates the three circuit-breaker states, matching
// original_source/src/sinks/util/service/health.rs exactly: Closed
// passes every request, Open rejects everything until a backoff timer
// elapses, and HalfOpen admits exactly one probe request before deciding
// whether to return to Closed or reopen with a longer backoff.
type HealthState int

const (
	HealthClosed HealthState = iota
	HealthOpen
	HealthHalfOpen
)

const (
	// DefaultInitialBackoff matches RETRY_INITIAL_BACKOFF_SECONDS_DEFAULT.
	DefaultInitialBackoff = time.Second
	// DefaultMaxBackoff matches RETRY_MAX_DURATION_SECONDS_DEFAULT.
	DefaultMaxBackoff = time.Hour
	// UnhealthyAmountOfErrors matches UNHEALTHY_AMOUNT_OF_ERRORS: the
	// number of consecutive unhealthy outcomes in the Closed state that
	// trips the gate to Open.
	UnhealthyAmountOfErrors = 5
)

// HealthConfig configures a HealthGate. Zero values fall back to the
// reference defaults above.
type HealthConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *HealthConfig) applyDefaults() {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
}

// HealthGate is the request-admission half of the sink driver's circuit
// breaker. Resolve records a completed request's outcome; Admit
// blocks until a request may proceed (immediately in Closed, after the
// backoff timer in Open, and for exactly one caller at a time in
// HalfOpen).
type HealthGate struct {
	cfg HealthConfig

	mu             sync.Mutex
	state          HealthState
	backoff        time.Duration
	openUntil      time.Time
	halfOpenClaimed bool
	healthyCount   int
	unhealthyCount int
}

// NewHealthGate constructs a gate starting Closed.
func NewHealthGate(cfg HealthConfig) *HealthGate {
	cfg.applyDefaults()
	return &HealthGate{cfg: cfg, state: HealthClosed, backoff: cfg.InitialBackoff}
}

// Probe is returned by Admit; the caller must call Resolve exactly once
// with the outcome of the request it guarded. isProbe reports whether
// this caller holds the single HalfOpen probe slot.
type Probe struct {
	isProbe bool
}

// Admit blocks until this caller may send a request, per the state
// machine above.
func (g *HealthGate) Admit(ctx context.Context) (*Probe, error) {
	for {
		g.mu.Lock()
		switch g.state {
		case HealthClosed:
			g.mu.Unlock()
			return &Probe{}, nil
		case HealthOpen:
			wait := time.Until(g.openUntil)
			if wait <= 0 {
				g.state = HealthHalfOpen
				g.halfOpenClaimed = false
				g.mu.Unlock()
				continue
			}
			g.mu.Unlock()
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case HealthHalfOpen:
			if !g.halfOpenClaimed {
				g.halfOpenClaimed = true
				g.mu.Unlock()
				return &Probe{isProbe: true}, nil
			}
			// another caller already holds the probe slot; this
			// caller waits for the state to resolve one way or
			// another rather than sending a second concurrent probe.
			g.mu.Unlock()
			select {
			case <-time.After(10 * time.Millisecond):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// Resolve reports whether the admitted request was healthy. Only the
// HalfOpen probe's outcome can transition the state; a Closed-state
// request's outcome feeds the healthy/unhealthy counters that decide
// whether Closed itself should trip to Open.
func (g *HealthGate) Resolve(p *Probe, healthy bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case HealthHalfOpen:
		if !p.isProbe {
			return
		}
		if healthy {
			g.state = HealthClosed
			g.backoff = g.cfg.InitialBackoff
			g.healthyCount = 0
			g.unhealthyCount = 0
		} else {
			g.backoff *= 2
			if g.backoff > g.cfg.MaxBackoff {
				g.backoff = g.cfg.MaxBackoff
			}
			g.state = HealthOpen
			g.openUntil = time.Now().Add(g.backoff)
		}
	case HealthClosed:
		if healthy {
			g.healthyCount++
			g.unhealthyCount = 0
		} else {
			g.unhealthyCount++
			g.healthyCount = 0
			if g.unhealthyCount >= UnhealthyAmountOfErrors {
				g.state = HealthOpen
				g.openUntil = time.Now().Add(g.backoff)
			}
		}
	case HealthOpen:
		// a request that was admitted just as the timer expired but
		// resolves after another caller already flipped state to
		// HalfOpen; ignore, the next Admit cycle will re-evaluate.
	}
}

// State returns the current state, for metrics/introspection.
func (g *HealthGate) State() HealthState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
