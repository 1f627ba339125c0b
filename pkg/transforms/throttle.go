package transforms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/remap"
	"github.com/ssw/routeflow/pkg/topology"
)

// ThrottleConfig configures a Throttle transform: threshold events per
// key per window_secs, an optional key_field template grouping events
// into independent buckets, and an optional exclude condition that lets
// matching events bypass the limiter entirely. Grounded directly on
// original_source's src/transforms/throttle.rs ThrottleConfig.
type ThrottleConfig struct {
	Threshold  int           `yaml:"threshold"`
	WindowSecs time.Duration `yaml:"window_secs"`
	KeyField   string        `yaml:"key_field"`
	Exclude    string        `yaml:"exclude"`
}

// bucket tracks one key's token-bucket limiter plus the last time it was
// consulted, so Tick can prune buckets nothing has touched in a while
// the way the original's DashMap-backed limiter's retain_recent does.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is spec.md §4.6's Throttle tick-transform: a per-key token
// bucket (golang.org/x/time/rate.Limiter, sharded by key in a plain
// mutex-guarded map — the Go-idiomatic equivalent of the original's
// governor::RateLimiter over a DashMap), an exclude condition bypass,
// and a periodic Tick that sweeps idle keys so the map doesn't grow
// without bound across a long-running key space (client IDs, hostnames,
// ...).
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int

	window   time.Duration
	keyField *Template
	exclude  *remap.Condition

	logger    *logrus.Logger
	discarded int64
}

// NewThrottle builds a Throttle from cfg. threshold and window_secs must
// both be positive, matching the original's ConfigError::NonZero check.
func NewThrottle(cfg ThrottleConfig, logger *logrus.Logger) (*Throttle, error) {
	if cfg.Threshold <= 0 || cfg.WindowSecs <= 0 {
		return nil, fmt.Errorf("throttle: threshold and window_secs must both be positive")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	t := &Throttle{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(cfg.WindowSecs / time.Duration(cfg.Threshold)),
		burst:   cfg.Threshold,
		window:  cfg.WindowSecs,
		logger:  logger,
	}
	if cfg.KeyField != "" {
		t.keyField = NewTemplate(cfg.KeyField)
	}
	if cfg.Exclude != "" {
		program, err := remap.Compile(cfg.Exclude)
		if err != nil {
			return nil, fmt.Errorf("throttle: compiling exclude condition: %w", err)
		}
		t.exclude = remap.NewCondition(program)
	}
	return t, nil
}

// TickInterval runs the idle-bucket sweep at twice the window, matching
// the original's `Transform::tick(throttle, self.window_secs * 2)`.
func (t *Throttle) TickInterval() time.Duration { return 2 * t.window }

// Process admits or drops e depending on its key's current token-bucket
// state, unless exclude matches it first.
func (t *Throttle) Process(ctx context.Context, e event.Event, out topology.Output) error {
	if t.exclude != nil {
		bypass, checked, err := t.exclude.Check(e)
		if err != nil {
			t.logger.WithError(err).Warn("throttle: exclude condition evaluation failed, applying limiter")
		} else if bypass {
			return out.Emit(ctx, checked)
		}
	}

	key := t.keyField.Render(e)
	if !t.allow(key) {
		t.mu.Lock()
		t.discarded++
		t.mu.Unlock()
		t.logger.WithField("key", key).Debug("throttle: event discarded")
		return nil
	}
	return out.Emit(ctx, e)
}

// Tick prunes buckets whose limiter hasn't been consulted since the
// previous window, the equivalent of the original's retain_recent.
func (t *Throttle) Tick(ctx context.Context, out topology.Output) error {
	cutoff := time.Now().Add(-t.window)
	t.mu.Lock()
	for key, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
		}
	}
	t.mu.Unlock()
	return nil
}

// Discarded reports the number of events dropped by the limiter so far,
// for admin/metrics introspection.
func (t *Throttle) Discarded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discarded
}

func (t *Throttle) allow(key string) bool {
	now := time.Now()
	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now
	limiter := b.limiter
	t.mu.Unlock()

	return limiter.AllowN(now, 1)
}
