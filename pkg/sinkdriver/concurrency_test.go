package sinkdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyStartsAtOne(t *testing.T) {
	c := NewConcurrencyLimiter(ConcurrencySettings{})
	assert.Equal(t, 1, c.Limit())
}

// TestFirstSuccessEstablishesBaselineWithoutGrowing mirrors the
// reference increases_limit scenario's first send/respond pair: with no
// RTT baseline yet to measure against, a success only records that
// baseline and does not grow the limit.
func TestFirstSuccessEstablishesBaselineWithoutGrowing(t *testing.T) {
	c := NewConcurrencyLimiter(ConcurrencySettings{Initial: 2})
	ctx := context.Background()

	p, err := c.Acquire(ctx)
	require.NoError(t, err)
	c.Release(p, OutcomeSuccess)
	assert.Equal(t, 2, c.Limit(), "the first success only establishes the RTT baseline")
}

// TestSequentialSuccessesGrowLimit mirrors the reference
// increases_limit scenario: two purely sequential, non-contended
// send/respond pairs grow the limit once an RTT baseline exists to
// measure the second against.
func TestSequentialSuccessesGrowLimit(t *testing.T) {
	c := NewConcurrencyLimiter(ConcurrencySettings{Initial: 1})
	ctx := context.Background()

	p1, err := c.Acquire(ctx)
	require.NoError(t, err)
	c.Release(p1, OutcomeSuccess)
	assert.Equal(t, 1, c.Limit(), "the first success only establishes the RTT baseline")

	p2, err := c.Acquire(ctx)
	require.NoError(t, err)
	c.Release(p2, OutcomeSuccess)
	assert.Equal(t, 2, c.Limit(), "a second success within the RTT deviation band grows the limit")
}

func TestRapidDecreaseOnRetriableError(t *testing.T) {
	c := NewConcurrencyLimiter(ConcurrencySettings{Initial: 10, DecreaseRatio: 0.5})
	ctx := context.Background()

	p, err := c.Acquire(ctx)
	require.NoError(t, err)
	c.Release(p, OutcomeRetriableError)

	assert.Equal(t, 5, c.Limit())
}

func TestDecreaseNeverGoesBelowOne(t *testing.T) {
	c := NewConcurrencyLimiter(ConcurrencySettings{Initial: 1, DecreaseRatio: 0.5})
	ctx := context.Background()

	p, err := c.Acquire(ctx)
	require.NoError(t, err)
	c.Release(p, OutcomeRetriableError)

	assert.Equal(t, 1, c.Limit())
}

// TestAcquireUnblocksWaitersOnRelease exercises the condition-variable
// wakeup path: a second Acquire blocked at the limit must be woken and
// granted a permit once the first holder releases it.
func TestAcquireUnblocksWaitersOnRelease(t *testing.T) {
	c := NewConcurrencyLimiter(ConcurrencySettings{Initial: 1})
	ctx := context.Background()

	p1, err := c.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan *Permit, 1)
	go func() {
		p2, err := c.Acquire(ctx)
		require.NoError(t, err)
		acquired <- p2
	}()

	time.Sleep(20 * time.Millisecond) // let the second Acquire start waiting
	c.Release(p1, OutcomeSuccess)

	p2 := <-acquired
	c.Release(p2, OutcomeSuccess)

	assert.GreaterOrEqual(t, c.Limit(), 1)
}
