package sinkdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthGateStartsClosed(t *testing.T) {
	g := NewHealthGate(HealthConfig{})
	assert.Equal(t, HealthClosed, g.State())
}

func TestHealthGateTripsOpenAfterConsecutiveErrors(t *testing.T) {
	g := NewHealthGate(HealthConfig{InitialBackoff: time.Millisecond})
	ctx := context.Background()

	for i := 0; i < UnhealthyAmountOfErrors; i++ {
		p, err := g.Admit(ctx)
		require.NoError(t, err)
		g.Resolve(p, false)
	}

	assert.Equal(t, HealthOpen, g.State())
}

func TestHealthGateHalfOpenProbeRecoversToClosed(t *testing.T) {
	g := NewHealthGate(HealthConfig{InitialBackoff: time.Millisecond})
	ctx := context.Background()

	for i := 0; i < UnhealthyAmountOfErrors; i++ {
		p, err := g.Admit(ctx)
		require.NoError(t, err)
		g.Resolve(p, false)
	}
	require.Equal(t, HealthOpen, g.State())

	p, err := g.Admit(ctx)
	require.NoError(t, err)
	g.Resolve(p, true)

	assert.Equal(t, HealthClosed, g.State())
}

func TestHealthGateHalfOpenProbeFailureDoublesBackoff(t *testing.T) {
	g := NewHealthGate(HealthConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Hour})
	ctx := context.Background()

	for i := 0; i < UnhealthyAmountOfErrors; i++ {
		p, err := g.Admit(ctx)
		require.NoError(t, err)
		g.Resolve(p, false)
	}

	p, err := g.Admit(ctx)
	require.NoError(t, err)
	g.Resolve(p, false)

	assert.Equal(t, HealthOpen, g.State())
	assert.Equal(t, 2*time.Millisecond, g.backoff)
}

func TestHealthGateOnlyOneHalfOpenProbeAdmitted(t *testing.T) {
	g := NewHealthGate(HealthConfig{InitialBackoff: time.Millisecond})
	ctx := context.Background()

	for i := 0; i < UnhealthyAmountOfErrors; i++ {
		p, err := g.Admit(ctx)
		require.NoError(t, err)
		g.Resolve(p, false)
	}

	time.Sleep(2 * time.Millisecond)

	admitted := make(chan *Probe, 2)
	for i := 0; i < 2; i++ {
		go func() {
			p, _ := g.Admit(ctx)
			admitted <- p
		}()
	}

	p1 := <-admitted
	require.True(t, p1.isProbe)
	g.Resolve(p1, true)

	p2 := <-admitted
	assert.False(t, p2.isProbe, "the second caller must not have claimed the probe slot concurrently")
}
