package transforms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/value"
)

func TestDedupeDropsRepeatedWholeBodyWithinTTL(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{TTL: time.Hour}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	msg := logWith(map[string]value.Value{"msg": value.String("disk full")})
	require.NoError(t, d.Process(context.Background(), msg, out))
	require.NoError(t, d.Process(context.Background(), logWith(map[string]value.Value{"msg": value.String("disk full")}), out))

	assert.Len(t, out.events, 1)
	assert.Equal(t, int64(1), d.Discarded())
}

func TestDedupeReadmitsAfterTTLExpires(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{TTL: 20 * time.Millisecond}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	entry := logWith(map[string]value.Value{"msg": value.String("retry")})
	require.NoError(t, d.Process(context.Background(), entry, out))
	require.NoError(t, d.Process(context.Background(), entry, out))
	assert.Len(t, out.events, 1)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, d.Process(context.Background(), entry, out))
	assert.Len(t, out.events, 2)
}

func TestDedupeFieldsKeyOnlyNamedFields(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{TTL: time.Hour, Fields: []string{".code"}}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	first := logWith(map[string]value.Value{"code": value.String("E42"), "detail": value.String("a")})
	second := logWith(map[string]value.Value{"code": value.String("E42"), "detail": value.String("b")})

	require.NoError(t, d.Process(context.Background(), first, out))
	require.NoError(t, d.Process(context.Background(), second, out))

	assert.Len(t, out.events, 1)
	assert.Equal(t, int64(1), d.Discarded())
}

func TestDedupeDistinctBodiesBothPass(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{TTL: time.Hour}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	require.NoError(t, d.Process(context.Background(), logWith(map[string]value.Value{"msg": value.String("a")}), out))
	require.NoError(t, d.Process(context.Background(), logWith(map[string]value.Value{"msg": value.String("b")}), out))

	assert.Len(t, out.events, 2)
	assert.Equal(t, int64(0), d.Discarded())
}

func TestDedupeTickExpiresStaleEntries(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{TTL: 10 * time.Millisecond}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	require.NoError(t, d.Process(context.Background(), logWith(map[string]value.Value{"msg": value.String("x")}), out))
	d.mu.Lock()
	before := len(d.cache)
	d.mu.Unlock()
	assert.Equal(t, 1, before)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Tick(context.Background(), out))

	d.mu.Lock()
	after := len(d.cache)
	d.mu.Unlock()
	assert.Equal(t, 0, after)
}

func TestDedupeTickEvictsDownToThresholdWhenOverCapacity(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{
		TTL:              time.Hour,
		MaxCacheSize:     10,
		CleanupThreshold: 0.5,
	}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	for i := 0; i < 6; i++ {
		key := string(rune('a' + i))
		require.NoError(t, d.Process(context.Background(), logWith(map[string]value.Value{"msg": value.String(key)}), out))
	}
	d.mu.Lock()
	before := len(d.cache)
	d.mu.Unlock()
	assert.Equal(t, 6, before)

	require.NoError(t, d.Tick(context.Background(), out))

	d.mu.Lock()
	after := len(d.cache)
	d.mu.Unlock()
	assert.Equal(t, 4, after)
}

func TestNewDedupeFillsDefaults(t *testing.T) {
	d, err := NewDedupe(DedupeConfig{}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 100000, d.cfg.MaxCacheSize)
	assert.Equal(t, time.Hour, d.cfg.TTL)
	assert.Equal(t, 10*time.Minute, d.cfg.CleanupInterval)
	assert.Equal(t, 0.8, d.cfg.CleanupThreshold)
}
