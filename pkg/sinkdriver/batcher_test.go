package sinkdriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

func newTestLog() event.Event {
	return event.NewLog(event.NewLogEvent(value.Object(nil)), event.NewMetadata("test", "t1"))
}

func TestBatcherTripsOnMaxEvents(t *testing.T) {
	b := NewBatcher(BatcherConfig{MaxEvents: 3, Timeout: time.Hour})
	defer b.Close()

	for i := 0; i < 3; i++ {
		b.Add(newTestLog())
	}

	select {
	case arr := <-b.Flushes():
		assert.Equal(t, 3, arr.Len())
	case <-time.After(time.Second):
		t.Fatal("expected a flush on MaxEvents trip")
	}
}

func TestBatcherTripsOnTimeout(t *testing.T) {
	b := NewBatcher(BatcherConfig{MaxEvents: 1000, Timeout: 20 * time.Millisecond})
	defer b.Close()

	b.Add(newTestLog())

	select {
	case arr := <-b.Flushes():
		assert.Equal(t, 1, arr.Len())
	case <-time.After(time.Second):
		t.Fatal("expected a flush on timeout trip")
	}
}

func TestBatcherFlushForcesPartialBatch(t *testing.T) {
	b := NewBatcher(BatcherConfig{MaxEvents: 1000, Timeout: time.Hour})
	defer b.Close()

	b.Add(newTestLog())
	b.Flush()

	select {
	case arr := <-b.Flushes():
		assert.Equal(t, 1, arr.Len())
	case <-time.After(time.Second):
		t.Fatal("expected Flush to force out the pending batch")
	}
}

func TestBatcherCloseFlushesRemainder(t *testing.T) {
	b := NewBatcher(BatcherConfig{MaxEvents: 1000, Timeout: time.Hour})
	b.Add(newTestLog())
	b.Close()

	arr, ok := <-b.Flushes()
	require.True(t, ok)
	assert.Equal(t, 1, arr.Len())

	_, ok = <-b.Flushes()
	assert.False(t, ok, "channel must be closed after Close's remainder flush")
}
