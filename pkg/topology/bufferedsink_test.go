package topology

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/bufferdisk"
	"github.com/ssw/routeflow/pkg/event"
)

// recordingSink collects every delivered batch's total event count under
// a mutex, and can be made to fail its first N deliveries to exercise
// BufferedSink's retry path.
type recordingSink struct {
	mu        sync.Mutex
	delivered int
	failFirst int32
}

func (s *recordingSink) Send(ctx context.Context, batch event.Array) error {
	if atomic.AddInt32(&s.failFirst, -1) >= 0 {
		return io.ErrUnexpectedEOF
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered += batch.Len()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func newTestBufferedSink(t *testing.T, inner Sink) *BufferedSink {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	buf, err := bufferdisk.New(bufferdisk.Config{Path: t.TempDir()}, logger)
	require.NoError(t, err)
	return NewBufferedSink(buf, inner, logger.WithField("test", "bufferedsink"))
}

func TestBufferedSinkDeliversWrittenBatchesToInnerSink(t *testing.T) {
	inner := &recordingSink{}
	bs := newTestBufferedSink(t, inner)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- bs.Run(ctx) }()

	require.NoError(t, bs.Send(context.Background(), newTestArray(3)))
	require.NoError(t, bs.Send(context.Background(), newTestArray(2)))

	require.Eventually(t, func() bool { return inner.count() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}
}

func TestBufferedSinkRetriesUntilInnerSinkSucceeds(t *testing.T) {
	inner := &recordingSink{failFirst: 2}
	bs := newTestBufferedSink(t, inner)
	bs.retryBase = time.Millisecond
	bs.retryMax = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bs.Run(ctx) }()

	require.NoError(t, bs.Send(context.Background(), newTestArray(1)))

	require.Eventually(t, func() bool { return inner.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBufferedSinkSkipsCorruptRecordWithoutBlockingLaterRecords(t *testing.T) {
	inner := &recordingSink{}
	bs := newTestBufferedSink(t, inner)

	_, err := bs.buf.Writer().Write([]byte("not a valid batch payload"))
	require.NoError(t, err)
	require.NoError(t, bs.Send(context.Background(), newTestArray(4)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bs.Run(ctx) }()

	require.Eventually(t, func() bool { return inner.count() == 4 }, time.Second, 5*time.Millisecond)
}

func TestBufferedSinkRunStopsOnCtxCancelEvenWhenEmpty(t *testing.T) {
	inner := &recordingSink{}
	bs := newTestBufferedSink(t, inner)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- bs.Run(ctx) }()

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation on an empty buffer")
	}
}
