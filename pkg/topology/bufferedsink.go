package topology

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ssw/routeflow/pkg/bufferdisk"
	"github.com/ssw/routeflow/pkg/event"
)

// BufferedSink decorates a Sink with an on-disk buffer placed in front of
// it, per spec.md §2.4/§4.4: Send only has to persist the batch, and a
// background reader goroutine (started by the topology runner via Run)
// drains the buffer into the wrapped Sink, retrying on failure instead
// of dropping, and acking once delivery succeeds.
type BufferedSink struct {
	buf    *bufferdisk.Buffer
	inner  Sink
	logger *logrus.Entry

	retryBase time.Duration
	retryMax  time.Duration
}

// NewBufferedSink wraps inner with buf. buf is owned by the returned
// BufferedSink: Run closes it once its drain loop exits.
func NewBufferedSink(buf *bufferdisk.Buffer, inner Sink, logger *logrus.Entry) *BufferedSink {
	return &BufferedSink{
		buf:       buf,
		inner:     inner,
		logger:    logger,
		retryBase: 100 * time.Millisecond,
		retryMax:  5 * time.Second,
	}
}

// Send persists batch to disk; the reader goroutine started by Run is
// what actually forwards it to the wrapped Sink.
func (b *BufferedSink) Send(ctx context.Context, batch event.Array) error {
	data, err := bufferdisk.EncodeArray(batch)
	if err != nil {
		return err
	}
	_, err = b.buf.Writer().Write(data)
	return err
}

// Run drains the disk buffer into the wrapped Sink until ctx is
// cancelled and the buffer has nothing left to read, closing the buffer
// on the way out so spec.md §4.4's "flushes and compacts on drop" holds
// regardless of shutdown path. A node running a BufferedSink is started
// by topology's runSink alongside the ordinary edge-to-Send loop (see
// runner.go); Send there only ever writes to disk, so Run is the only
// path that ever calls the wrapped Sink.
func (b *BufferedSink) Run(ctx context.Context) error {
	r := b.buf.Reader()
	a := b.buf.Acker()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = b.buf.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		key, data, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, bufferdisk.ErrClosed) {
				_ = a.Flush()
				return nil
			}
			return err
		}

		arr, err := bufferdisk.DecodeArray(data)
		if err != nil {
			// Matches spec.md's disk-buffer failure model: a corrupt
			// record is skipped with a logged error, not fatal.
			if b.logger != nil {
				b.logger.WithError(err).WithField("key", key).Error("bufferdisk: corrupt record skipped")
			}
			if err := a.Ack(key); err != nil && b.logger != nil {
				b.logger.WithError(err).Warn("bufferdisk: ack of corrupt record failed")
			}
			continue
		}

		if !b.deliver(ctx, arr) {
			// ctx was cancelled mid-retry: leave the record unacked so a
			// fresh Reader redelivers it after restart.
			return nil
		}
		if err := a.Ack(key); err != nil && b.logger != nil {
			b.logger.WithError(err).Warn("bufferdisk: ack failed")
		}
	}
}

// deliver retries inner.Send with capped exponential backoff until it
// succeeds or ctx is cancelled, returning false in the latter case.
func (b *BufferedSink) deliver(ctx context.Context, arr event.Array) bool {
	backoff := b.retryBase
	for {
		if err := b.inner.Send(ctx, arr); err == nil {
			return true
		} else if b.logger != nil {
			b.logger.WithError(err).Warn("buffered sink delivery failed, retrying")
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > b.retryMax {
			backoff = b.retryMax
		}
	}
}
