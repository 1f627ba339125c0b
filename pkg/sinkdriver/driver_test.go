package sinkdriver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ssw/routeflow/pkg/codec"
	"github.com/ssw/routeflow/pkg/event"
)

type fakeSender struct {
	status  int32
	calls   int32
	fail    int32 // number of leading calls that return 503 before status
}

func (f *fakeSender) Send(ctx context.Context, body []byte) (int, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.fail) {
		return 503, nil
	}
	return int(atomic.LoadInt32(&f.status)), nil
}

func newTestDriver(sender RequestSender) *Driver {
	return &Driver{
		Encoder:     &codec.Encoder{Serializer: codec.JSONSerializer{}},
		Concurrency: NewConcurrencyLimiter(ConcurrencySettings{Initial: 4}),
		Retry: &RetryPolicy{
			Classifier:   HTTPRetryClassifier{},
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
		Health: NewHealthGate(HealthConfig{InitialBackoff: time.Millisecond}),
		Sender: sender,
	}
}

func TestDriverDispatchSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &fakeSender{status: 200}
	d := newTestDriver(sender)

	arr, err := event.NewArray([]event.Event{newTestLog()})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), arr)
	require.NoError(t, err)
	assert.Equal(t, HealthClosed, d.Health.State())
}

func TestDriverDispatchRetriesThenSucceeds(t *testing.T) {
	sender := &fakeSender{status: 200, fail: 2}
	d := newTestDriver(sender)

	arr, err := event.NewArray([]event.Event{newTestLog()})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), arr)
	require.NoError(t, err)
	assert.Equal(t, int32(3), sender.calls)
}

func TestDriverDispatchNonRetriableFails(t *testing.T) {
	sender := &fakeSender{status: 404}
	d := newTestDriver(sender)

	arr, err := event.NewArray([]event.Event{newTestLog()})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), arr)
	require.Error(t, err)
	var nre *NonRetriableError
	require.ErrorAs(t, err, &nre)
}

func TestDriverDispatchTripsHealthGateAfterRepeatedFailures(t *testing.T) {
	sender := &fakeSender{status: 503}
	d := newTestDriver(sender)
	d.Retry.MaxAttempts = 1

	arr, err := event.NewArray([]event.Event{newTestLog()})
	require.NoError(t, err)

	for i := 0; i < UnhealthyAmountOfErrors; i++ {
		_ = d.Dispatch(context.Background(), arr)
	}

	assert.Equal(t, HealthOpen, d.Health.State())
}
