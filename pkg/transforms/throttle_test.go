package transforms

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

type captureOutput struct {
	events []event.Event
}

func (c *captureOutput) Emit(ctx context.Context, e event.Event) error {
	c.events = append(c.events, e)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func logWith(fields map[string]value.Value) event.Event {
	return event.NewLog(event.NewLogEvent(value.Object(fields)), event.NewMetadata("test", "t"))
}

func TestThrottleAllowsUpToThresholdPerWindow(t *testing.T) {
	th, err := NewThrottle(ThrottleConfig{Threshold: 2, WindowSecs: 200 * time.Millisecond}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	assert.Len(t, out.events, 2)

	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	assert.Len(t, out.events, 2)
	assert.Equal(t, int64(1), th.Discarded())

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	assert.Len(t, out.events, 3)
}

func TestThrottleExcludeBypassesLimiter(t *testing.T) {
	th, err := NewThrottle(ThrottleConfig{
		Threshold:  1,
		WindowSecs: time.Second,
		Exclude:    "exists(.special)",
	}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	assert.Len(t, out.events, 1)

	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	assert.Len(t, out.events, 1)

	special := logWith(map[string]value.Value{"special": value.String("true")})
	require.NoError(t, th.Process(context.Background(), special, out))
	assert.Len(t, out.events, 2)
}

func TestThrottleKeyFieldBucketsIndependently(t *testing.T) {
	th, err := NewThrottle(ThrottleConfig{
		Threshold:  1,
		WindowSecs: time.Second,
		KeyField:   "{{ bucket }}",
	}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	logA := logWith(map[string]value.Value{"bucket": value.String("a")})
	logB := logWith(map[string]value.Value{"bucket": value.String("b")})

	require.NoError(t, th.Process(context.Background(), logA, out))
	require.NoError(t, th.Process(context.Background(), logB, out))
	assert.Len(t, out.events, 2)

	logA2 := logWith(map[string]value.Value{"bucket": value.String("a")})
	require.NoError(t, th.Process(context.Background(), logA2, out))
	assert.Len(t, out.events, 2)
}

func TestThrottleTickPrunesIdleBuckets(t *testing.T) {
	th, err := NewThrottle(ThrottleConfig{Threshold: 1, WindowSecs: 10 * time.Millisecond}, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}

	require.NoError(t, th.Process(context.Background(), logWith(nil), out))
	th.mu.Lock()
	before := len(th.buckets)
	th.mu.Unlock()
	assert.Equal(t, 1, before)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, th.Tick(context.Background(), out))

	th.mu.Lock()
	after := len(th.buckets)
	th.mu.Unlock()
	assert.Equal(t, 0, after)
}

func TestNewThrottleRejectsNonPositiveConfig(t *testing.T) {
	_, err := NewThrottle(ThrottleConfig{Threshold: 0, WindowSecs: time.Second}, quietLogger())
	assert.Error(t, err)

	_, err = NewThrottle(ThrottleConfig{Threshold: 1, WindowSecs: 0}, quietLogger())
	assert.Error(t, err)
}
