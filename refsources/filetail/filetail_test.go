package filetail

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

type captureOutput struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureOutput) Emit(ctx context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureOutput) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSourceTailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	src, err := New(Config{Paths: []string{path}, Seek: SeekBeginning}, quietLogger())
	require.NoError(t, err)

	out := &captureOutput{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	require.Eventually(t, func() bool { return out.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return out.count() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	msg, ok := out.events[0].Get(value.ParsePath("message"))
	require.True(t, ok)
	str, ok := msg.StringValue()
	require.True(t, ok)
	assert.Equal(t, "first", str)
}

func TestNewRejectsEmptyPaths(t *testing.T) {
	_, err := New(Config{}, quietLogger())
	assert.Error(t, err)
}
