package filetail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointStoreRoundTripsThroughFlushAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	store := newCheckpointStore(path, nil)
	store.update("/var/log/app.log", 42, 100)
	require.NoError(t, store.flush())

	reloaded := newCheckpointStore(path, nil)
	require.NoError(t, reloaded.load())

	offset, ok := reloaded.resumeOffset("/var/log/app.log", 100)
	require.True(t, ok)
	assert.Equal(t, int64(42), offset)
}

func TestCheckpointStoreRejectsOffsetBeyondCurrentSize(t *testing.T) {
	store := newCheckpointStore("", nil)
	store.update("/var/log/app.log", 500, 500)

	_, ok := store.resumeOffset("/var/log/app.log", 100)
	assert.False(t, ok, "a checkpoint past the file's current size must not be trusted")
}

func TestCheckpointStoreFlushIsNoopWithoutPath(t *testing.T) {
	store := newCheckpointStore("", nil)
	store.update("a", 1, 1)
	assert.NoError(t, store.flush())
}

func TestSourceResumesFromCheckpointAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	checkpointPath := filepath.Join(dir, "checkpoint.json")
	require.NoError(t, os.WriteFile(logPath, []byte("first\nsecond\n"), 0o644))

	cfg := Config{Paths: []string{logPath}, Seek: SeekBeginning, CheckpointPath: checkpointPath, CheckpointInterval: 10 * time.Millisecond}

	src, err := New(cfg, quietLogger())
	require.NoError(t, err)
	out := &captureOutput{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	require.Eventually(t, func() bool { return out.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	_, err = os.Stat(checkpointPath)
	require.NoError(t, err, "checkpoint file should exist after shutdown flush")

	require.NoError(t, os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644))

	src2, err := New(cfg, quietLogger())
	require.NoError(t, err)
	out2 := &captureOutput{}
	ctx2, cancel2 := context.WithCancel(context.Background())
	done2 := make(chan error, 1)
	go func() { done2 <- src2.Run(ctx2, out2) }()

	require.Eventually(t, func() bool { return out2.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel2()
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}

	assert.Equal(t, 1, out2.count(), "resumed tailer should only emit the line appended after the checkpointed offset")
}
