// Package filetail is a reference Source: it watches one or more files
// on disk with fsnotify and emits one log event per line appended to
// them, following truncation (seek back to start) and recreation
// (rotation) the same way the teacher's pkg/hotreload.ConfigReloader
// watches its config files, generalized from a single-file reload
// callback to a per-line topology.Output stream.
package filetail

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/topology"
	"github.com/ssw/routeflow/pkg/value"
)

// SeekStrategy controls where a newly-opened tailer starts reading
// from.
type SeekStrategy string

const (
	SeekBeginning SeekStrategy = "beginning"
	SeekEnd       SeekStrategy = "end"
)

// Config configures a Source watching Paths.
type Config struct {
	Paths []string     `yaml:"paths"`
	Seek  SeekStrategy `yaml:"seek"`

	// CheckpointPath, if set, persists each path's read offset to disk
	// on CheckpointInterval (default 10s) so a restart resumes where it
	// left off instead of re-applying Seek. A checkpoint is trusted
	// only if the file hasn't shrunk below the recorded offset since.
	CheckpointPath     string        `yaml:"checkpoint_path"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// Source implements topology.Source, watching every configured path
// with fsnotify and emitting a log event per line until ctx is
// cancelled.
type Source struct {
	cfg        Config
	logger     *logrus.Logger
	checkpoint *checkpointStore
}

// New builds a Source. At least one path must be configured.
func New(cfg Config, logger *logrus.Logger) (*Source, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("filetail: no paths configured")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 10 * time.Second
	}

	checkpoint := newCheckpointStore(cfg.CheckpointPath, logger.WithField("component", "filetail-checkpoint"))
	if err := checkpoint.load(); err != nil {
		return nil, err
	}

	return &Source{cfg: cfg, logger: logger, checkpoint: checkpoint}, nil
}

// Run watches every configured path until ctx is cancelled.
func (s *Source) Run(ctx context.Context, out topology.Output) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(s.cfg.Paths))

	done := make(chan struct{})
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		s.checkpoint.run(done, s.cfg.CheckpointInterval)
	}()

	for _, path := range s.cfg.Paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := s.watch(ctx, path, out); err != nil {
				errs <- err
			}
		}(path)
	}

	wg.Wait()
	close(done)
	<-flushed
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// watch opens path, optionally seeking to its current end, then
// follows appended lines via fsnotify until ctx is cancelled. A
// truncation (current size smaller than the last known offset) or a
// rename/remove+recreate both cause a fresh open at offset 0, the same
// "treat it as a new file" rule nxadm/tail-style tailers apply.
func (s *Source) watch(ctx context.Context, path string, out topology.Output) error {
	logger := s.logger.WithField("path", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filetail: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("filetail: watching %s: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path, logger: logger, checkpoint: s.checkpoint}
	if err := t.openInitial(s.cfg.Seek); err != nil {
		logger.WithError(err).Debug("filetail: initial open failed, will retry on create event")
	}
	defer t.close()

	if err := t.drain(ctx, out); err != nil {
		return err
	}

	debounce := time.NewTicker(50 * time.Millisecond)
	defer debounce.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != path {
				continue
			}
			dirty = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("filetail: watcher error")

		case <-debounce.C:
			if !dirty {
				continue
			}
			dirty = false
			if err := t.reconcile(); err != nil {
				logger.WithError(err).Debug("filetail: reconcile failed, will retry")
				continue
			}
			if err := t.drain(ctx, out); err != nil {
				return err
			}
		}
	}
}

// tailer holds the open file handle and read position for one watched
// path.
type tailer struct {
	path       string
	logger     *logrus.Entry
	file       *os.File
	reader     *bufio.Reader
	offset     int64
	checkpoint *checkpointStore
}

// openInitial picks the starting offset for a freshly watched path: a
// trusted checkpoint takes priority over the configured Seek strategy,
// since a resuming process should never silently re-deliver or skip
// lines just because it restarted.
func (t *tailer) openInitial(seek SeekStrategy) error {
	if t.checkpoint != nil {
		if fi, err := os.Stat(t.path); err == nil {
			if offset, ok := t.checkpoint.resumeOffset(t.path, fi.Size()); ok {
				return t.open(offset)
			}
		}
	}
	if seek == SeekEnd {
		return t.openAtEnd()
	}
	return t.openAtStart()
}

func (t *tailer) openAtStart() error { return t.open(0) }

func (t *tailer) openAtEnd() error {
	fi, err := os.Stat(t.path)
	if err != nil {
		return err
	}
	return t.open(fi.Size())
}

func (t *tailer) open(offset int64) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return err
	}
	t.file = f
	t.offset = offset
	t.reader = bufio.NewReader(f)
	return nil
}

func (t *tailer) close() {
	if t.file != nil {
		t.file.Close()
	}
}

// reconcile reopens the file if it was truncated or replaced (rotated),
// otherwise leaves the existing handle in place.
func (t *tailer) reconcile() error {
	fi, err := os.Stat(t.path)
	if err != nil {
		return err
	}
	if t.file == nil {
		return t.openAtStart()
	}
	if cur, err := t.file.Stat(); err == nil && !os.SameFile(cur, fi) {
		t.close()
		return t.openAtStart()
	}
	if fi.Size() < t.offset {
		t.close()
		return t.openAtStart()
	}
	return nil
}

// drain reads every complete line currently available and emits one
// event per line, leaving a trailing partial line buffered for the next
// call.
func (t *tailer) drain(ctx context.Context, out topology.Output) error {
	if t.file == nil {
		return nil
	}
	for {
		line, err := t.reader.ReadBytes('\n')
		if len(line) > 0 && err == nil {
			t.offset += int64(len(line))
			text := string(bytes.TrimRight(line, "\n\r"))
			if emitErr := out.Emit(ctx, newLineEvent(t.path, text, time.Now())); emitErr != nil {
				return emitErr
			}
			continue
		}
		if err == io.EOF {
			// Put back whatever partial line was read by re-seeking to
			// the last confirmed offset; the next drain call re-reads it
			// once more data has arrived.
			if len(line) > 0 {
				if _, seekErr := t.file.Seek(t.offset, io.SeekStart); seekErr != nil {
					return seekErr
				}
				t.reader = bufio.NewReader(t.file)
			}
			if t.checkpoint != nil {
				t.checkpoint.update(t.path, t.offset, t.offset)
			}
			return nil
		}
		return err
	}
}

func newLineEvent(path, text string, at time.Time) event.Event {
	body := value.Object(map[string]value.Value{
		"message": value.String(text),
		"file":    value.String(path),
	})
	md := event.NewMetadata("filetail", path)
	_ = md.Insert(value.ParseMetadataPath("ingested_at"), value.Timestamp(at))
	return event.NewLog(event.NewLogEvent(body), md)
}
