package filetail

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// offsetRecord is one path's persisted read cursor, the fields
// filetail needs to decide whether a reopened file can resume in place
// or must be treated as new.
type offsetRecord struct {
	Offset       int64     `json:"offset"`
	Size         int64     `json:"size"`
	LastFlushed  time.Time `json:"last_flushed"`
}

// checkpointStore is a trimmed adaptation of
// pkg/positions.FilePositionManager/CheckpointManager: a
// mutex-guarded map of per-path offsets, flushed to a single JSON
// file on an interval via a temp-file-plus-rename swap so a crash
// mid-write never corrupts the previous snapshot. The teacher's
// separate gzip'd rolling-checkpoint history and container-position
// tracking are dropped — this source only ever needs "where did we
// leave off on this path", not a restorable history of snapshots.
type checkpointStore struct {
	mu       sync.Mutex
	path     string
	records  map[string]offsetRecord
	dirty    bool
	logger   *logrus.Entry
}

func newCheckpointStore(path string, logger *logrus.Entry) *checkpointStore {
	return &checkpointStore{
		path:    path,
		records: make(map[string]offsetRecord),
		logger:  logger,
	}
}

func (c *checkpointStore) load() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("filetail: reading checkpoint %s: %w", c.path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Unmarshal(data, &c.records)
}

// resumeOffset reports the offset a tailer for path should resume
// from, and whether a checkpoint existed at all. The caller still
// verifies the file hasn't shrunk below that offset before trusting
// it (rotation/truncation invalidates a stale checkpoint).
func (c *checkpointStore) resumeOffset(path string, currentSize int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[path]
	if !ok || rec.Offset > currentSize {
		return 0, false
	}
	return rec.Offset, true
}

func (c *checkpointStore) update(path string, offset, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[path] = offsetRecord{Offset: offset, Size: size, LastFlushed: time.Now()}
	c.dirty = true
}

func (c *checkpointStore) flush() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]offsetRecord, len(c.records))
	for k, v := range c.records {
		snapshot[k] = v
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("filetail: marshaling checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("filetail: creating checkpoint directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filetail: writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("filetail: swapping checkpoint into place: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.WithField("entries", len(snapshot)).Debug("filetail: checkpoint flushed")
	}
	return nil
}

// run flushes on interval until ctx is cancelled (via the done
// channel), then performs one final flush so the last offsets seen
// aren't lost between the last tick and shutdown.
func (c *checkpointStore) run(done <-chan struct{}, interval time.Duration) {
	if c.path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			if err := c.flush(); err != nil && c.logger != nil {
				c.logger.WithError(err).Warn("filetail: final checkpoint flush failed")
			}
			return
		case <-ticker.C:
			if err := c.flush(); err != nil && c.logger != nil {
				c.logger.WithError(err).Warn("filetail: checkpoint flush failed")
			}
		}
	}
}
