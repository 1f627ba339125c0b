package bufferdisk

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Compaction trigger constants, carried from the reference leveldb-backed
// disk buffer (original_source/lib/vector-buffers/src/disk/leveldb_buffer/reader.rs):
// compaction only fires once uncompacted_size clears the floor, and then
// only if it has grown past the configured ceiling or enough time has
// passed since the last compaction while there is more uncompacted than
// currently-unread data.
const (
	MinUncompactedSize = 4 * 1024 * 1024
	MinTimeUncompacted = 60 * time.Second
)

// Config configures a disk-backed buffer instance. Zero values are
// replaced by defaults in New, following the teacher's constructor
// pattern throughout pkg/buffer and pkg/batching.
type Config struct {
	// Path is the goleveldb data directory for this buffer.
	Path string
	// MaxSize bounds the sum of unacked+unread record sizes the writer
	// is allowed to hold before Write blocks; 0 means unbounded.
	MaxSize int64
	// MaxUncompactedSize raises the trigger ceiling above the default
	// MinUncompactedSize floor; 0 uses the floor itself as the ceiling.
	MaxUncompactedSize int64
	// FlushAckThreshold is how many outstanding acks accumulate before
	// Acker.Ack proactively flushes the delete-offset watermark; below it,
	// acks wait for an explicit Acker.Flush. 0 defaults to 100, matching
	// the reference reader's flush-at-100-acks behavior.
	FlushAckThreshold int
	// ReadBatchSize bounds how many records one background read fetches
	// from leveldb at a time. 0 defaults to 1000.
	ReadBatchSize int
}

func (c *Config) applyDefaults() {
	if c.MaxUncompactedSize == 0 {
		c.MaxUncompactedSize = MinUncompactedSize
	}
	if c.FlushAckThreshold == 0 {
		c.FlushAckThreshold = 100
	}
	if c.ReadBatchSize == 0 {
		c.ReadBatchSize = 1000
	}
}

var (
	// ErrClosed is returned by Write/Read once the buffer has been
	// closed.
	ErrClosed = fmt.Errorf("bufferdisk: buffer is closed")
)

// unackedEntry tracks the size of one delivered-but-not-yet-acked record,
// in delivery order, so deleteAcked can pop them off the front in the
// order Acks (eventually) arrive.
type unackedEntry struct {
	key  uint64
	size int64
}

// Buffer is the shared state a Writer, Reader, and Acker for one sink
// cooperate over. Exported Writer/Reader/Acker types are thin,
// role-scoped views over this state, mirroring the reference design's
// split between writer.rs/reader.rs/acker.rs.
type Buffer struct {
	db     *leveldb.DB
	logger *logrus.Logger
	cfg    Config

	mu sync.Mutex
	// region boundaries, see package doc: compactedOffset <= deleteOffset
	// <= readOffset <= tail
	tail            uint64
	readOffset      uint64
	deleteOffset    uint64
	compactedOffset uint64

	unreadSize  int64 // bytes written but not yet read
	currentSize int64 // bytes read but not yet acked (== sum of unackedSizes)

	unackedSizes []unackedEntry
	ackCounter   int
	ackedSize    int64

	uncompactedSize int64
	lastCompaction  time.Time

	closed      bool
	writeCond   *sync.Cond // signaled when space frees up for Write
	readCond    *sync.Cond // signaled when a new record is written
	blockedWrites int
}

// New opens (creating if absent) a goleveldb-backed buffer at cfg.Path.
func New(cfg Config, logger *logrus.Logger) (*Buffer, error) {
	cfg.applyDefaults()
	db, err := leveldb.OpenFile(cfg.Path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("bufferdisk: open %s: %w", cfg.Path, err)
	}
	b := &Buffer{
		db:             db,
		logger:         logger,
		cfg:            cfg,
		lastCompaction: time.Now(),
	}
	b.writeCond = sync.NewCond(&b.mu)
	b.readCond = sync.NewCond(&b.mu)
	if err := b.recoverOffsets(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// recoverOffsets scans existing keys on open to reestablish tail/
// readOffset/deleteOffset/compactedOffset after a restart: everything on
// disk is unread-but-undeleted until a fresh Reader re-derives ack state
// from its own bookkeeping (the buffer makes no durability claim about
// in-flight acks across a restart, consistent with spec.md's at-least-
// once, not exactly-once, guarantee).
func (b *Buffer) recoverOffsets() error {
	iter := b.db.NewIterator(nil, nil)
	defer iter.Release()
	var first, last uint64
	has := false
	for iter.Next() {
		k := decodeKey(iter.Key())
		if !has {
			first = k
			has = true
		}
		last = k
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("bufferdisk: recover offsets: %w", err)
	}
	if has {
		b.compactedOffset = first
		b.deleteOffset = first
		b.readOffset = first
		b.tail = last + 1
	}
	return nil
}

// Writer returns the write-side handle for this buffer.
func (b *Buffer) Writer() *Writer { return &Writer{b: b} }

// Reader returns the read-side handle for this buffer. Only one Reader
// should be active per Buffer: the region model assumes a single
// sequential consumer, matching the reference design (one reader per
// disk buffer instance).
func (b *Buffer) Reader() *Reader { return &Reader{b: b} }

// Acker returns the acknowledgement handle for this buffer.
func (b *Buffer) Acker() *Acker { return &Acker{b: b} }

// Close releases the underlying goleveldb handle and wakes any blocked
// Writer/Reader so they observe ErrClosed.
func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.writeCond.Broadcast()
	b.readCond.Broadcast()
	b.mu.Unlock()
	return b.db.Close()
}

// Stats is a point-in-time snapshot of buffer occupancy, exposed for
// the admin introspection surface and for tests.
type Stats struct {
	Tail            uint64
	ReadOffset      uint64
	DeleteOffset    uint64
	CompactedOffset uint64
	UnreadSize      int64
	CurrentSize     int64
	UncompactedSize int64
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Tail:            b.tail,
		ReadOffset:      b.readOffset,
		DeleteOffset:    b.deleteOffset,
		CompactedOffset: b.compactedOffset,
		UnreadSize:      b.unreadSize,
		CurrentSize:     b.currentSize,
		UncompactedSize: b.uncompactedSize,
	}
}
