package bufferdisk

import (
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Acker is the acknowledgement-side handle: records a record as
// delivered and periodically flushes the delete-offset watermark
// forward, deleting acked keys and evaluating the compaction trigger.
//
// The exact compaction bookkeeping follows
// original_source/lib/vector-buffers/src/disk/leveldb_buffer/reader.rs:
// uncompactedSize is incremented when records are deleted (never
// decremented on read) and is reset to zero only inside compact().
type Acker struct{ b *Buffer }

// Ack marks key as durably delivered. Once FlushAckThreshold acks have
// accumulated, it proactively flushes; otherwise the ack stays pending
// until a later Ack crosses the threshold or Flush is called explicitly.
func (a *Acker) Ack(key uint64) error {
	b := a.b
	b.mu.Lock()
	b.ackCounter++
	shouldFlush := b.ackCounter >= b.cfg.FlushAckThreshold
	b.mu.Unlock()
	if shouldFlush {
		return a.Flush()
	}
	return nil
}

// deleteAcked pops the front of unackedSizes for every outstanding ack,
// summing their size into uncompactedSize (per the resolved semantics
// above) and into the delete-offset advance count.
func (a *Acker) deleteAcked() (numToDelete int, sizeDeleted int64) {
	b := a.b
	b.mu.Lock()
	defer b.mu.Unlock()

	numToDelete = b.ackCounter
	b.ackCounter = 0
	if numToDelete == 0 {
		return 0, 0
	}
	if numToDelete > len(b.unackedSizes) {
		numToDelete = len(b.unackedSizes)
	}
	for i := 0; i < numToDelete; i++ {
		sizeDeleted += b.unackedSizes[i].size
	}
	b.unackedSizes = b.unackedSizes[numToDelete:]
	b.currentSize -= sizeDeleted
	b.uncompactedSize += sizeDeleted
	b.ackedSize += int64(numToDelete)
	b.writeCond.Broadcast()
	return numToDelete, sizeDeleted
}

// Flush advances the delete-offset watermark past every acked record,
// physically deleting them from goleveldb, then evaluates whether a
// compaction should run.
func (a *Acker) Flush() error {
	b := a.b
	numToDelete, _ := a.deleteAcked()

	b.mu.Lock()
	acked := b.ackedSize
	newOffset := b.deleteOffset + uint64(acked)
	readOffset := b.readOffset
	b.mu.Unlock()

	if numToDelete > 0 || acked > 0 {
		if newOffset > readOffset {
			newOffset = readOffset
		}
		if err := a.deleteRange(b.deleteOffset, newOffset); err != nil {
			return err
		}
		b.mu.Lock()
		b.deleteOffset = newOffset
		b.ackedSize = 0
		b.mu.Unlock()
	}

	return a.maybeCompact()
}

func (a *Acker) deleteRange(from, to uint64) error {
	if from >= to {
		return nil
	}
	b := a.b
	batch := new(leveldb.Batch)
	iter := b.db.NewIterator(&util.Range{Start: encodeKey(from), Limit: encodeKey(to)}, nil)
	defer iter.Release()
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("bufferdisk: delete range scan: %w", err)
	}
	if err := b.db.Write(batch, nil); err != nil {
		return fmt.Errorf("bufferdisk: delete range write: %w", err)
	}
	return nil
}

// maybeCompact evaluates the three-part trigger from the reference
// reader and runs a leveldb CompactRange over [compactedOffset,
// deleteOffset) when it fires.
func (a *Acker) maybeCompact() error {
	b := a.b
	b.mu.Lock()
	uncompacted := b.uncompactedSize
	unread := b.unreadSize
	maxUncompacted := b.cfg.MaxUncompactedSize
	sinceLast := time.Since(b.lastCompaction)
	minSize := uncompacted >= MinUncompactedSize
	maxTrigger := uncompacted > maxUncompacted
	timedTrigger := sinceLast >= MinTimeUncompacted && uncompacted > unread
	b.mu.Unlock()

	if !minSize || (!maxTrigger && !timedTrigger) {
		return nil
	}
	return a.compact()
}

func (a *Acker) compact() error {
	b := a.b
	b.mu.Lock()
	uncompacted := b.uncompactedSize
	from := b.compactedOffset
	to := b.deleteOffset
	b.mu.Unlock()

	if uncompacted > 0 {
		if err := b.db.CompactRange(util.Range{Start: encodeKey(from), Limit: encodeKey(to)}); err != nil {
			return fmt.Errorf("bufferdisk: compact range: %w", err)
		}
		b.mu.Lock()
		b.compactedOffset = to
		b.uncompactedSize = 0
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.lastCompaction = time.Now()
	b.mu.Unlock()
	return nil
}
