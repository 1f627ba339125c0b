package bufferdisk

import (
	"fmt"
	"io"

	"github.com/syndtr/goleveldb/leveldb/util"
)

// Reader is the read-side handle on a Buffer. Read drains records in
// ascending key order starting at the region's readOffset, blocking
// until either a new record arrives or the buffer is closed with
// nothing left to read (io.EOF).
type Reader struct {
	b       *Buffer
	pending []pendingRecord
}

type pendingRecord struct {
	key  uint64
	data []byte
}

// Read returns the next record's key and payload. The key must later be
// passed to Acker.Ack once the record is durably delivered.
func (r *Reader) Read() (uint64, []byte, error) {
	for {
		if len(r.pending) > 0 {
			rec := r.pending[0]
			r.pending = r.pending[1:]
			return rec.key, rec.data, nil
		}
		batch, err := r.fetchBatch()
		if err != nil {
			return 0, nil, err
		}
		if len(batch) == 0 {
			b := r.b
			b.mu.Lock()
			closed := b.closed
			atTail := b.readOffset >= b.tail
			b.mu.Unlock()
			if closed && atTail {
				return 0, nil, io.EOF
			}
			if atTail {
				b.mu.Lock()
				for b.readOffset >= b.tail && !b.closed {
					b.readCond.Wait()
				}
				closed = b.closed
				atTail = b.readOffset >= b.tail
				b.mu.Unlock()
				if closed && atTail {
					return 0, nil, io.EOF
				}
				continue
			}
			continue
		}
		r.pending = batch
	}
}

// fetchBatch performs one blocking, batched leveldb range scan from the
// current readOffset, decoding each record and advancing readOffset and
// the unacked-size bookkeeping as it goes. Matches the reference
// reader's "spawn a blocking read of up to 1000 records" step.
func (r *Reader) fetchBatch() ([]pendingRecord, error) {
	b := r.b
	b.mu.Lock()
	start := b.readOffset
	limit := b.tail
	b.mu.Unlock()
	if start >= limit {
		return nil, nil
	}

	rang := &util.Range{Start: encodeKey(start), Limit: encodeKey(limit)}
	iter := b.db.NewIterator(rang, nil)
	defer iter.Release()

	out := make([]pendingRecord, 0, b.cfg.ReadBatchSize)
	var advanced uint64
	for iter.Next() && len(out) < b.cfg.ReadBatchSize {
		key := decodeKey(iter.Key())
		raw := append([]byte(nil), iter.Value()...)
		rec, err := decodeRecord(raw)
		if err != nil {
			b.logger.WithError(err).WithField("key", key).
				Warn("bufferdisk: skipping undecodable record")
			advanced = key + 1
			continue
		}
		out = append(out, pendingRecord{key: key, data: rec.Data})
		advanced = key + 1

		b.mu.Lock()
		b.unackedSizes = append(b.unackedSizes, unackedEntry{key: key, size: int64(len(raw))})
		b.currentSize += int64(len(raw))
		b.unreadSize -= int64(len(raw))
		b.mu.Unlock()
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("bufferdisk: range scan from %d: %w", start, err)
	}

	b.mu.Lock()
	if advanced > b.readOffset {
		b.readOffset = advanced
	}
	b.mu.Unlock()

	return out, nil
}
