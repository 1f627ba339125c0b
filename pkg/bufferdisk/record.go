// Package bufferdisk implements the per-sink at-least-once disk buffer:
// a monotonically keyed, ordered on-disk store (github.com/syndtr/goleveldb)
// with a Writer/Reader/Acker split and leveldb-range compaction, matching
// the region model compacted_offset <= delete_offset <= read_offset <= tail.
package bufferdisk

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// encodeKey renders a record sequence number as the big-endian 8-byte
// key goleveldb orders lexicographically, which is numeric order for
// non-negative uint64s.
func encodeKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func decodeKey(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// record is the on-disk payload format: a length-prefixed, checksummed
// envelope around the caller's opaque bytes, in the same spirit as the
// teacher's BufferEntry framing in pkg/buffer/disk_buffer.go.
type record struct {
	Data     []byte
	Checksum [32]byte
}

func encodeRecord(data []byte) []byte {
	sum := sha256.Sum256(data)
	out := make([]byte, 4+len(data)+32)
	binary.LittleEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:4+len(data)], data)
	copy(out[4+len(data):], sum[:])
	return out
}

func decodeRecord(raw []byte) (record, error) {
	if len(raw) < 4 {
		return record{}, fmt.Errorf("bufferdisk: record too short for length prefix")
	}
	n := binary.LittleEndian.Uint32(raw[:4])
	if uint32(len(raw)) != 4+n+32 {
		return record{}, fmt.Errorf("bufferdisk: record length mismatch: header says %d, have %d bytes", n, len(raw)-4-32)
	}
	data := raw[4 : 4+n]
	var sum [32]byte
	copy(sum[:], raw[4+n:])
	want := sha256.Sum256(data)
	if sum != want {
		return record{}, fmt.Errorf("bufferdisk: checksum mismatch")
	}
	return record{Data: data, Checksum: sum}, nil
}
