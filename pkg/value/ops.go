package value

import "fmt"

// Get walks path.Segments against v, returning the addressed value and
// whether every segment resolved. Negative indices count from the end of
// an Array. An Invalid segment never resolves.
func (v *Value) Get(path Path) (*Value, bool) {
	cur := v
	for _, seg := range path.Segments {
		switch seg.Kind {
		case SegmentField:
			if cur.kind != KindObject {
				return nil, false
			}
			next, ok := cur.object[seg.Field]
			if !ok {
				return nil, false
			}
			cur = &next
		case SegmentIndex:
			if cur.kind != KindArray {
				return nil, false
			}
			idx := seg.Index
			if idx < 0 {
				idx += len(cur.array)
			}
			if idx < 0 || idx >= len(cur.array) {
				return nil, false
			}
			cur = &cur.array[idx]
		case SegmentInvalid:
			return nil, false
		}
	}
	return cur, true
}

// Insert writes val at path, materializing missing intermediate Object
// containers and extending Array containers (filling gaps with Null) as
// needed. Negative array indices are rejected: Insert never invents "the
// Nth-from-end" slot. An Invalid segment, or a path that must traverse
// through a non-container value, is an error.
func (v *Value) Insert(path Path, val Value) error {
	if len(path.Segments) == 0 {
		*v = val
		return nil
	}
	return insertAt(v, path.Segments, val)
}

func insertAt(cur *Value, segs []Segment, val Value) error {
	seg := segs[0]
	last := len(segs) == 1

	switch seg.Kind {
	case SegmentField:
		if cur.kind == KindNull {
			*cur = Object(map[string]Value{})
		}
		if cur.kind != KindObject {
			return fmt.Errorf("value: cannot insert field %q into %s", seg.Field, cur.kind)
		}
		if last {
			cur.object[seg.Field] = val
			return nil
		}
		child, ok := cur.object[seg.Field]
		if !ok {
			child = Null()
		}
		if err := insertAt(&child, segs[1:], val); err != nil {
			return err
		}
		cur.object[seg.Field] = child
		return nil

	case SegmentIndex:
		if seg.Index < 0 {
			return fmt.Errorf("value: negative index %d not allowed in insert path", seg.Index)
		}
		if cur.kind == KindNull {
			*cur = Array(nil)
		}
		if cur.kind != KindArray {
			return fmt.Errorf("value: cannot insert index %d into %s", seg.Index, cur.kind)
		}
		for len(cur.array) <= seg.Index {
			cur.array = append(cur.array, Null())
		}
		if last {
			cur.array[seg.Index] = val
			return nil
		}
		return insertAt(&cur.array[seg.Index], segs[1:], val)

	default: // SegmentInvalid
		return fmt.Errorf("value: cannot insert through invalid path segment")
	}
}

// Remove deletes the value addressed by path. When compact is true, any
// ancestor Object/Array container left empty by the removal is itself
// removed from its parent, recursively. Reports whether anything was
// removed.
func (v *Value) Remove(path Path, compact bool) bool {
	if len(path.Segments) == 0 {
		return false
	}
	removed, _ := removeAt(v, path.Segments, compact)
	return removed
}

// removeAt returns (removed, nowEmpty) where nowEmpty reports whether cur
// itself became an empty container as a result, for the caller to use in
// its own compaction decision.
func removeAt(cur *Value, segs []Segment, compact bool) (bool, bool) {
	seg := segs[0]
	last := len(segs) == 1

	switch seg.Kind {
	case SegmentField:
		if cur.kind != KindObject {
			return false, false
		}
		if last {
			if _, ok := cur.object[seg.Field]; !ok {
				return false, false
			}
			delete(cur.object, seg.Field)
			return true, len(cur.object) == 0
		}
		child, ok := cur.object[seg.Field]
		if !ok {
			return false, false
		}
		removed, childEmpty := removeAt(&child, segs[1:], compact)
		if !removed {
			return false, false
		}
		if compact && childEmpty {
			delete(cur.object, seg.Field)
		} else {
			cur.object[seg.Field] = child
		}
		return true, len(cur.object) == 0

	case SegmentIndex:
		if cur.kind != KindArray {
			return false, false
		}
		idx := seg.Index
		if idx < 0 {
			idx += len(cur.array)
		}
		if idx < 0 || idx >= len(cur.array) {
			return false, false
		}
		if last {
			cur.array = append(cur.array[:idx], cur.array[idx+1:]...)
			return true, len(cur.array) == 0
		}
		removed, childEmpty := removeAt(&cur.array[idx], segs[1:], compact)
		if !removed {
			return false, false
		}
		if compact && childEmpty {
			cur.array = append(cur.array[:idx], cur.array[idx+1:]...)
		}
		return true, len(cur.array) == 0

	default:
		return false, false
	}
}

// Paths enumerates every leaf path reachable from v in deterministic,
// depth-first, key-sorted order. A non-container value has exactly one
// leaf path: the empty path.
func (v *Value) Paths() []Path {
	var out []Path
	walkPaths(v, nil, &out)
	return out
}

func walkPaths(v *Value, prefix []Segment, out *[]Path) {
	switch v.kind {
	case KindObject:
		if len(v.object) == 0 {
			*out = append(*out, Path{Segments: append([]Segment{}, prefix...)})
			return
		}
		for _, k := range sortedKeys(v.object) {
			child := v.object[k]
			walkPaths(&child, append(prefix, FieldSegment(k)), out)
		}
	case KindArray:
		if len(v.array) == 0 {
			*out = append(*out, Path{Segments: append([]Segment{}, prefix...)})
			return
		}
		for i := range v.array {
			walkPaths(&v.array[i], append(prefix, IndexSegment(i)), out)
		}
	default:
		*out = append(*out, Path{Segments: append([]Segment{}, prefix...)})
	}
}
