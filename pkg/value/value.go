// Package value implements the tagged-union Value model shared by every
// event variant and by the remap runtime: logs, metrics, and traces all
// read and mutate data through this type.
package value

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"
)

// Kind is a bitmask describing one or more possible variants of a Value.
// The remap type-checker narrows a TypeState's Kind sets as a program is
// compiled; a single Value always carries exactly one bit.
type Kind uint16

const (
	KindNull Kind = 1 << iota
	KindBoolean
	KindInteger
	KindFloat
	KindBytes
	KindTimestamp
	KindRegex
	KindArray
	KindObject

	KindAny = KindNull | KindBoolean | KindInteger | KindFloat | KindBytes |
		KindTimestamp | KindRegex | KindArray | KindObject
)

func (k Kind) String() string {
	if k == KindAny {
		return "any"
	}
	names := []struct {
		bit  Kind
		name string
	}{
		{KindNull, "null"}, {KindBoolean, "boolean"}, {KindInteger, "integer"},
		{KindFloat, "float"}, {KindBytes, "bytes"}, {KindTimestamp, "timestamp"},
		{KindRegex, "regex"}, {KindArray, "array"}, {KindObject, "object"},
	}
	out := ""
	for _, n := range names {
		if k&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// Contains reports whether k includes every bit set in other.
func (k Kind) Contains(other Kind) bool { return k&other == other }

// Value is a tagged union: exactly one of the typed fields below is
// meaningful at a time, selected by kind. The zero Value carries no kind
// bit and is not Null (IsNull reports false); use Null() for the null
// value.
type Value struct {
	kind      Kind
	boolean   bool
	integer   int64
	float     float64
	bytes     []byte
	timestamp time.Time
	regex     *regexp.Regexp
	array     []Value
	object    map[string]Value
}

// Null returns the Null value. Null is a distinct value, never "absent".
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

// Int wraps a signed 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInteger, integer: i} }

// Float wraps a float64. Returns an error if f is NaN: Float values are
// never NaN by invariant.
func Float(f float64) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, fmt.Errorf("value: float must not be NaN")
	}
	return Value{kind: KindFloat, float: f}, nil
}

// MustFloat is Float but panics on NaN; used for literals known at compile
// time to be safe.
func MustFloat(f float64) Value {
	v, err := Float(f)
	if err != nil {
		panic(err)
	}
	return v
}

// Bytes wraps an opaque byte string. The backing slice is not copied;
// callers that mutate it after construction own that risk.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }

// String is a convenience constructor for UTF-8 text, stored as Bytes.
func String(s string) Value { return Value{kind: KindBytes, bytes: []byte(s)} }

// Timestamp wraps a UTC timestamp with nanosecond resolution.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, timestamp: t.UTC()} }

// Regex wraps a compiled regular expression.
func Regex(re *regexp.Regexp) Value { return Value{kind: KindRegex, regex: re} }

// Array wraps an ordered sequence of values. The slice is not copied.
func Array(vs []Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, array: vs}
}

// Object wraps an insertion-independent string-keyed mapping. The map is
// not copied.
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, object: m}
}

// Kind returns the variant tag of v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsBoolean() bool   { return v.kind == KindBoolean }
func (v Value) IsInteger() bool   { return v.kind == KindInteger }
func (v Value) IsFloat() bool     { return v.kind == KindFloat }
func (v Value) IsBytes() bool     { return v.kind == KindBytes }
func (v Value) IsTimestamp() bool { return v.kind == KindTimestamp }
func (v Value) IsRegex() bool     { return v.kind == KindRegex }
func (v Value) IsArray() bool     { return v.kind == KindArray }
func (v Value) IsObject() bool    { return v.kind == KindObject }

// Boolean returns the boolean payload and whether v is a Boolean.
func (v Value) Boolean() (bool, bool) { return v.boolean, v.kind == KindBoolean }

// Integer returns the integer payload and whether v is an Integer.
func (v Value) Integer() (int64, bool) { return v.integer, v.kind == KindInteger }

// Float64 returns the float payload and whether v is a Float.
func (v Value) Float64() (float64, bool) { return v.float, v.kind == KindFloat }

// BytesValue returns the byte payload and whether v is Bytes.
func (v Value) BytesValue() ([]byte, bool) { return v.bytes, v.kind == KindBytes }

// StringValue coerces Bytes to a Go string. Only valid for Bytes values.
func (v Value) StringValue() (string, bool) {
	if v.kind != KindBytes {
		return "", false
	}
	return string(v.bytes), true
}

// TimestampValue returns the timestamp payload and whether v is a Timestamp.
func (v Value) TimestampValue() (time.Time, bool) { return v.timestamp, v.kind == KindTimestamp }

// RegexValue returns the regex payload and whether v is a Regex.
func (v Value) RegexValue() (*regexp.Regexp, bool) { return v.regex, v.kind == KindRegex }

// ArrayValue returns the backing slice and whether v is an Array.
func (v Value) ArrayValue() ([]Value, bool) { return v.array, v.kind == KindArray }

// ObjectValue returns the backing map and whether v is an Object.
func (v Value) ObjectValue() (map[string]Value, bool) { return v.object, v.kind == KindObject }

// Clone performs a deep copy: primitives are copied by value, Array and
// Object are recursively copied so mutation of the clone never affects
// the original. Values are acyclic by invariant, so this always
// terminates.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		out := make([]Value, len(v.array))
		for i, e := range v.array {
			out[i] = e.Clone()
		}
		return Value{kind: KindArray, array: out}
	case KindObject:
		out := make(map[string]Value, len(v.object))
		for k, e := range v.object {
			out[k] = e.Clone()
		}
		return Value{kind: KindObject, object: out}
	case KindBytes:
		out := make([]byte, len(v.bytes))
		copy(out, v.bytes)
		return Value{kind: KindBytes, bytes: out}
	default:
		return v
	}
}

// Equal is structural equality. Integer/Float compare via numeric
// promotion to float (lossy-safe per spec).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		if (v.kind == KindInteger || v.kind == KindFloat) &&
			(other.kind == KindInteger || other.kind == KindFloat) {
			return v.asFloat() == other.asFloat()
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.boolean == other.boolean
	case KindInteger:
		return v.integer == other.integer
	case KindFloat:
		return v.float == other.float
	case KindBytes:
		return string(v.bytes) == string(other.bytes)
	case KindTimestamp:
		return v.timestamp.Equal(other.timestamp)
	case KindRegex:
		return v.regex != nil && other.regex != nil && v.regex.String() == other.regex.String()
	case KindArray:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.object) != len(other.object) {
			return false
		}
		for k, e := range v.object {
			oe, ok := other.object[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) asFloat() float64 {
	switch v.kind {
	case KindInteger:
		return float64(v.integer)
	case KindFloat:
		return v.float
	default:
		return math.NaN()
	}
}

// sortedKeys returns the keys of an Object in sorted order, used for
// deterministic traversal (Paths, JSON encoding).
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
