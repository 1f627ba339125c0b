package value

import "strings"

// SegmentKind discriminates the variants of a Segment.
type SegmentKind int

const (
	SegmentField SegmentKind = iota
	SegmentIndex
	SegmentInvalid
)

// Segment is one step of a Path: a field name, an array index (negative
// meaning "from the end"), or the Invalid sentinel produced when parsing
// hits an illegal character.
type Segment struct {
	Kind  SegmentKind
	Field string
	Index int
}

func FieldSegment(name string) Segment { return Segment{Kind: SegmentField, Field: name} }
func IndexSegment(i int) Segment       { return Segment{Kind: SegmentIndex, Index: i} }
func InvalidSegment() Segment          { return Segment{Kind: SegmentInvalid} }

// Root selects which side of an event a Path addresses.
type Root int

const (
	RootEvent Root = iota
	RootMetadata
)

// Path is an ordered sequence of segments plus a root discriminator.
type Path struct {
	Root     Root
	Segments []Segment
}

// IsValid reports whether parsing produced no Invalid segment.
func (p Path) IsValid() bool {
	for _, s := range p.Segments {
		if s.Kind == SegmentInvalid {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.Segments {
		switch s.Kind {
		case SegmentField:
			if isBareIdent(s.Field) {
				if i > 0 {
					b.WriteByte('.')
				}
				b.WriteString(s.Field)
			} else {
				b.WriteByte('"')
				b.WriteString(s.Field)
				b.WriteByte('"')
			}
		case SegmentIndex:
			b.WriteByte('[')
			if s.Index < 0 {
				b.WriteByte('-')
				writeInt(&b, -s.Index)
			} else {
				writeInt(&b, s.Index)
			}
			b.WriteByte(']')
		case SegmentInvalid:
			b.WriteString("<invalid>")
		}
	}
	return b.String()
}

func writeInt(b *strings.Builder, n int) {
	if n == 0 {
		b.WriteByte('0')
		return
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	b.Write(digits[i:])
}

func isBareIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// jitState is the path-parser state machine, a direct port of the
// reference lookup2 JitLookup iterator: a streaming scan over characters
// that never allocates beyond the final segment slice, emitting exactly
// one Invalid segment and terminating on the first illegal character.
type jitState int

const (
	jitStart jitState = iota
	jitDot
	jitIndexStart
	jitIndexNeg
	jitIndex
	jitField
	jitQuote
)

// ParsePath parses the dotted/bracketed surface syntax described in
// spec.md §3 into a Path rooted at RootEvent. Use ParseMetadataPath for
// metadata-rooted paths (conventionally prefixed with "%").
func ParsePath(s string) Path {
	return Path{Root: RootEvent, Segments: parseSegments(s)}
}

// ParseMetadataPath parses s the same way but roots the result at
// RootMetadata.
func ParseMetadataPath(s string) Path {
	return Path{Root: RootMetadata, Segments: parseSegments(s)}
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || (c >= '0' && c <= '9')
}

func parseSegments(s string) []Segment {
	var segs []Segment
	state := jitStart
	fieldStart := 0
	quoteStart := 0
	idxVal := 0
	i := 0
	invalid := func() {
		segs = append(segs, InvalidSegment())
		state = -1 // terminal
	}
	for i < len(s) {
		if state == -1 {
			break
		}
		c := s[i]
		switch state {
		case jitStart:
			switch {
			case c == '.':
				state = jitDot
			case isIdentChar(c):
				fieldStart = i
				state = jitField
			case c == '[':
				state = jitIndexStart
			case c == '"':
				quoteStart = i + 1
				state = jitQuote
			default:
				invalid()
				continue
			}
		case jitDot:
			switch {
			case isIdentChar(c):
				fieldStart = i
				state = jitField
			case c == '"':
				quoteStart = i + 1
				state = jitQuote
			default:
				invalid()
				continue
			}
		case jitField:
			switch {
			case isIdentChar(c):
				// stay
			case c == '.':
				segs = append(segs, FieldSegment(s[fieldStart:i]))
				state = jitDot
			case c == '[':
				segs = append(segs, FieldSegment(s[fieldStart:i]))
				state = jitIndexStart
			default:
				invalid()
				continue
			}
		case jitQuote:
			if c == '"' {
				segs = append(segs, FieldSegment(s[quoteStart:i]))
				state = jitStart
			}
			// any other char stays in quote, including '.'
		case jitIndexStart:
			switch {
			case c >= '0' && c <= '9':
				idxVal = int(c - '0')
				state = jitIndex
			case c == '-':
				idxVal = 0
				state = jitIndexNeg
			default:
				invalid()
				continue
			}
		case jitIndex:
			switch {
			case c >= '0' && c <= '9':
				idxVal = idxVal*10 + int(c-'0')
			case c == ']':
				segs = append(segs, IndexSegment(idxVal))
				state = jitStart
			default:
				invalid()
				continue
			}
		case jitIndexNeg:
			switch {
			case c >= '0' && c <= '9':
				idxVal = idxVal*10 - int(c-'0')
			case c == ']':
				segs = append(segs, IndexSegment(idxVal))
				state = jitStart
			default:
				invalid()
				continue
			}
		}
		i++
	}
	// EOF handling
	switch state {
	case jitStart, jitDot:
		// nothing pending
	case jitField:
		segs = append(segs, FieldSegment(s[fieldStart:]))
	case jitIndexStart, jitIndex, jitIndexNeg, jitQuote:
		segs = append(segs, InvalidSegment())
	}
	return segs
}
