package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These cases mirror the reference lookup2 parser's frozen test matrix:
// same inputs, same expected segment sequences.
func TestParsePathSegments(t *testing.T) {
	cases := []struct {
		in   string
		want []Segment
	}{
		{"", nil},
		{".", nil},
		{"]", []Segment{InvalidSegment()}},
		{"]foo", []Segment{InvalidSegment()}},
		{"..", []Segment{InvalidSegment()}},
		{"...", []Segment{InvalidSegment()}},
		{"f", []Segment{FieldSegment("f")}},
		{".f", []Segment{FieldSegment("f")}},
		{".[", []Segment{InvalidSegment()}},
		{"f.", []Segment{FieldSegment("f")}},
		{"foo", []Segment{FieldSegment("foo")}},
		{".foo", []Segment{FieldSegment("foo")}},
		{"foo[", []Segment{FieldSegment("foo"), InvalidSegment()}},
		{"foo$", []Segment{InvalidSegment()}},
		{`"$peci@l chars"`, []Segment{FieldSegment("$peci@l chars")}},
		{".foo.foo bar", []Segment{FieldSegment("foo"), InvalidSegment()}},
		{`.foo."foo bar".bar`, []Segment{FieldSegment("foo"), FieldSegment("foo bar"), FieldSegment("bar")}},
		{"[1]", []Segment{IndexSegment(1)}},
		{"[42]", []Segment{IndexSegment(42)}},
		{".[42]", []Segment{InvalidSegment()}},
		{"[42].foo", []Segment{IndexSegment(42), FieldSegment("foo")}},
		{"[42]foo", []Segment{IndexSegment(42), FieldSegment("foo")}},
		{"[-1]", []Segment{IndexSegment(-1)}},
		{"[-42]", []Segment{IndexSegment(-42)}},
		{".[-42]", []Segment{InvalidSegment()}},
		{"[-42].foo", []Segment{IndexSegment(-42), FieldSegment("foo")}},
		{"[-42]foo", []Segment{IndexSegment(-42), FieldSegment("foo")}},
		{`."[42]. {}-_"`, []Segment{FieldSegment("[42]. {}-_")}},
	}
	for _, c := range cases {
		got := parseSegments(c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestValueInsertGetRemove(t *testing.T) {
	v := Object(map[string]Value{})

	require.NoError(t, v.Insert(ParsePath("a.b"), Int(1)))
	got, ok := v.Get(ParsePath("a.b"))
	require.True(t, ok)
	assert.Equal(t, Int(1), *got)

	require.NoError(t, v.Insert(ParsePath("a.c[2]"), String("x")))
	got, ok = v.Get(ParsePath("a.c[0]"))
	require.True(t, ok)
	assert.True(t, got.IsNull())
	got, ok = v.Get(ParsePath("a.c[2]"))
	require.True(t, ok)
	assert.Equal(t, "x", mustString(t, *got))

	removed := v.Remove(ParsePath("a.b"), true)
	assert.True(t, removed)
	_, ok = v.Get(ParsePath("a.b"))
	assert.False(t, ok)
}

func TestValuePaths(t *testing.T) {
	v := Object(map[string]Value{
		"b": Int(1),
		"a": Array([]Value{String("x"), String("y")}),
	})
	paths := v.Paths()
	require.Len(t, paths, 3)
	assert.Equal(t, "a[0]", paths[0].String())
	assert.Equal(t, "a[1]", paths[1].String())
	assert.Equal(t, "b", paths[2].String())
}

func mustString(t *testing.T, v Value) string {
	t.Helper()
	s, ok := v.StringValue()
	require.True(t, ok)
	return s
}
