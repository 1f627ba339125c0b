package remap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

func newTestEvent() event.Event {
	return event.NewLog(event.NewLogEvent(value.Object(nil)), event.NewMetadata("test", "t1"))
}

func TestAssignAndReadPath(t *testing.T) {
	prog := MustCompile(`.message = "hello"`)
	rt := NewRuntime()
	e := newTestEvent()
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	v, ok := e.Get(value.ParsePath(".message"))
	require.True(t, ok)
	s, _ := v.StringValue()
	assert.Equal(t, "hello", s)
}

func TestArithmeticAndComparison(t *testing.T) {
	prog := MustCompile(`.total = 1 + 2 * 3
.big = .total > 5`)
	rt := NewRuntime()
	e := newTestEvent()
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	v, _ := e.Get(value.ParsePath(".total"))
	i, _ := v.Integer()
	assert.Equal(t, int64(7), i)

	v, _ = e.Get(value.ParsePath(".big"))
	b, _ := v.Boolean()
	assert.True(t, b)
}

func TestIfElseBranching(t *testing.T) {
	prog := MustCompile(`if .level == "error" {
	.severity = 1
} else {
	.severity = 0
}`)
	rt := NewRuntime()
	e := newTestEvent()
	_ = e.Insert(value.ParsePath(".level"), value.String("error"))
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	v, _ := e.Get(value.ParsePath(".severity"))
	i, _ := v.Integer()
	assert.Equal(t, int64(1), i)
}

func TestAbortSurfacesAsTerminate(t *testing.T) {
	prog := MustCompile(`abort "bad input"`)
	rt := NewRuntime()
	e := newTestEvent()
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.NotNil(t, term)
	assert.Equal(t, TerminateAbort, term.Kind)
	assert.Contains(t, term.Error(), "bad input")
}

func TestCoalesceFallsBackOnFailure(t *testing.T) {
	prog := MustCompile(`.n = to_int(.missing) ?? 99`)
	rt := NewRuntime()
	e := newTestEvent()
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	v, _ := e.Get(value.ParsePath(".n"))
	i, _ := v.Integer()
	assert.Equal(t, int64(99), i)
}

func TestUnhandledFallibleFailsToCompile(t *testing.T) {
	_, err := Compile(`.n = to_int(.missing)`)
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeUnhandledFallible, cerr.Diagnostics[0].Code)
}

func TestSyntaxErrorMessage(t *testing.T) {
	_, err := Compile(`.x = )(`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error[E203]: syntax error")
}

func TestStdlibStringFunctions(t *testing.T) {
	prog := MustCompile(`.upper = upcase("hi")
.has = contains("hello world", "world")`)
	rt := NewRuntime()
	e := newTestEvent()
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	v, _ := e.Get(value.ParsePath(".upper"))
	s, _ := v.StringValue()
	assert.Equal(t, "HI", s)

	v, _ = e.Get(value.ParsePath(".has"))
	b, _ := v.Boolean()
	assert.True(t, b)
}

func TestForEachIteratesArray(t *testing.T) {
	prog := MustCompile(`.items = [1, 2, 3]
.sum = 0
for_each(.items) -> |i, v| {
	.sum = .sum + v
}`)
	rt := NewRuntime()
	e := newTestEvent()
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	v, _ := e.Get(value.ParsePath(".sum"))
	i, _ := v.Integer()
	assert.Equal(t, int64(6), i)
}

func TestDelRemovesPath(t *testing.T) {
	prog := MustCompile(`del(.secret)`)
	rt := NewRuntime()
	e := newTestEvent()
	_ = e.Insert(value.ParsePath(".secret"), value.String("shh"))
	target := NewEventTarget(&e)

	_, term := rt.Resolve(target, prog)
	require.Nil(t, term)

	_, ok := e.Get(value.ParsePath(".secret"))
	assert.False(t, ok)
}

func TestConditionChecksWithoutMutatingOriginal(t *testing.T) {
	cond := NewCondition(MustCompile(`.level == "error"`))
	e := newTestEvent()
	_ = e.Insert(value.ParsePath(".level"), value.String("error"))

	ok, same, err := cond.Check(e)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, e, same)
}

func TestDecoderProducesBatchFromArray(t *testing.T) {
	dec := NewDecoder(MustCompile(`. = [{"a": 1}, {"a": 2}, {"a": 3}]`))
	events, err := dec.RunDecoder([]byte("ignored"), event.NamespaceVector)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestDecoderAbortSurfacesAsError(t *testing.T) {
	dec := NewDecoder(MustCompile(`abort`))
	_, err := dec.RunDecoder([]byte("x"), event.NamespaceVector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
}

func TestDecoderRejectsNonObjectFinalValue(t *testing.T) {
	dec := NewDecoder(MustCompile(`. = "just text"`))
	_, err := dec.RunDecoder([]byte("x"), event.NamespaceVector)
	require.Error(t, err)
}

func TestDecoderSingleObjectProducesOneEvent(t *testing.T) {
	dec := NewDecoder(MustCompile(`. = {"message": "hi"}`))
	events, err := dec.RunDecoder([]byte("x"), event.NamespaceVector)
	require.NoError(t, err)
	require.Len(t, events, 1)
	v, ok := events[0].Get(value.ParsePath(".message"))
	require.True(t, ok)
	s, _ := v.StringValue()
	assert.Equal(t, "hi", s)
}
