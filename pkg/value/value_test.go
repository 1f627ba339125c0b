package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqualPromotesNumerics(t *testing.T) {
	assert.True(t, Int(3).Equal(MustFloat(3.0)))
	assert.False(t, Int(3).Equal(MustFloat(3.5)))
	assert.True(t, Null().Equal(Null()))
	assert.False(t, Null().Equal(Bool(false)))
}

func TestValueCloneIsDeep(t *testing.T) {
	orig := Object(map[string]Value{"a": Array([]Value{Int(1), Int(2)})})
	clone := orig.Clone()

	arr, _ := clone.ObjectValue()
	a := arr["a"]
	av, _ := a.ArrayValue()
	av[0] = Int(99)

	origArr, _ := orig.ObjectValue()
	origA, _ := origArr["a"].ArrayValue()
	assert.Equal(t, int64(1), origA[0].integer)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Null().Truthy())
	assert.False(t, Bool(false).Truthy())
	assert.True(t, Bool(true).Truthy())
	assert.True(t, Int(0).Truthy())
	assert.True(t, String("").Truthy())
}

func TestArithmetic(t *testing.T) {
	v, err := Add(Int(1), Int(2))
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = Add(Int(1), MustFloat(2.5))
	require.NoError(t, err)
	f, _ := v.Float64()
	assert.Equal(t, 3.5, f)

	v, err = Add(String("foo"), String("bar"))
	require.NoError(t, err)
	s, _ := v.StringValue()
	assert.Equal(t, "foobar", s)

	_, err = Add(Int(1), Bool(true))
	require.Error(t, err)

	_, err = Div(Int(1), Int(0))
	require.Error(t, err)

	lt, err := Less(Int(1), Int(2))
	require.NoError(t, err)
	assert.True(t, lt)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "any", KindAny.String())
	assert.Equal(t, "integer|float", (KindInteger | KindFloat).String())
	assert.True(t, KindAny.Contains(KindInteger))
}
