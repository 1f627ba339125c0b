package value

import (
	"fmt"
	"strings"
)

// ArithmeticError reports a runtime type error from an operator, carrying
// enough of the operand kinds for a remap diagnostic to point at them.
type ArithmeticError struct {
	Op    string
	Left  Kind
	Right Kind
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("value: cannot apply %q to %s and %s", e.Op, e.Left, e.Right)
}

// Truthy implements the language's Null/false-as-falsy rule: Null and
// Boolean(false) are falsy, every other value (including 0, "", empty
// array/object) is truthy.
func (v Value) Truthy() bool {
	if v.kind == KindNull {
		return false
	}
	if v.kind == KindBoolean {
		return v.boolean
	}
	return true
}

// Add implements the fallible "+" operator: numeric addition with
// integer/float promotion, Bytes concatenation, and Array concatenation.
func Add(a, b Value) (Value, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return Int(a.integer + b.integer), nil
	case isNumeric(a) && isNumeric(b):
		return MustFloat(a.asFloat() + b.asFloat()), nil
	case a.kind == KindBytes && b.kind == KindBytes:
		out := make([]byte, 0, len(a.bytes)+len(b.bytes))
		out = append(out, a.bytes...)
		out = append(out, b.bytes...)
		return Bytes(out), nil
	case a.kind == KindArray && b.kind == KindArray:
		out := make([]Value, 0, len(a.array)+len(b.array))
		out = append(out, a.array...)
		out = append(out, b.array...)
		return Array(out), nil
	}
	return Value{}, &ArithmeticError{Op: "+", Left: a.kind, Right: b.kind}
}

// Sub implements the fallible "-" operator: numeric subtraction only.
func Sub(a, b Value) (Value, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return Int(a.integer - b.integer), nil
	case isNumeric(a) && isNumeric(b):
		return MustFloat(a.asFloat() - b.asFloat()), nil
	}
	return Value{}, &ArithmeticError{Op: "-", Left: a.kind, Right: b.kind}
}

// Mul implements the fallible "*" operator: numeric multiplication, plus
// Bytes repeated by a non-negative Integer count.
func Mul(a, b Value) (Value, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return Int(a.integer * b.integer), nil
	case isNumeric(a) && isNumeric(b):
		return MustFloat(a.asFloat() * b.asFloat()), nil
	case a.kind == KindBytes && b.kind == KindInteger && b.integer >= 0:
		return String(strings.Repeat(string(a.bytes), int(b.integer))), nil
	}
	return Value{}, &ArithmeticError{Op: "*", Left: a.kind, Right: b.kind}
}

// Div implements the fallible "/" operator: numeric division, always
// producing a Float (never an Integer), and erroring on division by zero.
func Div(a, b Value) (Value, error) {
	if !isNumeric(a) || !isNumeric(b) {
		return Value{}, &ArithmeticError{Op: "/", Left: a.kind, Right: b.kind}
	}
	if b.asFloat() == 0 {
		return Value{}, fmt.Errorf("value: division by zero")
	}
	return MustFloat(a.asFloat() / b.asFloat()), nil
}

// Rem implements the fallible "%" operator over integers.
func Rem(a, b Value) (Value, error) {
	if a.kind != KindInteger || b.kind != KindInteger {
		return Value{}, &ArithmeticError{Op: "%", Left: a.kind, Right: b.kind}
	}
	if b.integer == 0 {
		return Value{}, fmt.Errorf("value: division by zero")
	}
	return Int(a.integer % b.integer), nil
}

func isNumeric(v Value) bool { return v.kind == KindInteger || v.kind == KindFloat }

// compareNumeric orders two numeric values; ok is false for non-numeric
// operands.
func compareNumeric(a, b Value) (cmp int, ok bool) {
	if !isNumeric(a) || !isNumeric(b) {
		return 0, false
	}
	af, bf := a.asFloat(), b.asFloat()
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

// Less implements "<" for numeric and Bytes operands.
func Less(a, b Value) (bool, error) {
	if cmp, ok := compareNumeric(a, b); ok {
		return cmp < 0, nil
	}
	if a.kind == KindBytes && b.kind == KindBytes {
		return string(a.bytes) < string(b.bytes), nil
	}
	return false, &ArithmeticError{Op: "<", Left: a.kind, Right: b.kind}
}

// LessOrEqual implements "<=".
func LessOrEqual(a, b Value) (bool, error) {
	if cmp, ok := compareNumeric(a, b); ok {
		return cmp <= 0, nil
	}
	if a.kind == KindBytes && b.kind == KindBytes {
		return string(a.bytes) <= string(b.bytes), nil
	}
	return false, &ArithmeticError{Op: "<=", Left: a.kind, Right: b.kind}
}

// Greater implements ">".
func Greater(a, b Value) (bool, error) {
	lt, err := LessOrEqual(a, b)
	if err != nil {
		return false, &ArithmeticError{Op: ">", Left: a.kind, Right: b.kind}
	}
	return !lt, nil
}

// GreaterOrEqual implements ">=".
func GreaterOrEqual(a, b Value) (bool, error) {
	lt, err := Less(a, b)
	if err != nil {
		return false, &ArithmeticError{Op: ">=", Left: a.kind, Right: b.kind}
	}
	return !lt, nil
}

// And implements short-circuit "&&": returns a without evaluating b's
// side effects when a is falsy. Callers that have already evaluated both
// operands (the common case in a strict-evaluation compiler) simply pass
// the two results through.
func And(a, b Value) Value {
	if !a.Truthy() {
		return a
	}
	return b
}

// Or implements short-circuit "||": returns a when truthy, else b.
func Or(a, b Value) Value {
	if a.Truthy() {
		return a
	}
	return b
}
