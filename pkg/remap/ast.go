package remap

import "github.com/ssw/routeflow/pkg/value"

// Node is implemented by every AST expression/statement. IsFallible
// reports the compile-time fallibility bit spec.md §4.2 requires: a true
// result means the expression can produce a runtime Terminate and must be
// handled with '?', '??', or an error-capturing assignment; Compile
// rejects a statement whose bit is still set.
type Node interface {
	Span() Span
	IsFallible() bool
}

type baseNode struct {
	span     Span
	fallible bool
}

func (n baseNode) Span() Span       { return n.span }
func (n baseNode) IsFallible() bool { return n.fallible }

// Program is the compiled root: a sequence of statements evaluated in
// order, the last statement's value becoming the program's result.
type Program struct {
	Statements []Node
	Source     string
}

// LiteralNode is a constant value fixed at compile time.
type LiteralNode struct {
	baseNode
	Value value.Value
}

// PathNode reads or is the assignment target for an event/metadata path.
type PathNode struct {
	baseNode
	Path value.Path
}

// VarNode references a local variable bound by a prior assignment.
type VarNode struct {
	baseNode
	Name string
}

// AssignNode assigns Value to Target, which is either a PathNode or a
// VarNode. ErrVar names an optional second binding capturing the error
// from a fallible right-hand side instead of aborting (the `x, err = ...`
// form).
type AssignNode struct {
	baseNode
	Target Node
	ErrVar string
	Value  Node
}

// PropagateNode is the postfix '?' operator: on a Terminate from Inner,
// abort the whole program; otherwise yield Inner's value.
type PropagateNode struct {
	baseNode
	Inner Node
}

// CoalesceNode is the 'a ?? b' operator: if Left terminates, evaluate and
// return Right instead.
type CoalesceNode struct {
	baseNode
	Left  Node
	Right Node
}

// BinaryNode is an infix arithmetic, comparison, or logical operator.
type BinaryNode struct {
	baseNode
	Op    Kind
	Left  Node
	Right Node
}

// UnaryNode is a prefix '!' or '-' operator.
type UnaryNode struct {
	baseNode
	Op    Kind
	Inner Node
}

// IfNode is a branch; Else may be nil.
type IfNode struct {
	baseNode
	Cond Node
	Then []Node
	Else []Node
}

// AbortNode terminates evaluation with an optional diagnostic message.
type AbortNode struct {
	baseNode
	Message Node // may be nil
}

// CallNode invokes a stdlib function by name with positional Args and an
// optional trailing Closure (the `|params| { block }` form for_each and
// friends take).
type CallNode struct {
	baseNode
	Name    string
	Args    []Node
	Closure *ClosureNode
}

// ClosureNode is a `|params| { block }` literal, only ever valid as a
// call's trailing argument.
type ClosureNode struct {
	baseNode
	Params []string
	Body   []Node
}

// ArrayNode is an array literal.
type ArrayNode struct {
	baseNode
	Elements []Node
}

// ObjectNode is an object literal.
type ObjectNode struct {
	baseNode
	Keys   []string
	Values []Node
}
