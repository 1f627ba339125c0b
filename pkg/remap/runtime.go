package remap

import (
	"fmt"
	"sort"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

// Target is the abstract root a compiled Program reads and writes
// through, matching spec.md §4.2's description of resolve's first
// argument: the same program can run against an event's body or its
// metadata (eventTarget) or against a bare decoded value with no
// metadata at all (valueTarget, used by RunDecoder) because both satisfy
// this one interface.
type Target interface {
	Get(path value.Path) (*value.Value, bool)
	Insert(path value.Path, v value.Value) error
	Remove(path value.Path, compact bool) bool
	Paths() []value.Path
}

// eventTarget adapts an event.Event into a Target.
type eventTarget struct {
	ev *event.Event
}

// NewEventTarget adapts an event.Event into a remap Target.
func NewEventTarget(e *event.Event) Target { return eventTarget{ev: e} }

func (t eventTarget) Get(path value.Path) (*value.Value, bool) { return t.ev.Get(path) }
func (t eventTarget) Insert(path value.Path, v value.Value) error {
	return t.ev.Insert(path, v)
}
func (t eventTarget) Remove(path value.Path, compact bool) bool { return t.ev.Remove(path, compact) }
func (t eventTarget) Paths() []value.Path                       { return t.ev.Paths() }

// valueTarget adapts a single bare value.Value (no metadata side-channel)
// into a Target, for the decoder's ". = <raw bytes>" root binding.
type valueTarget struct {
	root *value.Value
}

// NewValueTarget wraps root for direct path access; used by RunDecoder to
// bind the decoded frame at "." with no event/metadata structure around
// it yet.
func NewValueTarget(root *value.Value) Target { return valueTarget{root: root} }

func (t valueTarget) Get(path value.Path) (*value.Value, bool) {
	if path.Root == value.RootMetadata {
		return nil, false
	}
	return t.root.Get(path)
}
func (t valueTarget) Insert(path value.Path, v value.Value) error {
	if path.Root == value.RootMetadata {
		return fmt.Errorf("remap: no metadata available while decoding")
	}
	return t.root.Insert(path, v)
}
func (t valueTarget) Remove(path value.Path, compact bool) bool {
	if path.Root == value.RootMetadata {
		return false
	}
	return t.root.Remove(path, compact)
}
func (t valueTarget) Paths() []value.Path {
	return t.root.Paths()
}

// TerminateKind distinguishes an explicit abort from an ordinary runtime
// error surfaced by a fallible expression left unhandled.
type TerminateKind int

const (
	TerminateAbort TerminateKind = iota
	TerminateError
)

// Terminate is returned by resolve when evaluation could not produce a
// final value, matching spec.md §4.2's Abort/Error variant pair.
type Terminate struct {
	Kind    TerminateKind
	Message string
	Span    Span
}

func (t *Terminate) Error() string {
	if t.Kind == TerminateAbort {
		return fmt.Sprintf("abort: %s", t.Message)
	}
	return fmt.Sprintf("remap error: %s", t.Message)
}

// Runtime holds reusable per-evaluation scratch storage (the local
// variable bindings) and runs compiled Programs. A Runtime is not safe
// for concurrent use by multiple goroutines at once -- each topology
// worker that evaluates remap programs keeps one Runtime per goroutine,
// matching spec.md §4.2's "thread-local to its caller".
type Runtime struct {
	vars map[string]value.Value
}

// NewRuntime constructs an empty Runtime.
func NewRuntime() *Runtime { return &Runtime{vars: map[string]value.Value{}} }

// Resolve evaluates program against target, returning the final
// statement's value or a Terminate describing why evaluation stopped
// short.
func (r *Runtime) Resolve(target Target, program *Program) (value.Value, *Terminate) {
	for k := range r.vars {
		delete(r.vars, k)
	}
	ctx := &evalContext{rt: r, target: target}
	var last value.Value = value.Null()
	for _, stmt := range program.Statements {
		v, term := ctx.eval(stmt)
		if term != nil {
			return value.Value{}, term
		}
		last = v
	}
	return last, nil
}

type evalContext struct {
	rt     *Runtime
	target Target
}

func (c *evalContext) eval(n Node) (value.Value, *Terminate) {
	switch node := n.(type) {
	case *LiteralNode:
		return node.Value, nil
	case *PathNode:
		v, ok := c.target.Get(node.Path)
		if !ok {
			return value.Null(), nil
		}
		return *v, nil
	case *VarNode:
		v, ok := c.rt.vars[node.Name]
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	case *AssignNode:
		return c.evalAssign(node)
	case *PropagateNode:
		v, term := c.eval(node.Inner)
		if term != nil {
			return value.Value{}, term
		}
		return v, nil
	case *CoalesceNode:
		v, term := c.eval(node.Left)
		if term == nil {
			return v, nil
		}
		return c.eval(node.Right)
	case *UnaryNode:
		return c.evalUnary(node)
	case *BinaryNode:
		return c.evalBinary(node)
	case *IfNode:
		return c.evalIf(node)
	case *AbortNode:
		msg := ""
		if node.Message != nil {
			v, term := c.eval(node.Message)
			if term != nil {
				return value.Value{}, term
			}
			if s, ok := v.StringValue(); ok {
				msg = s
			}
		}
		return value.Value{}, &Terminate{Kind: TerminateAbort, Message: msg, Span: node.Span()}
	case *ArrayNode:
		return c.evalArray(node)
	case *ObjectNode:
		return c.evalObject(node)
	case *CallNode:
		return c.evalCall(node)
	default:
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "unsupported node", Span: n.Span()}
	}
}

func (c *evalContext) evalAssign(node *AssignNode) (value.Value, *Terminate) {
	v, term := c.eval(node.Value)
	if term != nil {
		if node.ErrVar == "" {
			return value.Value{}, term
		}
		c.rt.vars[node.ErrVar] = value.String(term.Error())
		v = value.Null()
	} else if node.ErrVar != "" {
		c.rt.vars[node.ErrVar] = value.Null()
	}

	switch target := node.Target.(type) {
	case *VarNode:
		c.rt.vars[target.Name] = v
	case *PathNode:
		if err := c.target.Insert(target.Path, v); err != nil {
			return value.Value{}, &Terminate{Kind: TerminateError, Message: err.Error(), Span: node.Span()}
		}
	}
	return v, nil
}

func (c *evalContext) evalUnary(node *UnaryNode) (value.Value, *Terminate) {
	v, term := c.eval(node.Inner)
	if term != nil {
		return value.Value{}, term
	}
	switch node.Op {
	case NOT:
		return value.Bool(!v.Truthy()), nil
	case MINUS:
		if i, ok := v.Integer(); ok {
			return value.Int(-i), nil
		}
		if f, ok := v.Float64(); ok {
			return value.MustFloat(-f), nil
		}
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "unary '-' requires a number", Span: node.Span()}
	default:
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "unsupported unary operator", Span: node.Span()}
	}
}

func (c *evalContext) evalBinary(node *BinaryNode) (value.Value, *Terminate) {
	if node.Op == AND {
		l, term := c.eval(node.Left)
		if term != nil {
			return value.Value{}, term
		}
		if !l.Truthy() {
			return value.Bool(false), nil
		}
		r, term := c.eval(node.Right)
		if term != nil {
			return value.Value{}, term
		}
		return value.Bool(r.Truthy()), nil
	}
	if node.Op == OR {
		l, term := c.eval(node.Left)
		if term != nil {
			return value.Value{}, term
		}
		if l.Truthy() {
			return value.Bool(true), nil
		}
		r, term := c.eval(node.Right)
		if term != nil {
			return value.Value{}, term
		}
		return value.Bool(r.Truthy()), nil
	}

	l, term := c.eval(node.Left)
	if term != nil {
		return value.Value{}, term
	}
	r, term := c.eval(node.Right)
	if term != nil {
		return value.Value{}, term
	}

	var result value.Value
	var err error
	switch node.Op {
	case PLUS:
		result, err = value.Add(l, r)
	case MINUS:
		result, err = value.Sub(l, r)
	case STAR:
		result, err = value.Mul(l, r)
	case SLASH:
		result, err = value.Div(l, r)
	case PERCENT:
		result, err = value.Rem(l, r)
	case EQ:
		result = value.Bool(l.Equal(r))
	case NEQ:
		result = value.Bool(!l.Equal(r))
	case LT:
		var b bool
		b, err = value.Less(l, r)
		result = value.Bool(b)
	case LTE:
		var b bool
		b, err = value.LessOrEqual(l, r)
		result = value.Bool(b)
	case GT:
		var b bool
		b, err = value.Greater(l, r)
		result = value.Bool(b)
	case GTE:
		var b bool
		b, err = value.GreaterOrEqual(l, r)
		result = value.Bool(b)
	default:
		err = fmt.Errorf("unsupported binary operator")
	}
	if err != nil {
		return value.Value{}, &Terminate{Kind: TerminateError, Message: err.Error(), Span: node.Span()}
	}
	return result, nil
}

func (c *evalContext) evalIf(node *IfNode) (value.Value, *Terminate) {
	cond, term := c.eval(node.Cond)
	if term != nil {
		return value.Value{}, term
	}
	branch := node.Else
	if cond.Truthy() {
		branch = node.Then
	}
	var last value.Value = value.Null()
	for _, stmt := range branch {
		v, term := c.eval(stmt)
		if term != nil {
			return value.Value{}, term
		}
		last = v
	}
	return last, nil
}

func (c *evalContext) evalArray(node *ArrayNode) (value.Value, *Terminate) {
	out := make([]value.Value, len(node.Elements))
	for i, e := range node.Elements {
		v, term := c.eval(e)
		if term != nil {
			return value.Value{}, term
		}
		out[i] = v
	}
	return value.Array(out), nil
}

func (c *evalContext) evalObject(node *ObjectNode) (value.Value, *Terminate) {
	out := make(map[string]value.Value, len(node.Keys))
	for i, k := range node.Keys {
		v, term := c.eval(node.Values[i])
		if term != nil {
			return value.Value{}, term
		}
		out[k] = v
	}
	return value.Object(out), nil
}

func (c *evalContext) evalCall(node *CallNode) (value.Value, *Terminate) {
	if node.Name == "del" {
		return c.evalDel(node)
	}
	if sig, ok := stdlibSignatures[node.Name]; ok && sig.HasClosure {
		return c.evalClosureCall(node)
	}

	args := make([]value.Value, len(node.Args))
	for i, a := range node.Args {
		v, term := c.eval(a)
		if term != nil {
			return value.Value{}, term
		}
		args[i] = v
	}
	fn, ok := stdlibFuncs[node.Name]
	if !ok {
		return value.Value{}, &Terminate{Kind: TerminateError, Message: fmt.Sprintf("unknown function %q", node.Name), Span: node.Span()}
	}
	result, err := fn(args)
	if err != nil {
		return value.Value{}, &Terminate{Kind: TerminateError, Message: err.Error(), Span: node.Span()}
	}
	return result, nil
}

// evalDel requires its sole argument to be a path expression: it removes
// that path from the target and returns the value that was there (Null
// if absent), matching the reference del() function's semantics.
func (c *evalContext) evalDel(node *CallNode) (value.Value, *Terminate) {
	if len(node.Args) != 1 {
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "del: expects exactly one path argument", Span: node.Span()}
	}
	pn, ok := node.Args[0].(*PathNode)
	if !ok {
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "del: argument must be a path", Span: node.Span()}
	}
	prev, existed := c.target.Get(pn.Path)
	c.target.Remove(pn.Path, true)
	if !existed {
		return value.Null(), nil
	}
	return *prev, nil
}

// evalClosureCall implements the closure-taking iteration functions:
// for_each walks an array/object purely for side effects (its own
// assignments inside the block), map_values rebuilds an array with each
// element replaced by the closure's result, and filter keeps only the
// elements for which the closure's result is truthy. Grounded on
// original_source/lib/vrl/stdlib/src/{for_each,map_values,filter}.rs,
// expressed as direct Go iteration since this runtime has no general
// first-class closure value, only this fixed set of built-in consumers.
func (c *evalContext) evalClosureCall(node *CallNode) (value.Value, *Terminate) {
	if len(node.Args) != 1 || node.Closure == nil {
		return value.Value{}, &Terminate{Kind: TerminateError, Message: fmt.Sprintf("%s: expects one argument and a closure", node.Name), Span: node.Span()}
	}
	subject, term := c.eval(node.Args[0])
	if term != nil {
		return value.Value{}, term
	}

	runBody := func(bindings map[string]value.Value) (value.Value, *Terminate) {
		for k, v := range bindings {
			c.rt.vars[k] = v
		}
		var last value.Value = value.Null()
		for _, stmt := range node.Closure.Body {
			v, term := c.eval(stmt)
			if term != nil {
				return value.Value{}, term
			}
			last = v
		}
		return last, nil
	}

	switch node.Name {
	case "for_each":
		if arr, ok := subject.ArrayValue(); ok {
			for i, e := range arr {
				params := closureParams(node.Closure, 2)
				if _, term := runBody(map[string]value.Value{params[0]: value.Int(int64(i)), params[1]: e}); term != nil {
					return value.Value{}, term
				}
			}
			return value.Null(), nil
		}
		if obj, ok := subject.ObjectValue(); ok {
			for _, k := range sortedObjectKeys(obj) {
				params := closureParams(node.Closure, 2)
				if _, term := runBody(map[string]value.Value{params[0]: value.String(k), params[1]: obj[k]}); term != nil {
					return value.Value{}, term
				}
			}
			return value.Null(), nil
		}
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "for_each: argument must be an array or object", Span: node.Span()}
	case "map_values":
		if arr, ok := subject.ArrayValue(); ok {
			out := make([]value.Value, len(arr))
			params := closureParams(node.Closure, 1)
			for i, e := range arr {
				v, term := runBody(map[string]value.Value{params[0]: e})
				if term != nil {
					return value.Value{}, term
				}
				out[i] = v
			}
			return value.Array(out), nil
		}
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "map_values: argument must be an array", Span: node.Span()}
	case "filter":
		if arr, ok := subject.ArrayValue(); ok {
			var out []value.Value
			params := closureParams(node.Closure, 2)
			for i, e := range arr {
				v, term := runBody(map[string]value.Value{params[0]: value.Int(int64(i)), params[1]: e})
				if term != nil {
					return value.Value{}, term
				}
				if v.Truthy() {
					out = append(out, e)
				}
			}
			return value.Array(out), nil
		}
		return value.Value{}, &Terminate{Kind: TerminateError, Message: "filter: argument must be an array", Span: node.Span()}
	default:
		return value.Value{}, &Terminate{Kind: TerminateError, Message: fmt.Sprintf("unknown closure function %q", node.Name), Span: node.Span()}
	}
}

// closureParams pads a closure's declared parameter names out to want
// entries with placeholder names, so a caller that only names one
// parameter (e.g. "|v|" on a function that binds index+value) doesn't
// panic on a missing slice index.
func closureParams(c *ClosureNode, want int) []string {
	out := make([]string, want)
	for i := 0; i < want; i++ {
		if i < len(c.Params) {
			out[i] = c.Params[i]
		} else {
			out[i] = fmt.Sprintf("_unused%d", i)
		}
	}
	return out
}

func sortedObjectKeys(m map[string]value.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
