package remap

import "fmt"

// Span locates a diagnostic in the original source text, the same
// start/end/line triple every token and AST node carries forward so a
// compile error always points at real source, not just "somewhere".
type Span struct {
	Start int
	End   int
	Line  int
}

// Code is a stable error identifier, matching the "error[Exxx]" style
// original_source/lib/vrl/compiler/src/diagnostic.rs renders.
type Code string

const (
	CodeSyntaxError     Code = "E203"
	CodeUndefinedIdent  Code = "E105"
	CodeUnhandledFallible Code = "E620"
	CodeTypeMismatch    Code = "E110"
	CodeUnknownFunction Code = "E211"
	CodeArity           Code = "E212"
)

// Diagnostic is one compile-time error. A program is either fully valid
// (Compile returns a non-nil Program and a nil/empty diagnostic slice) or
// rejected with one or more of these.
type Diagnostic struct {
	Code    Code
	Message string
	Span    Span
}

// Format renders a diagnostic the way the reference compiler's colored
// report does, minus the color: "error[E203]: syntax error\n  at line N".
func (d Diagnostic) Format() string {
	return fmt.Sprintf("error[%s]: %s\n  at line %d", d.Code, d.Message, d.Span.Line)
}

// CompileError aggregates every diagnostic from a failed Compile call.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "remap: compile failed"
	}
	s := e.Diagnostics[0].Format()
	for _, d := range e.Diagnostics[1:] {
		s += "\n" + d.Format()
	}
	return s
}
