package remap

import "fmt"

// Compile parses and checks src, returning a ready-to-run Program or the
// full set of diagnostics that rejected it. Grounded on spec.md §4.2's
// pipeline description (lexer -> parser -> AST -> type-check -> compiled
// Program); the type-check stage here is the fallibility-discipline pass
// checkFallibility implements, a deliberately narrower stand-in for the
// reference compiler's full flow-sensitive TypeState narrowing (see
// DESIGN.md's pkg/remap entry for why the full narrowing was not
// attempted).
func Compile(src string) (*Program, error) {
	stmts, diags := parseSource(src)
	diags = append(diags, checkFallibility(stmts)...)
	if len(diags) > 0 {
		return nil, &CompileError{Diagnostics: diags}
	}
	return &Program{Statements: stmts, Source: src}, nil
}

// MustCompile panics on a compile error; used for constant test/fixture
// programs the caller already knows are valid.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(fmt.Sprintf("remap: MustCompile: %v", err))
	}
	return p
}

// checkFallibility walks every statement (recursing into if/else and
// closure bodies) and rejects any whose IsFallible bit survived
// unhandled, per spec.md §4.2's discipline: every fallible expression
// must be resolved with '?', '??', or an error-binding assignment before
// the program is accepted.
func checkFallibility(stmts []Node) []Diagnostic {
	var diags []Diagnostic
	for _, s := range stmts {
		if s.IsFallible() {
			diags = append(diags, Diagnostic{
				Code:    CodeUnhandledFallible,
				Message: "fallible expression must be handled with '?', '??', or an error-capturing assignment",
				Span:    s.Span(),
			})
		}
		diags = append(diags, checkFallibilityChildren(s)...)
	}
	return diags
}

func checkFallibilityChildren(n Node) []Diagnostic {
	switch node := n.(type) {
	case *IfNode:
		var d []Diagnostic
		d = append(d, checkFallibility(node.Then)...)
		d = append(d, checkFallibility(node.Else)...)
		return d
	case *CallNode:
		if node.Closure != nil {
			return checkFallibility(node.Closure.Body)
		}
	}
	return nil
}
