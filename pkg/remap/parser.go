package remap

import (
	"fmt"

	"github.com/ssw/routeflow/pkg/value"
)

// parser is a hand-written recursive-descent/precedence-climbing parser,
// the same style original_source/lib/vrl/compiler/src/parser uses (a
// Pratt-ish expression parser layered under a small statement grammar).
// No parser-generator or combinator library appears anywhere in the
// retrieved pack, so a direct recursive-descent parser is the
// corpus-consistent choice, matching pkg/value/path.go's own
// hand-written state machine for the same reason.
type parser struct {
	toks []Token
	pos  int
	diags []Diagnostic
}

func parseSource(src string) ([]Node, []Diagnostic) {
	lx := newLexer(src)
	var toks []Token
	for {
		tok := lx.Next()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			break
		}
	}
	p := &parser{toks: toks}
	stmts := p.parseStatements()
	return stmts, p.diags
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) at(k Kind) bool { return p.cur().Kind == k }

func (p *parser) expect(k Kind, what string) Token {
	if p.at(k) {
		return p.advance()
	}
	p.errorf(p.cur().Span(), "expected %s", what)
	return p.cur()
}

func (p *parser) errorf(span Span, format string, args ...interface{}) {
	p.diags = append(p.diags, Diagnostic{
		Code:    CodeSyntaxError,
		Message: fmt.Sprintf(format, args...),
		Span:    span,
	})
}

func (p *parser) parseStatements() []Node {
	var stmts []Node
	for !p.at(EOF) {
		if p.at(SEMI) {
			p.advance()
			continue
		}
		start := p.pos
		stmt := p.parseStatement()
		stmts = append(stmts, stmt)
		if p.at(SEMI) {
			p.advance()
		}
		if p.pos == start {
			// parseStatement made no progress (e.g. on a lone garbage
			// token): force forward motion so the loop terminates.
			p.errorf(p.cur().Span(), "syntax error near %q", p.cur().Text)
			p.advance()
		}
	}
	return stmts
}

func (p *parser) parseStatement() Node {
	if p.at(ABORT) {
		return p.parseAbort()
	}
	if p.at(PATH) && p.isAssignAhead(1) {
		return p.parseAssign()
	}
	if p.at(IDENT) && p.isAssignAhead(1) {
		return p.parseAssign()
	}
	if p.at(IDENT) && p.peekAt(1).Kind == COMMA {
		// "x, err = expr" -- a second binding before the '='.
		return p.parseAssign()
	}
	return p.parseExpr(0)
}

// isAssignAhead reports whether the token n positions ahead is '='
// (a direct single-target assignment).
func (p *parser) isAssignAhead(n int) bool {
	return p.peekAt(n).Kind == ASSIGN
}

func (p *parser) parseAbort() Node {
	tok := p.advance()
	var msg Node
	if !p.at(EOF) && !p.at(SEMI) && !p.at(RBRACE) {
		msg = p.parseExpr(0)
	}
	return &AbortNode{baseNode: baseNode{span: tok.Span(), fallible: msg != nil && msg.IsFallible()}, Message: msg}
}

func (p *parser) parseAssign() Node {
	startTok := p.cur()
	var target Node
	if p.at(PATH) {
		pt := p.advance()
		target = &PathNode{baseNode: baseNode{span: pt.Span()}, Path: value.ParsePath(pt.Text)}
	} else {
		it := p.advance()
		target = &VarNode{baseNode: baseNode{span: it.Span()}, Name: it.Text}
	}

	errVar := ""
	if p.at(COMMA) {
		p.advance()
		it := p.expect(IDENT, "error-binding identifier")
		errVar = it.Text
	}

	p.expect(ASSIGN, "'='")
	rhs := p.parseExpr(0)
	fallible := rhs.IsFallible() && errVar == ""
	return &AssignNode{
		baseNode: baseNode{span: startTok.Span(), fallible: fallible},
		Target:   target,
		ErrVar:   errVar,
		Value:    rhs,
	}
}

// precedence levels, low to high.
const (
	precNone = iota
	precCoalesce
	precOr
	precAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
)

func binPrec(k Kind) int {
	switch k {
	case COALESCE:
		return precCoalesce
	case OR:
		return precOr
	case AND:
		return precAnd
	case EQ, NEQ:
		return precEquality
	case LT, LTE, GT, GTE:
		return precComparison
	case PLUS, MINUS:
		return precAdditive
	case STAR, SLASH, PERCENT:
		return precMultiplicative
	default:
		return precNone
	}
}

func (p *parser) parseExpr(minPrec int) Node {
	left := p.parseUnary()
	for {
		op := p.cur().Kind
		prec := binPrec(op)
		if prec == precNone || prec < minPrec {
			break
		}
		opTok := p.advance()
		right := p.parseExpr(prec + 1)
		if op == COALESCE {
			left = &CoalesceNode{baseNode: baseNode{span: opTok.Span(), fallible: right.IsFallible()}, Left: left, Right: right}
			continue
		}
		fallible := left.IsFallible() || right.IsFallible()
		left = &BinaryNode{baseNode: baseNode{span: opTok.Span(), fallible: fallible}, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) parseUnary() Node {
	if p.at(NOT) || p.at(MINUS) {
		tok := p.advance()
		inner := p.parseUnary()
		return &UnaryNode{baseNode: baseNode{span: tok.Span(), fallible: inner.IsFallible()}, Op: tok.Kind, Inner: inner}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Node {
	n := p.parsePrimary()
	for p.at(QUESTION) {
		tok := p.advance()
		n = &PropagateNode{baseNode: baseNode{span: tok.Span(), fallible: false}, Inner: n}
	}
	return n
}

func (p *parser) parsePrimary() Node {
	tok := p.cur()
	switch tok.Kind {
	case INT:
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: parseIntLiteral(tok.Text)}
	case FLOAT:
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: parseFloatLiteral(tok.Text)}
	case STRING:
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.String(tok.Text)}
	case REGEX:
		p.advance()
		re, err := compileRegexLiteral(tok.Text)
		if err != nil {
			p.errorf(tok.Span(), "invalid regex literal: %v", err)
			return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.Null()}
		}
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.Regex(re)}
	case TRUE:
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.Bool(true)}
	case FALSE:
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.Bool(false)}
	case NULL:
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.Null()}
	case PATH:
		p.advance()
		return &PathNode{baseNode: baseNode{span: tok.Span()}, Path: value.ParsePath(tok.Text)}
	case METAPATH:
		p.advance()
		return &PathNode{baseNode: baseNode{span: tok.Span()}, Path: value.ParseMetadataPath(tok.Text[1:])}
	case LPAREN:
		p.advance()
		inner := p.parseExpr(0)
		p.expect(RPAREN, "')'")
		return inner
	case LBRACKET:
		return p.parseArray()
	case LBRACE:
		return p.parseObject()
	case IF:
		return p.parseIf()
	case IDENT:
		return p.parseIdentOrCall()
	default:
		p.errorf(tok.Span(), "syntax error")
		p.advance()
		return &LiteralNode{baseNode: baseNode{span: tok.Span()}, Value: value.Null()}
	}
}

func (p *parser) parseArray() Node {
	tok := p.advance() // '['
	var elems []Node
	fallible := false
	for !p.at(RBRACKET) && !p.at(EOF) {
		e := p.parseExpr(0)
		fallible = fallible || e.IsFallible()
		elems = append(elems, e)
		if p.at(COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(RBRACKET, "']'")
	return &ArrayNode{baseNode: baseNode{span: tok.Span(), fallible: fallible}, Elements: elems}
}

func (p *parser) parseObject() Node {
	tok := p.advance() // '{'
	var keys []string
	var vals []Node
	fallible := false
	for !p.at(RBRACE) && !p.at(EOF) {
		var key string
		if p.at(STRING) || p.at(IDENT) {
			key = p.advance().Text
		} else {
			p.errorf(p.cur().Span(), "expected object key")
			p.advance()
		}
		p.expect(COLON, "':'")
		v := p.parseExpr(0)
		fallible = fallible || v.IsFallible()
		keys = append(keys, key)
		vals = append(vals, v)
		if p.at(COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(RBRACE, "'}'")
	return &ObjectNode{baseNode: baseNode{span: tok.Span(), fallible: fallible}, Keys: keys, Values: vals}
}

func (p *parser) parseIf() Node {
	tok := p.advance() // 'if'
	cond := p.parseExpr(0)
	thenBlock := p.parseBlock()
	var elseBlock []Node
	if p.at(ELSE) {
		p.advance()
		if p.at(IF) {
			elseBlock = []Node{p.parseIf()}
		} else {
			elseBlock = p.parseBlock()
		}
	}
	fallible := cond.IsFallible() || blockFallible(thenBlock) || blockFallible(elseBlock)
	return &IfNode{baseNode: baseNode{span: tok.Span(), fallible: fallible}, Cond: cond, Then: thenBlock, Else: elseBlock}
}

func blockFallible(stmts []Node) bool {
	for _, s := range stmts {
		if s.IsFallible() {
			return true
		}
	}
	return false
}

func (p *parser) parseBlock() []Node {
	p.expect(LBRACE, "'{'")
	var stmts []Node
	for !p.at(RBRACE) && !p.at(EOF) {
		if p.at(SEMI) {
			p.advance()
			continue
		}
		start := p.pos
		stmts = append(stmts, p.parseStatement())
		if p.at(SEMI) {
			p.advance()
		}
		if p.pos == start {
			p.advance()
		}
	}
	p.expect(RBRACE, "'}'")
	return stmts
}

// parseIdentOrCall handles a bare identifier: either a variable reference
// or, when followed by '(', a function call with an optional trailing
// closure argument ("name(args) -> |params| { block }").
func (p *parser) parseIdentOrCall() Node {
	tok := p.advance()
	if !p.at(LPAREN) {
		return &VarNode{baseNode: baseNode{span: tok.Span()}, Name: tok.Text}
	}
	p.advance() // '('
	var args []Node
	fallible := false
	for !p.at(RPAREN) && !p.at(EOF) {
		a := p.parseExpr(0)
		fallible = fallible || a.IsFallible()
		args = append(args, a)
		if p.at(COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(RPAREN, "')'")

	var closure *ClosureNode
	if p.at(ARROW) {
		p.advance()
		closure = p.parseClosure()
	}

	if sig, ok := stdlibSignatures[tok.Text]; ok {
		fallible = fallible || sig.Fallible
		if len(args) < sig.MinArgs || (sig.MaxArgs >= 0 && len(args) > sig.MaxArgs) {
			p.diags = append(p.diags, Diagnostic{
				Code:    CodeArity,
				Message: fmt.Sprintf("%s: expects between %d and %d arguments, got %d", tok.Text, sig.MinArgs, sig.MaxArgs, len(args)),
				Span:    tok.Span(),
			})
		}
	} else {
		p.diags = append(p.diags, Diagnostic{
			Code:    CodeUnknownFunction,
			Message: fmt.Sprintf("call to unknown function %q", tok.Text),
			Span:    tok.Span(),
		})
	}

	return &CallNode{baseNode: baseNode{span: tok.Span(), fallible: fallible}, Name: tok.Text, Args: args, Closure: closure}
}

func (p *parser) parseClosure() *ClosureNode {
	tok := p.expect(PIPE, "'|'")
	var params []string
	for !p.at(PIPE) && !p.at(EOF) {
		params = append(params, p.expect(IDENT, "closure parameter").Text)
		if p.at(COMMA) {
			p.advance()
		}
	}
	p.expect(PIPE, "'|'")
	body := p.parseBlock()
	return &ClosureNode{baseNode: baseNode{span: tok.Span(), fallible: blockFallible(body)}, Params: params, Body: body}
}
