package remap

// Kind enumerates lexical token classes. Grounded on the token taxonomy of
// original_source/lib/vrl/compiler/src/parser/lex.rs, trimmed to the
// subset this runtime's grammar uses.
type Kind int

const (
	EOF Kind = iota
	ERROR

	IDENT    // bare identifier: used as a variable name or function name
	PATH     // ".foo.bar[0]" -- the raw text handed to value.ParsePath
	METAPATH // "%foo.bar" -- metadata path
	INT
	FLOAT
	STRING
	REGEX

	TRUE
	FALSE
	NULL
	IF
	ELSE
	ABORT

	ASSIGN     // =
	QUESTION   // ?
	COALESCE   // ??
	PLUS       // +
	MINUS      // -
	STAR       // *
	SLASH      // /
	PERCENT    // %
	EQ         // ==
	NEQ        // !=
	LT         // <
	LTE        // <=
	GT         // >
	GTE        // >=
	AND        // &&
	OR         // ||
	NOT        // !
	ARROW      // ->
	PIPE       // |
	COMMA      // ,
	DOT        // . (not emitted by the lexer: a bare '.' lexes as the root PATH)
	COLON      // :
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	SEMI // ; (newlines are skipped as whitespace and never produce SEMI)
)

var keywords = map[string]Kind{
	"true":  TRUE,
	"false": FALSE,
	"null":  NULL,
	"if":    IF,
	"else":  ELSE,
	"abort": ABORT,
}

// Token is one lexical unit with its source span, used both by the parser
// and by diagnostics to point at the offending text.
type Token struct {
	Kind  Kind
	Text  string
	Start int
	End   int
	Line  int
}

func (t Token) Span() Span { return Span{Start: t.Start, End: t.End, Line: t.Line} }
