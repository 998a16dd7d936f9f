package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// -----------------------------------------------------------------------
// AST nodes
// -----------------------------------------------------------------------

// Expr is the common interface for all logic-expression AST nodes.
type Expr interface {
	exprNode()
}

// BinaryExpr represents AND / OR.
type BinaryExpr struct {
	Op    string // "AND" | "OR"
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// NotExpr represents NOT <expr>.
type NotExpr struct {
	Expr Expr
}

func (*NotExpr) exprNode() {}

// RefExpr refers to a rule condition by its 1-based position.
type RefExpr struct {
	Index int
}

func (*RefExpr) exprNode() {}

// -----------------------------------------------------------------------
// Tokenizer
// -----------------------------------------------------------------------

type tokenKind int

const (
	tokIndex tokenKind = iota // 1, 2, 3 …
	tokWord                   // AND | OR | NOT
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		if unicode.IsSpace(rune(ch)) {
			i++
			continue
		}
		if ch == '(' {
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
			continue
		}
		if ch == ')' {
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
			continue
		}
		if ch >= '0' && ch <= '9' {
			j := i
			for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
				j++
			}
			tokens = append(tokens, token{tokIndex, expr[i:j], i})
			i = j
			continue
		}
		if unicode.IsLetter(rune(ch)) {
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j]))) {
				j++
			}
			word := strings.ToUpper(expr[i:j])
			switch word {
			case "AND", "OR", "NOT":
				tokens = append(tokens, token{tokWord, word, i})
			default:
				return nil, &ParseError{Expr: expr, Pos: i, Msg: fmt.Sprintf("unknown token %q", expr[i:j])}
			}
			i = j
			continue
		}
		return nil, &ParseError{Expr: expr, Pos: i, Msg: fmt.Sprintf("unexpected character %q", ch)}
	}
	tokens = append(tokens, token{tokEOF, "", len(expr)})
	return tokens, nil
}

// -----------------------------------------------------------------------
// Recursive-descent parser
// -----------------------------------------------------------------------

type parser struct {
	src        string
	tokens     []token
	pos        int
	conditions int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{Expr: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isWord(w string) bool {
	t := p.peek()
	return t.kind == tokWord && t.val == w
}

// Parse parses a logic expression whose indices must lie in [1, conditions].
func Parse(expr string, conditions int) (Expr, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{src: expr, tokens: tokens, conditions: conditions}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected token %q after expression", t.val)
	}
	return node, nil
}

// or_expr = and_expr ( "OR" and_expr )*
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("OR") {
		p.consume()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

// and_expr = not_expr ( "AND" not_expr )*
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isWord("AND") {
		p.consume()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

// not_expr = "NOT" not_expr | "(" or_expr ")" | index
func (p *parser) parseNot() (Expr, error) {
	if p.isWord("NOT") {
		p.consume()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.consume()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.peek(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected \")\" but got %q", closing.val)
		}
		p.consume()
		return inner, nil
	case tokIndex:
		p.consume()
		n, err := strconv.Atoi(t.val)
		if err != nil {
			return nil, p.errorf(t, "invalid index %q", t.val)
		}
		if n < 1 || n > p.conditions {
			return nil, p.errorf(t, "condition index %d out of range [1, %d]", n, p.conditions)
		}
		return &RefExpr{Index: n}, nil
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	default:
		return nil, p.errorf(t, "expected condition index, got %q", t.val)
	}
}
