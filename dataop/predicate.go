package dataop

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/datachat-ai/datachat/table"
)

// The filter predicate language is a deliberately small subset of what a
// dataframe query string allows: comparisons between a column reference and
// a literal, combined with AND/OR (case insensitive, also &&/||) and
// parentheses. AND binds tighter than OR. Null cells never satisfy a
// comparison.

type boolExpr interface {
	eval(t *table.Table, row int) bool
	collectColumns(into map[string]struct{})
}

type binaryExpr struct {
	or    bool // false: AND
	left  boolExpr
	right boolExpr
}

func (e *binaryExpr) eval(t *table.Table, row int) bool {
	if e.or {
		return e.left.eval(t, row) || e.right.eval(t, row)
	}
	return e.left.eval(t, row) && e.right.eval(t, row)
}

func (e *binaryExpr) collectColumns(into map[string]struct{}) {
	e.left.collectColumns(into)
	e.right.collectColumns(into)
}

type cmpExpr struct {
	column string
	op     string // == != < <= > >=
	lit    any    // float64, string or bool
}

func (e *cmpExpr) collectColumns(into map[string]struct{}) {
	into[e.column] = struct{}{}
}

func (e *cmpExpr) eval(t *table.Table, row int) bool {
	v := t.Value(row, e.column)
	if v == nil {
		return false
	}
	switch lit := e.lit.(type) {
	case float64:
		var f float64
		switch x := v.(type) {
		case int64:
			f = float64(x)
		case float64:
			f = x
		default:
			return false
		}
		return compareOrdered(f, lit, e.op)
	case string:
		s, ok := v.(string)
		if !ok {
			return false
		}
		return compareOrdered(s, lit, e.op)
	case bool:
		b, ok := v.(bool)
		if !ok {
			return false
		}
		switch e.op {
		case "==":
			return b == lit
		case "!=":
			return b != lit
		}
		return false
	}
	return false
}

func compareOrdered[T float64 | string](a, b T, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	in  string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.in) && unicode.IsSpace(rune(l.in[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.in) {
		return token{kind: tokEOF}, nil
	}
	c := l.in[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen}, nil
	case c == '\'' || c == '"':
		quote := c
		end := l.pos + 1
		for end < len(l.in) && l.in[end] != quote {
			end++
		}
		if end >= len(l.in) {
			return token{}, fmt.Errorf("unterminated string at offset %d", l.pos)
		}
		text := l.in[l.pos+1 : end]
		l.pos = end + 1
		return token{kind: tokString, text: text}, nil
	case strings.ContainsRune("=!<>", rune(c)):
		start := l.pos
		l.pos++
		if l.pos < len(l.in) && l.in[l.pos] == '=' {
			l.pos++
		}
		op := l.in[start:l.pos]
		switch op {
		case "=", "==":
			return token{kind: tokOp, text: "=="}, nil
		case "!=", "<", "<=", ">", ">=":
			return token{kind: tokOp, text: op}, nil
		}
		return token{}, fmt.Errorf("bad operator %q", op)
	case c == '&' || c == '|':
		if l.pos+1 < len(l.in) && l.in[l.pos+1] == c {
			l.pos += 2
			if c == '&' {
				return token{kind: tokAnd}, nil
			}
			return token{kind: tokOr}, nil
		}
		return token{}, fmt.Errorf("bad operator %q", string(c))
	case c == '-' || c == '.' || unicode.IsDigit(rune(c)):
		start := l.pos
		l.pos++
		for l.pos < len(l.in) && (unicode.IsDigit(rune(l.in[l.pos])) || l.in[l.pos] == '.' || l.in[l.pos] == 'e' || l.in[l.pos] == 'E' || l.in[l.pos] == '+' || l.in[l.pos] == '-') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.in[start:l.pos]}, nil
	case c == '_' || unicode.IsLetter(rune(c)):
		start := l.pos
		for l.pos < len(l.in) && (l.in[l.pos] == '_' || unicode.IsLetter(rune(l.in[l.pos])) || unicode.IsDigit(rune(l.in[l.pos]))) {
			l.pos++
		}
		word := l.in[start:l.pos]
		switch strings.ToLower(word) {
		case "and":
			return token{kind: tokAnd}, nil
		case "or":
			return token{kind: tokOr}, nil
		}
		return token{kind: tokIdent, text: word}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at offset %d", string(c), l.pos)
}

// --- parser ---

type parser struct {
	lex lexer
	cur token
}

func parsePredicate(input string) (boolExpr, error) {
	p := &parser{lex: lexer{in: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing input")
	}
	return expr, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseOr() (boolExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{or: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (boolExpr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{or: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (boolExpr, error) {
	if p.cur.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (boolExpr, error) {
	if p.cur.kind != tokIdent {
		return nil, fmt.Errorf("expected column reference")
	}
	col := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind != tokOp {
		return nil, fmt.Errorf("expected comparison operator after %q", col)
	}
	op := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &cmpExpr{column: col, op: op, lit: lit}, nil
}

func (p *parser) parseLiteral() (any, error) {
	switch p.cur.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p.cur.text)
		}
		return f, nil
	case tokString:
		return p.cur.text, nil
	case tokIdent:
		switch strings.ToLower(p.cur.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("bare word %q is not a literal; quote string values", p.cur.text)
	}
	return nil, fmt.Errorf("expected literal value")
}
