// Package formula evaluates the safe arithmetic expressions stored in
// conversion configuration. The grammar is closed: numeric literals, the
// four arithmetic operators, parentheses, bracket-delimited variable
// references like [level], and the functions floor, ceil, round, min, max.
// Nothing outside that grammar is executed or resolved.
package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrEvaluate marks a formula that could not be parsed or evaluated.
var ErrEvaluate = eris.New("formula evaluation failed")

// Evaluate parses and evaluates an arithmetic expression against the given
// variable set. An empty expression evaluates to nil. Variables absent from
// vars evaluate to 0.
func Evaluate(expr string, vars map[string]float64) (*float64, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	node, err := parse(expr)
	if err != nil {
		return nil, eris.Wrapf(ErrEvaluate, "formula: %q: %v", expr, err)
	}

	v, err := node.eval(vars)
	if err != nil {
		return nil, eris.Wrapf(ErrEvaluate, "formula: %q: %v", expr, err)
	}
	return &v, nil
}

// Validate checks an expression against the grammar without evaluating it.
// Findings are returned as data; an empty or all-whitespace expression is
// valid (it evaluates to nil).
func Validate(expr string) []string {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	if _, ok := ParseTable(expr); ok {
		return nil
	}
	if _, err := parse(expr); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// EvaluateRange evaluates the expression once per integer value of varName
// across [lo, hi], both endpoints inclusive. Swapped bounds are normalized
// so results are always indexed ascending. Other variables come from base,
// which is never mutated.
func EvaluateRange(expr, varName string, lo, hi int, base map[string]float64) (map[int]float64, error) {
	if lo > hi {
		lo, hi = hi, lo
	}

	vars := make(map[string]float64, len(base)+1)
	for k, v := range base {
		vars[k] = v
	}

	out := make(map[int]float64, hi-lo+1)
	for x := lo; x <= hi; x++ {
		vars[varName] = float64(x)
		v, err := Evaluate(expr, vars)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		out[x] = *v
	}
	return out, nil
}

// EvaluateStored evaluates a stored conversion expression, which is either a
// piecewise lookup table (JSON object with a "characteristic" key) or an
// arithmetic string. Table JSON without a characteristic key falls back to
// arithmetic parsing.
func EvaluateStored(raw string, vars map[string]float64) (*float64, error) {
	if tbl, ok := ParseTable(raw); ok {
		v := tbl.Lookup(vars[tbl.Characteristic])
		return &v, nil
	}
	return Evaluate(raw, vars)
}

// ---- lexer ----

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokVar
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	num  float64
	text string
	pos  int
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(input[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", input[i:j], i)
			}
			toks = append(toks, token{kind: tokNumber, num: n, pos: i})
			i = j
		case c == '[':
			j := i + 1
			for j < len(input) && input[j] != ']' {
				if !isNameChar(input[j]) {
					return nil, fmt.Errorf("invalid character %q in variable name at position %d", input[j], j)
				}
				j++
			}
			if j >= len(input) {
				return nil, fmt.Errorf("unterminated variable reference at position %d", i)
			}
			if j == i+1 {
				return nil, fmt.Errorf("empty variable reference at position %d", i)
			}
			toks = append(toks, token{kind: tokVar, text: input[i+1 : j], pos: i})
			i = j + 1
		case isNameChar(c):
			j := i
			for j < len(input) && isNameChar(input[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: input[i:j], pos: i})
			i = j
		case c == '+':
			toks = append(toks, token{kind: tokPlus, pos: i})
			i++
		case c == '-':
			toks = append(toks, token{kind: tokMinus, pos: i})
			i++
		case c == '*':
			toks = append(toks, token{kind: tokStar, pos: i})
			i++
		case c == '/':
			toks = append(toks, token{kind: tokSlash, pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(input)})
	return toks, nil
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// ---- parser ----

type node interface {
	eval(vars map[string]float64) (float64, error)
}

type numberNode float64

func (n numberNode) eval(map[string]float64) (float64, error) { return float64(n), nil }

type varNode string

func (n varNode) eval(vars map[string]float64) (float64, error) {
	// Undefined variables are 0 by contract.
	return vars[string(n)], nil
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n *binaryNode) eval(vars map[string]float64) (float64, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case tokPlus:
		return l + r, nil
	case tokMinus:
		return l - r, nil
	case tokStar:
		return l * r, nil
	default:
		if r == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return l / r, nil
	}
}

type negNode struct{ operand node }

func (n *negNode) eval(vars map[string]float64) (float64, error) {
	v, err := n.operand.eval(vars)
	return -v, err
}

type callNode struct {
	fn   string
	args []node
}

func (n *callNode) eval(vars map[string]float64) (float64, error) {
	vals := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(vars)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	switch n.fn {
	case "floor":
		return math.Floor(vals[0]), nil
	case "ceil":
		return math.Ceil(vals[0]), nil
	case "round":
		return math.Round(vals[0]), nil
	case "min":
		out := vals[0]
		for _, v := range vals[1:] {
			out = math.Min(out, v)
		}
		return out, nil
	default: // "max", enforced at parse time
		out := vals[0]
		for _, v := range vals[1:] {
			out = math.Max(out, v)
		}
		return out, nil
	}
}

var functionArity = map[string]struct{ min, max int }{
	"floor": {1, 1},
	"ceil":  {1, 1},
	"round": {1, 1},
	"min":   {2, -1},
	"max":   {2, -1},
}

type parser struct {
	toks []token
	pos  int
}

func parse(input string) (node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token at position %d", p.peek().pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokPlus && op != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokStar && op != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode(t.num), nil
	case tokVar:
		return varNode(t.text), nil
	case tokIdent:
		return p.parseCall(t)
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); tok.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at position %d", tok.pos)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token at position %d", t.pos)
	}
}

func (p *parser) parseCall(name token) (node, error) {
	arity, ok := functionArity[name.text]
	if !ok {
		return nil, fmt.Errorf("unknown function %q at position %d", name.text, name.pos)
	}
	if open := p.next(); open.kind != tokLParen {
		return nil, fmt.Errorf("expected '(' after %q at position %d", name.text, open.pos)
	}

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if tok := p.next(); tok.kind != tokRParen {
		return nil, fmt.Errorf("expected ')' at position %d", tok.pos)
	}

	if len(args) < arity.min || (arity.max >= 0 && len(args) > arity.max) {
		return nil, fmt.Errorf("wrong argument count for %q at position %d", name.text, name.pos)
	}
	return &callNode{fn: name.text, args: args}, nil
}
