package enginetest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openbracket/gdrb/internal/engine"
)

// Eval evaluates the small expression language Sim exposes: float
// arithmetic (+ - * / %), parentheses, quoted string literals with +
// concatenation, true/false, and scene reads of the form
// node('Main/Foo').property. The result is rendered through the same
// stringifier the wait scheduler uses.
func (s *Sim) Eval(expr string) (string, error) {
	e := &evaluator{sim: s, src: expr}
	v, err := e.parseSum()
	if err != nil {
		return "", err
	}
	e.skipSpace()
	if e.pos != len(e.src) {
		return "", fmt.Errorf("unexpected %q at offset %d", e.src[e.pos:], e.pos)
	}
	return engine.Stringify(v), nil
}

type evaluator struct {
	sim *Sim
	src string
	pos int
}

func (e *evaluator) parseSum() (any, error) {
	left, err := e.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		e.skipSpace()
		op, ok := e.peekAny("+", "-")
		if !ok {
			return left, nil
		}
		e.pos++
		right, err := e.parseProduct()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			ls, lok := left.(string)
			rs, rok := right.(string)
			if lok || rok {
				if lok && rok {
					left = ls + rs
					continue
				}
				return nil, fmt.Errorf("cannot add %T and %T", left, right)
			}
		}
		lf, rf, err := bothNumbers(left, right, op)
		if err != nil {
			return nil, err
		}
		if op == "+" {
			left = lf + rf
		} else {
			left = lf - rf
		}
	}
}

func (e *evaluator) parseProduct() (any, error) {
	left, err := e.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		e.skipSpace()
		op, ok := e.peekAny("*", "/", "%")
		if !ok {
			return left, nil
		}
		e.pos++
		right, err := e.parseUnary()
		if err != nil {
			return nil, err
		}
		lf, rf, err := bothNumbers(left, right, op)
		if err != nil {
			return nil, err
		}
		switch op {
		case "*":
			left = lf * rf
		case "/":
			if rf == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			left = lf / rf
		case "%":
			if rf == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(lf, rf)
		}
	}
}

func (e *evaluator) parseUnary() (any, error) {
	e.skipSpace()
	if e.pos < len(e.src) && e.src[e.pos] == '-' {
		e.pos++
		v, err := e.parseUnary()
		if err != nil {
			return nil, err
		}
		f, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	}
	return e.parsePostfix()
}

func (e *evaluator) parsePostfix() (any, error) {
	v, err := e.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		e.skipSpace()
		if e.pos >= len(e.src) || e.src[e.pos] != '.' {
			return v, nil
		}
		e.pos++
		name := e.scanIdent()
		if name == "" {
			return nil, fmt.Errorf("expected property name at offset %d", e.pos)
		}
		node, ok := v.(*SimNode)
		if !ok {
			return nil, fmt.Errorf("cannot read property %q of %T", name, v)
		}
		if !node.Valid() {
			return nil, fmt.Errorf("node %q was freed", node.Name())
		}
		v, err = node.Get(name)
		if err != nil {
			return nil, fmt.Errorf("node %q has no property %q", node.Name(), name)
		}
	}
}

func (e *evaluator) parsePrimary() (any, error) {
	e.skipSpace()
	if e.pos >= len(e.src) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	c := e.src[e.pos]
	switch {
	case c == '(':
		e.pos++
		v, err := e.parseSum()
		if err != nil {
			return nil, err
		}
		e.skipSpace()
		if e.pos >= len(e.src) || e.src[e.pos] != ')' {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		e.pos++
		return v, nil
	case c == '\'' || c == '"':
		return e.scanString(c)
	case c >= '0' && c <= '9':
		return e.scanNumber()
	default:
		ident := e.scanIdent()
		switch ident {
		case "":
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, e.pos)
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "root":
			return e.sim.root, nil
		case "node":
			return e.parseNodeCall()
		default:
			return nil, fmt.Errorf("unknown identifier %q", ident)
		}
	}
}

func (e *evaluator) parseNodeCall() (any, error) {
	e.skipSpace()
	if e.pos >= len(e.src) || e.src[e.pos] != '(' {
		return nil, fmt.Errorf("node requires a quoted path argument")
	}
	e.pos++
	e.skipSpace()
	if e.pos >= len(e.src) || (e.src[e.pos] != '\'' && e.src[e.pos] != '"') {
		return nil, fmt.Errorf("node requires a quoted path argument")
	}
	path, err := e.scanString(e.src[e.pos])
	if err != nil {
		return nil, err
	}
	e.skipSpace()
	if e.pos >= len(e.src) || e.src[e.pos] != ')' {
		return nil, fmt.Errorf("missing closing parenthesis after node path")
	}
	e.pos++
	found := e.sim.FindNode(path)
	if found == nil {
		return nil, fmt.Errorf("no node at path %q", path)
	}
	return found.(*SimNode), nil
}

func (e *evaluator) scanString(quote byte) (string, error) {
	start := e.pos + 1
	for i := start; i < len(e.src); i++ {
		if e.src[i] == quote {
			e.pos = i + 1
			return e.src[start:i], nil
		}
	}
	return "", fmt.Errorf("unterminated string literal")
}

func (e *evaluator) scanNumber() (any, error) {
	start := e.pos
	seenDot := false
	for e.pos < len(e.src) {
		c := e.src[e.pos]
		if c == '.' && !seenDot {
			seenDot = true
			e.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		e.pos++
	}
	text := strings.TrimSuffix(e.src[start:e.pos], ".")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", text)
	}
	return f, nil
}

func (e *evaluator) scanIdent() string {
	start := e.pos
	for e.pos < len(e.src) {
		c := e.src[e.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (e.pos > start && c >= '0' && c <= '9') {
			e.pos++
			continue
		}
		break
	}
	return e.src[start:e.pos]
}

func (e *evaluator) skipSpace() {
	for e.pos < len(e.src) && (e.src[e.pos] == ' ' || e.src[e.pos] == '\t') {
		e.pos++
	}
}

func (e *evaluator) peekAny(ops ...string) (string, bool) {
	for _, op := range ops {
		if strings.HasPrefix(e.src[e.pos:], op) {
			return op, true
		}
	}
	return "", false
}

func bothNumbers(a, b any, op string) (float64, float64, error) {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if !aok || !bok {
		return 0, 0, fmt.Errorf("operator %q needs numbers, got %T and %T", op, a, b)
	}
	return af, bf, nil
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
