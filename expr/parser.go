package expr

import (
	"github.com/cockroachdb/errors"

	"github.com/hjlabs/hjmcpsse/protocol"
)

// MaxDepth bounds expression nesting.
const MaxDepth = 64

// Parse builds the expression tree for text. It fails with
// protocol.ErrUnsafeExpression for constructs outside the grammar,
// protocol.ErrUndefinedVariable for unknown names and
// protocol.ErrInvalidArguments for malformed input.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ "**" unary ]
//	primary = number | name | name "(" [ args ] ")" | "(" expr ")"
//	args    = expr { "," expr } | "[" [ expr { "," expr } ] "]"
func Parse(text string) (Node, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, invalidf(0, "empty expression")
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	switch t := p.peek(); t.kind {
	case tokEOF:
		return n, nil
	case tokIdent:
		// keywords such as "if", "for" or "and" following a complete operand
		return nil, unsafef(t.pos, "keyword %q", t.text)
	default:
		return nil, invalidf(t.pos, "unexpected %s", describe(t))
	}
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, invalidf(t.pos, "expected %s, found %s", kind, describe(t))
	}
	return t, nil
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > MaxDepth {
		return unsafef(pos, "nesting deeper than %d levels", MaxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (Node, error) {
	if err := p.enter(p.peek().pos); err != nil {
		return nil, err
	}
	defer p.leave()

	x, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op Op
		switch p.peek().kind {
		case tokPlus:
			op = OpAdd
		case tokMinus:
			op = OpSub
		default:
			return x, nil
		}
		p.next()
		y, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: op, X: x, Y: y}
	}
}

func (p *parser) parseTerm() (Node, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op Op
		switch p.peek().kind {
		case tokStar:
			op = OpMul
		case tokSlash:
			op = OpDiv
		case tokPercent:
			op = OpMod
		default:
			return x, nil
		}
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: op, X: x, Y: y}
	}
}

func (p *parser) parseUnary() (Node, error) {
	t := p.peek()
	var op Op
	switch t.kind {
	case tokMinus:
		op = OpNeg
	case tokPlus:
		op = OpPos
	default:
		return p.parsePower()
	}
	if err := p.enter(t.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next()
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Unary{Op: op, X: x}, nil
}

// parsePower makes ** right-associative and lets its right operand carry a
// sign, so -2 ** 2 is -(2 ** 2) and 2 ** -1 is 0.5.
func (p *parser) parsePower() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokLBracket {
		return nil, unsafef(t.pos, "subscript")
	}
	t := p.peek()
	if t.kind != tokPower {
		return x, nil
	}
	if err := p.enter(t.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	p.next()
	y, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: OpPow, X: x, Y: y}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		if t.int {
			return &NumberLit{Value: Int(t.num)}, nil
		}
		return &NumberLit{Value: Float(t.num)}, nil
	case tokIdent:
		return p.parseName(t)
	case tokLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil
	case tokLBracket:
		return nil, unsafef(t.pos, "list literal outside min, max or sum")
	case tokEOF:
		return nil, invalidf(t.pos, "unexpected end of expression")
	}
	return nil, invalidf(t.pos, "unexpected %s", describe(t))
}

func (p *parser) parseName(t token) (Node, error) {
	switch p.peek().kind {
	case tokLParen:
		fn, ok := functions[t.text]
		if !ok {
			return nil, unsafef(t.pos, "call to %q", t.text)
		}
		p.next()
		return p.parseCall(t, fn)
	case tokLBracket:
		return nil, unsafef(p.peek().pos, "subscript")
	}
	if v, ok := constants[t.text]; ok {
		return &Constant{Name: t.text, Value: v}, nil
	}
	if _, ok := functions[t.text]; ok {
		return nil, invalidf(t.pos, "function %s requires arguments", t.text)
	}
	return nil, errors.Mark(errors.Newf("undefined variable: %s", t.text), protocol.ErrUndefinedVariable)
}

func (p *parser) parseCall(name token, fn *Function) (Node, error) {
	if err := p.enter(name.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	call := &Call{Func: fn}
	if p.peek().kind == tokLBracket && fn.Aggregate {
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		call.Args = []Node{list}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if !fn.accepts(len(list.Items)) {
			return nil, invalidf(name.pos, "%s() arg is an empty sequence", fn.Name)
		}
		return call, nil
	}

	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if !fn.accepts(len(call.Args)) {
		return nil, arityError(name.pos, fn, len(call.Args))
	}
	return call, nil
}

func (p *parser) parseList() (*List, error) {
	p.next() // [
	list := &List{}
	if p.peek().kind != tokRBracket {
		for {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRBracket); err != nil {
		return nil, err
	}
	return list, nil
}

func arityError(pos int, fn *Function, got int) error {
	switch {
	case fn.MaxArgs == Variadic:
		return invalidf(pos, "%s expects at least %d arguments, got %d", fn.Name, fn.MinArgs, got)
	case fn.MinArgs == fn.MaxArgs:
		return invalidf(pos, "%s expects %d arguments, got %d", fn.Name, fn.MinArgs, got)
	}
	return invalidf(pos, "%s expects %d to %d arguments, got %d", fn.Name, fn.MinArgs, fn.MaxArgs, got)
}
