package rules

import (
	"fmt"
	"strconv"
)

// maxDepth bounds expression nesting so hostile rule text cannot exhaust the stack.
const maxDepth = 64

type node any

type literalNode struct{ value any }

type nameNode struct{ name string }

type listNode struct {
	elems []node
	tuple bool
}

type indexNode struct{ target, key node }

type callNode struct {
	target node
	method string
	args   []node
}

type notNode struct{ x node }

type negNode struct{ x node }

type andNode struct{ left, right node }

type orNode struct{ left, right node }

// compareNode holds a comparison chain: first ops[0] operands[0] ops[1] operands[1] ...
type compareNode struct {
	first    node
	ops      []string
	operands []node
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, tok, tok.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) is(kind tokenKind, text string) bool {
	tok := p.peek()
	return tok.kind == kind && tok.text == text
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.is(kind, text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if p.accept(tokOp, text) {
		return nil
	}
	tok := p.peek()
	return fmt.Errorf("%w: expected %q but found %s at offset %d", ErrSyntax, text, tok, tok.pos)
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("%w: expression nested too deeply", ErrSyntax)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expr() (node, error) {
	defer p.leave()
	if err := p.enter(); err != nil {
		return nil, err
	}
	return p.or()
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.accept(tokKeyword, "or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.accept(tokKeyword, "and") {
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) not() (node, error) {
	if p.accept(tokKeyword, "not") {
		defer p.leave()
		if err := p.enter(); err != nil {
			return nil, err
		}
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return notNode{x: x}, nil
	}
	return p.compare()
}

func (p *parser) compare() (node, error) {
	first, err := p.unary()
	if err != nil {
		return nil, err
	}
	cmp := compareNode{first: first}
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op)
		cmp.operands = append(cmp.operands, operand)
	}
	if len(cmp.ops) == 0 {
		return first, nil
	}
	return cmp, nil
}

func (p *parser) compareOp() (string, bool) {
	tok := p.peek()
	switch {
	case tok.kind == tokOp && (tok.text == "==" || tok.text == "!=" || tok.text == "<" ||
		tok.text == "<=" || tok.text == ">" || tok.text == ">="):
		p.next()
		return tok.text, true
	case tok.kind == tokKeyword && tok.text == "in":
		p.next()
		return "in", true
	case tok.kind == tokKeyword && tok.text == "is":
		p.next()
		if p.accept(tokKeyword, "not") {
			return "is not", true
		}
		return "is", true
	case tok.kind == tokKeyword && tok.text == "not":
		// "not in" is a comparison; a bare "not" here is a syntax error reported by the caller
		if p.toks[p.pos+1].kind == tokKeyword && p.toks[p.pos+1].text == "in" {
			p.next()
			p.next()
			return "not in", true
		}
	}
	return "", false
}

func (p *parser) unary() (node, error) {
	if p.accept(tokOp, "-") {
		defer p.leave()
		if err := p.enter(); err != nil {
			return nil, err
		}
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negNode{x: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept(tokOp, "."):
			tok := p.next()
			if tok.kind != tokIdent {
				return nil, fmt.Errorf("%w: expected method name but found %s at offset %d", ErrSyntax, tok, tok.pos)
			}
			if !p.is(tokOp, "(") {
				return nil, fmt.Errorf("%w: attribute %q is not callable; only method calls are supported", ErrSyntax, tok.text)
			}
			p.next()
			args, err := p.sequence(")")
			if err != nil {
				return nil, err
			}
			n = callNode{target: n, method: tok.text, args: args}
		case p.accept(tokOp, "["):
			key, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			n = indexNode{target: n, key: key}
		default:
			return n, nil
		}
	}
}

// sequence parses comma-separated expressions up to and including the closing token.
func (p *parser) sequence(closing string) ([]node, error) {
	var items []node
	for !p.is(tokOp, closing) {
		item, err := p.expr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.accept(tokOp, ",") {
			break
		}
	}
	if err := p.expect(closing); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return literalNode{value: tok.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, tok.text)
		}
		return literalNode{value: f}, nil
	case tokIdent:
		return nameNode{name: tok.text}, nil
	case tokKeyword:
		switch tok.text {
		case "True":
			return literalNode{value: true}, nil
		case "False":
			return literalNode{value: false}, nil
		case "None":
			return literalNode{value: nil}, nil
		}
	case tokOp:
		switch tok.text {
		case "(":
			return p.parenthesized()
		case "[":
			elems, err := p.sequence("]")
			if err != nil {
				return nil, err
			}
			return listNode{elems: elems}, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, tok, tok.pos)
}

// parenthesized handles grouping "(x)", the empty tuple "()", and tuples "(x,)" / "(x, y)".
func (p *parser) parenthesized() (node, error) {
	if p.accept(tokOp, ")") {
		return listNode{tuple: true}, nil
	}
	first, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.accept(tokOp, ")") {
		return first, nil
	}
	if err := p.expect(","); err != nil {
		return nil, err
	}
	rest, err := p.sequence(")")
	if err != nil {
		return nil, err
	}
	return listNode{elems: append([]node{first}, rest...), tuple: true}, nil
}
