package types

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	pkgerrors "github.com/absmach/fedagg/pkg/errors"
)

// Parse reads the compact notation produced by Type.String, for example
// "float32[2]", "<a=float32,int32>", "{float32}@CLIENTS", "int32@SERVER",
// "(float32 -> int32)" or "float32*".
func Parse(s string) (Type, error) {
	p := &parser{src: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.done() {
		return nil, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}

	return t, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: parse %q at offset %d: %s", pkgerrors.ErrTypeMismatch, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) done() bool {
	return p.pos >= len(p.src)
}

func (p *parser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.done() {
		return 0
	}

	return p.src[p.pos]
}

func (p *parser) consume(token string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], token) {
		p.pos += len(token)

		return true
	}

	return false
}

func (p *parser) expect(token string) error {
	if !p.consume(token) {
		return p.errorf("expected %q", token)
	}

	return nil
}

func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for !p.done() {
		c := rune(p.src[p.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		p.pos++
	}

	return p.src[start:p.pos]
}

func (p *parser) parseType() (Type, error) {
	base, err := p.parseBase()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek() {
		case '*':
			p.pos++
			base = SequenceType{Element: base}
		case '@':
			p.pos++
			placement, err := p.parsePlacement()
			if err != nil {
				return nil, err
			}
			base = FederatedType{Member: base, Placement: placement, AllEqual: true}
		default:
			return base, nil
		}
	}
}

func (p *parser) parseBase() (Type, error) {
	switch p.peek() {
	case '<':
		p.pos++

		return p.parseStruct()
	case '{':
		p.pos++
		member, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect("}"); err != nil {
			return nil, err
		}
		if err := p.expect("@"); err != nil {
			return nil, err
		}
		placement, err := p.parsePlacement()
		if err != nil {
			return nil, err
		}

		return FederatedType{Member: member, Placement: placement}, nil
	case '(':
		p.pos++

		return p.parseFunction()
	case 0:
		return nil, p.errorf("unexpected end of input")
	default:
		return p.parseTensor()
	}
}

func (p *parser) parseStruct() (Type, error) {
	var elems []Element
	if p.consume(">") {
		return StructType{}, nil
	}
	for {
		elem, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.consume(",") {
			continue
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}

		return StructType{Elements: elems}, nil
	}
}

func (p *parser) parseElement() (Element, error) {
	mark := p.pos
	name := p.ident()
	if name != "" && p.consume("=") {
		t, err := p.parseType()
		if err != nil {
			return Element{}, err
		}

		return Element{Name: name, Type: t}, nil
	}
	p.pos = mark

	t, err := p.parseType()
	if err != nil {
		return Element{}, err
	}

	return Element{Type: t}, nil
}

func (p *parser) parseFunction() (Type, error) {
	var param Type
	if !p.consume("->") {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		param = t
		if err := p.expect("->"); err != nil {
			return nil, err
		}
	}
	result, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}

	return FunctionType{Parameter: param, Result: result}, nil
}

func (p *parser) parseTensor() (Type, error) {
	name := p.ident()
	if name == "" {
		return nil, p.errorf("expected a type")
	}
	dtype, err := ParseDType(name)
	if err != nil {
		return nil, p.errorf("%s", err)
	}
	if p.peek() != '[' {
		return Tensor(dtype), nil
	}
	p.pos++

	var dims []int64
	if p.consume("]") {
		return TensorType{DType: dtype, Shape: Shape{}}, nil
	}
	for {
		if p.consume("?") {
			dims = append(dims, -1)
		} else {
			tok := p.ident()
			d, err := strconv.ParseInt(tok, 10, 64)
			if err != nil || d < 0 {
				return nil, p.errorf("invalid dimension %q", tok)
			}
			dims = append(dims, d)
		}
		if p.consume(",") {
			continue
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}

		return Tensor(dtype, dims...), nil
	}
}

func (p *parser) parsePlacement() (Placement, error) {
	switch name := p.ident(); strings.ToUpper(name) {
	case string(Clients):
		return Clients, nil
	case string(Server):
		return Server, nil
	default:
		return "", p.errorf("unknown placement %q", name)
	}
}
