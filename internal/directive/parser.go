package directive

import (
	"fmt"
	"strings"
)

// SyntaxError reports where a strict parse failed.
type SyntaxError struct {
	Line string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid directive at column %d: %s", e.Pos+1, e.Msg)
}

// Parse reads a line with the grammar
//
//	[CALL] name ('.' name)* [ '(' args ')' ] [';']
//
// where name is a bare identifier or a double-quoted identifier, and args is
// any text with balanced parentheses outside of quoted strings.
func Parse(line string) (Directive, error) {
	p := &parser{src: line}
	p.skipSpace()

	if hasKeyword(line[p.pos:]) {
		p.pos += len(Keyword)
		p.skipSpace()
	}

	name, err := p.qualifiedName()
	if err != nil {
		return Directive{}, err
	}
	p.skipSpace()

	args := ""
	if p.peek() == '(' {
		args, err = p.arguments()
		if err != nil {
			return Directive{}, err
		}
		p.skipSpace()
	}

	if p.peek() == ';' {
		p.pos++
		p.skipSpace()
	}
	if !p.eof() {
		return Directive{}, p.errorf("unexpected %q after call", p.src[p.pos:])
	}

	return Directive{
		Raw:           line,
		Statement:     Keyword + " " + name + "(" + args + ")" + Terminator,
		ProcedureName: name,
	}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) qualifiedName() (string, error) {
	var b strings.Builder
	for {
		part, err := p.identifier()
		if err != nil {
			return "", err
		}
		b.WriteString(part)
		if p.peek() != '.' {
			return b.String(), nil
		}
		b.WriteByte('.')
		p.pos++
	}
}

func (p *parser) identifier() (string, error) {
	start := p.pos
	if p.peek() == '"' {
		if err := p.quoted('"'); err != nil {
			return "", err
		}
		return p.src[start:p.pos], nil
	}

	for !p.eof() && isIdentByte(p.src[p.pos], p.pos == start) {
		p.pos++
	}
	if p.pos == start {
		if p.eof() {
			return "", p.errorf("missing procedure name")
		}
		return "", p.errorf("expected procedure name, found %q", p.src[p.pos])
	}
	return p.src[start:p.pos], nil
}

// arguments consumes a parenthesized list and returns its inner text.
func (p *parser) arguments() (string, error) {
	open := p.pos
	p.pos++
	depth := 1
	for !p.eof() {
		switch c := p.src[p.pos]; c {
		case '\'', '"':
			if err := p.quoted(c); err != nil {
				return "", err
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				inner := p.src[open+1 : p.pos]
				p.pos++
				return inner, nil
			}
		}
		p.pos++
	}
	p.pos = open
	return "", p.errorf("unbalanced parentheses")
}

// quoted consumes a string delimited by q where a doubled q is an escape.
func (p *parser) quoted(q byte) error {
	start := p.pos
	p.pos++
	for !p.eof() {
		if p.src[p.pos] == q {
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == q {
				p.pos += 2
				continue
			}
			p.pos++
			return nil
		}
		p.pos++
	}
	p.pos = start
	return p.errorf("unterminated quoted string")
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9', c == '$':
		return !first
	case c >= 0x80:
		return true
	}
	return false
}
