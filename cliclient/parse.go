package cliclient

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Response is a single parsed response line.
type Response struct {
	// Status code from the first top-level value, if that value is a plain decimal
	// integer atom, -1 otherwise. A -1 is not an error by itself, it only becomes
	// one when a caller checks the code against an accepted set.
	Code int

	// All top-level values, including the one the status code was taken from.
	Values []Value

	// Original line, without CRLF.
	Raw string
}

// Payload returns the top-level values following the status code, or all
// values if no status code was recognized.
func (r Response) Payload() []Value {
	if r.Code >= 0 && len(r.Values) > 0 {
		return r.Values[1:]
	}
	return r.Values
}

// The greeting after a successful USER command contains this text verbatim.
// The comma would end parsing, so it is accepted as a single atom.
const atomLoginOK = "login OK, proceed"

type parser struct {
	s string
	o int // Current offset.
}

type parseErr struct{ err error }

func (p *parser) xerrorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	panic(parseErr{fmt.Errorf("%w: %s (offset %d, remaining %q)", ErrSyntax, msg, p.o, p.s[p.o:])})
}

// Parse parses a response line, with or without trailing CRLF, into a status
// code and a tree of values. Any lexical or syntax error is fatal for the
// whole line, no partial result is returned. An unrecognizable status code is
// not an error, see [Response].
func Parse(line string) (resp Response, rerr error) {
	line = strings.TrimRight(line, "\r\n")
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		if e, ok := x.(parseErr); ok {
			rerr = e.err
			return
		}
		panic(x)
	}()

	p := &parser{s: line}
	resp = Response{Code: -1, Raw: line}
	p.skipws()

	// Only a plain atom can carry the status code. A quoted string also parses to
	// a String, but e.g. `"200"` is data, not a code.
	firstIsAtom := false
	if p.o < len(p.s) {
		switch p.s[p.o] {
		case '(', '{', '"', '[', '#':
		default:
			firstIsAtom = true
		}
	}

	for p.o < len(p.s) {
		resp.Values = append(resp.Values, p.xvalue())
		if p.o < len(p.s) && p.skipws() == 0 {
			p.xerrorf("expected whitespace between values")
		}
	}
	if firstIsAtom && len(resp.Values) > 0 {
		if s, ok := resp.Values[0].(String); ok && isPlainDecimal(string(s)) {
			if v, err := strconv.ParseInt(string(s), 10, 32); err == nil {
				resp.Code = int(v)
			}
		}
	}
	return
}

func isPlainDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (p *parser) skipws() int {
	n := 0
	for p.o < len(p.s) {
		switch p.s[p.o] {
		case ' ', '\t', '\r', '\n':
			p.o++
			n++
		default:
			return n
		}
	}
	return n
}

func (p *parser) take(c byte) bool {
	if p.o < len(p.s) && p.s[p.o] == c {
		p.o++
		return true
	}
	return false
}

func (p *parser) xtake(c byte) {
	if !p.take(c) {
		p.xerrorf("expected %q", c)
	}
}

func (p *parser) takeStr(s string) bool {
	if strings.HasPrefix(p.s[p.o:], s) {
		p.o += len(s)
		return true
	}
	return false
}

func (p *parser) xdigits(n int) {
	for i := 0; i < n; i++ {
		if p.o >= len(p.s) || p.s[p.o] < '0' || p.s[p.o] > '9' {
			p.xerrorf("expected digit")
		}
		p.o++
	}
}

func isAtomChar(c rune) bool {
	return c >= 0x80 || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.ContainsRune(".-@_<>", c)
}

func isBase64Char(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '/' || c == '='
}

func isIPChar(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' || c == '.' || c == ':'
}

func (p *parser) xvalue() Value {
	if p.o >= len(p.s) {
		p.xerrorf("expected value")
	}
	switch p.s[p.o] {
	case '(':
		return p.xarray()
	case '{':
		return p.xdict()
	case '"':
		return String(p.xquoted())
	case '[':
		return p.xdatablock()
	case '#':
		return p.xhash()
	default:
		return p.xatom()
	}
}

func (p *parser) xarray() Value {
	p.o++ // "("
	a := Array{}
	p.skipws()
	if p.take(')') {
		return a
	}
	for {
		a = append(a, p.xvalue())
		p.skipws()
		if p.take(')') {
			return a
		}
		if !p.take(',') {
			p.xerrorf("expected , or ) in array")
		}
		p.skipws()
	}
}

func (p *parser) xdict() Value {
	p.o++ // "{"
	d := Dict{}
	for {
		p.skipws()
		if p.take('}') {
			return d
		}
		if p.o >= len(p.s) {
			p.xerrorf("unterminated dictionary")
		}
		var key string
		if p.s[p.o] == '"' {
			key = p.xquoted()
		} else {
			key = string(p.xatom().(String))
		}
		p.skipws()
		p.xtake('=')
		p.skipws()
		v := p.xvalue()
		p.skipws()
		if !p.take(';') {
			p.xerrorf("expected ; after dictionary value")
		}
		d.Set(key, v)
	}
}

// xquoted consumes a quoted string and returns its decoded text.
func (p *parser) xquoted() string {
	start := p.o
	p.o++ // Leading quote.
	for p.o < len(p.s) {
		switch p.s[p.o] {
		case '\\':
			if p.o+1 >= len(p.s) {
				p.xerrorf("unterminated escape in quoted string")
			}
			p.o += 2
		case '"':
			p.o++
			return DecodeString(p.s[start:p.o])
		default:
			p.o++
		}
	}
	p.xerrorf("unterminated quoted string")
	panic("not reached")
}

func (p *parser) xdatablock() Value {
	p.o++ // "["
	start := p.o
	for p.o < len(p.s) && p.s[p.o] != ']' {
		c := p.s[p.o]
		if !isBase64Char(c) && c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			p.xerrorf("invalid character %q in data block", c)
		}
		p.o++
	}
	if p.o >= len(p.s) {
		p.xerrorf("unterminated data block")
	}
	raw := p.s[start:p.o]
	p.o++ // "]"

	// Whitespace inside the block is not significant.
	raw = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, raw)
	buf, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		p.xerrorf("malformed base64 in data block: %v", err)
	}
	return DataBlock(buf)
}

func (p *parser) xhash() Value {
	p.o++ // "#"
	switch {
	case p.takeStr("NULL#"):
		return Null{}
	case p.take('T'):
		return p.xtimestamp()
	case p.take('I'):
		return p.xip()
	default:
		return p.xinteger()
	}
}

func (p *parser) xinteger() Value {
	neg := p.take('-')
	base := 10
	if p.takeStr("0x") {
		base = 16
	} else if p.takeStr("0o") {
		base = 8
	} else if p.takeStr("0b") {
		base = 2
	}
	start := p.o
	for p.o < len(p.s) && isBaseDigit(p.s[p.o], base) {
		p.o++
	}
	if p.o == start {
		p.xerrorf("expected digits in integer literal")
	}
	v, err := strconv.ParseInt(p.s[start:p.o], base, 64)
	if err != nil {
		p.xerrorf("parsing integer: %v", err)
	}
	if neg {
		v = -v
	}
	return Int(v)
}

func isBaseDigit(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 16:
		return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
	}
	return c >= '0' && c <= '9'
}

func (p *parser) xtimestamp() Value {
	if p.takeStr("FUTURE") {
		return Timestamp("FUTURE")
	}
	if p.takeStr("PAST") {
		return Timestamp("PAST")
	}
	start := p.o
	p.xdigits(2)
	p.xtake('-')
	p.xdigits(2)
	p.xtake('-')
	p.xdigits(4)
	if p.take('_') {
		p.xdigits(2)
		p.xtake(':')
		p.xdigits(2)
		p.xtake(':')
		p.xdigits(2)
	}
	return Timestamp(p.s[start:p.o])
}

func (p *parser) xip() Value {
	start := p.o
	for p.o < len(p.s) && isIPChar(p.s[p.o]) {
		p.o++
	}
	if p.o == start {
		p.xerrorf("expected address after #I")
	}
	return IP{p.s[start:p.o]}
}

func (p *parser) xatom() Value {
	if strings.HasPrefix(p.s[p.o:], atomLoginOK) {
		p.o += len(atomLoginOK)
		return String(atomLoginOK)
	}
	start := p.o
	for _, c := range p.s[p.o:] {
		if !isAtomChar(c) {
			break
		}
		p.o += utf8.RuneLen(c)
	}
	if p.o == start {
		p.xerrorf("unexpected character %q", p.s[p.o])
	}
	return String(p.s[start:p.o])
}
