package cliclient

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func tcheckf(t *testing.T, err error, format string, args ...any) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", fmt.Sprintf(format, args...), err)
	}
}

func tcompare(t *testing.T, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got:\n%#v\nexpected:\n%#v", got, exp)
	}
}

func dict(l ...any) Dict {
	var d Dict
	for i := 0; i < len(l); i += 2 {
		d.Set(l[i].(string), l[i+1])
	}
	return d
}

func TestParse(t *testing.T) {
	resp, err := Parse("200 OK\r\n")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Code, 200)
	tcompare(t, resp.Values, []Value{String("200"), String("OK")})
	tcompare(t, resp.Payload(), []Value{String("OK")})

	// No leading plain integer atom: status -1, not an error.
	resp, err = Parse("MAIL boo")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Code, -1)
	tcompare(t, resp.Payload(), []Value{String("MAIL"), String("boo")})

	// A quoted first element is data, not a status code, even when it holds
	// digits. Same for an integer literal.
	resp, err = Parse(`"200" OK`)
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Code, -1)
	tcompare(t, resp.Payload(), []Value{String("200"), String("OK")})
	resp, err = Parse("#200 OK")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Code, -1)
	tcompare(t, resp.Payload(), []Value{Int(200), String("OK")})

	// Nested array, elements are plain atoms.
	resp, err = Parse("201 (1,2,(3,4))")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Code, 201)
	tcompare(t, resp.Payload(), []Value{Array{String("1"), String("2"), Array{String("3"), String("4")}}})

	// Dictionary, each entry terminated by a semicolon.
	resp, err = Parse("201 {A=1;B=(1,2);}")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Payload(), []Value{dict("A", String("1"), "B", Array{String("1"), String("2")})})

	// Empty structures are legal.
	resp, err = Parse("201 ()")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Payload(), []Value{Array{}})
	resp, err = Parse("201 {}")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Payload(), []Value{Dict{}})

	// Whitespace between and inside structures is insignificant.
	resp, err = Parse("201 ( 1 , 2 )\t{ A = 1 ; }")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Payload(), []Value{Array{String("1"), String("2")}, dict("A", String("1"))})

	// Quoted strings are decoded.
	resp, err = Parse(`201 "a b\e"`)
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Payload(), []Value{String("a b\r\n")})

	// The irregular server text after USER is a single atom.
	resp, err = Parse("300 login OK, proceed")
	tcheckf(t, err, "parsing")
	tcompare(t, resp.Code, 300)
	tcompare(t, resp.Payload(), []Value{String("login OK, proceed")})
}

func TestParseLiterals(t *testing.T) {
	parse1 := func(line string) Value {
		t.Helper()
		resp, err := Parse(line)
		tcheckf(t, err, "parsing %q", line)
		if len(resp.Payload()) != 1 {
			t.Fatalf("got %d values for %q, expected 1", len(resp.Payload()), line)
		}
		return resp.Payload()[0]
	}

	// All four integer radixes.
	tcompare(t, parse1("200 #-234657"), Int(-234657))
	tcompare(t, parse1("200 #0x17EF"), Int(0x17EF))
	tcompare(t, parse1("200 #0o45374"), Int(0o45374))
	tcompare(t, parse1("200 #-0b1000111000"), Int(-0b1000111000))

	tcompare(t, parse1("200 #NULL#"), Null{})

	tcompare(t, parse1("200 #TFUTURE"), Timestamp("FUTURE"))
	tcompare(t, parse1("200 #TPAST"), Timestamp("PAST"))
	tcompare(t, parse1("200 #T22-10-2009"), Timestamp("22-10-2009"))
	tcompare(t, parse1("200 #T22-10-2009_15:24:45"), Timestamp("22-10-2009_15:24:45"))

	tcompare(t, parse1("200 #I10.0.44.55"), IP{"10.0.44.55"})
	tcompare(t, parse1("200 #I10.0.44.55:25"), IP{"10.0.44.55:25"})
	tcompare(t, parse1("200 #I2001:470:1f01:2565::a:80f"), IP{"2001:470:1f01:2565::a:80f"})

	// Whitespace inside a data block is not significant.
	tcompare(t, parse1("200 [SGVsbG8=]"), DataBlock("Hello"))
	tcompare(t, parse1("200 [SGVs  bG8= ]"), DataBlock("Hello"))

	// Non-ASCII is legal in atoms.
	tcompare(t, parse1("200 dömäin.example"), String("dömäin.example"))
}

func TestParseGreeting(t *testing.T) {
	line := "200 mymail1.example CommuniGate Pro PWD Server 7.1.10 ready <50.123@mymail1.example>"
	resp, err := Parse(line)
	tcheckf(t, err, "parsing greeting")
	tcompare(t, resp.Code, 200)

	var sessionID string
	for _, v := range resp.Values {
		if s, ok := v.(String); ok && len(s) > 0 && s[0] == '<' {
			sessionID = string(s)
			break
		}
	}
	tcompare(t, sessionID, "<50.123@mymail1.example>")
}

func TestParseErrors(t *testing.T) {
	bad := func(line string) {
		t.Helper()
		resp, err := Parse(line)
		if err == nil {
			t.Fatalf("parsing %q: got %#v, expected syntax error", line, resp)
		}
		if !errors.Is(err, ErrSyntax) {
			t.Fatalf("parsing %q: got %v, expected ErrSyntax", line, err)
		}
	}

	bad(`200 "unterminated`)
	bad(`200 "unterminated\`)
	bad("200 (1,2")
	bad("200 (1,2,")
	bad("200 {A=1;")
	bad("200 {A=1}")   // Missing semicolon.
	bad("200 {A 1;}")  // Missing equals sign.
	bad("200 (1,2))")  // Trailing garbage.
	bad("200 (1 2)")   // Missing comma.
	bad("200 [SGVsbG8=") // Unterminated data block.
	bad("200 [S!=]")   // Invalid data block character.
	bad("200 [SGVsbG8]") // Bad base64 padding.
	bad("200 #")
	bad("200 #0x")
	bad("200 #T2009")
	bad("200 #I")
	bad("200 ,")
	bad("200 a,b") // Comma terminates an atom at top level.
}

func TestFirst(t *testing.T) {
	resp, err := Parse("201 ((5))")
	tcheckf(t, err, "parsing")
	a, ok := First[Array](resp.Payload()...)
	tcompare(t, ok, true)
	tcompare(t, a, Array{Array{String("5")}})
	s, ok := First[String](resp.Payload()...)
	tcompare(t, ok, true)
	tcompare(t, s, String("5"))

	// Payload at varying depths, e.g. a dictionary wrapped in an array.
	resp, err = Parse("201 ({Domain=example.com;})")
	tcheckf(t, err, "parsing")
	d, ok := First[Dict](resp.Payload()...)
	tcompare(t, ok, true)
	v, ok := d.Get("Domain")
	tcompare(t, ok, true)
	tcompare(t, v, String("example.com"))

	// Values inside dictionaries are searched too.
	resp, err = Parse("201 {Size=#123;}")
	tcheckf(t, err, "parsing")
	n, ok := First[Int](resp.Payload()...)
	tcompare(t, ok, true)
	tcompare(t, n, Int(123))

	_, ok = First[DataBlock](resp.Payload()...)
	tcompare(t, ok, false)
}

func TestDictDuplicates(t *testing.T) {
	// A repeated key keeps the last value, at the position of the first
	// occurrence.
	resp, err := Parse("200 {A=1;B=2;A=3;}")
	tcheckf(t, err, "parsing")
	d, ok := First[Dict](resp.Payload()...)
	tcompare(t, ok, true)
	tcompare(t, d.Len(), 2)
	tcompare(t, d.Keys(), []string{"A", "B"})
	v, _ := d.Get("A")
	tcompare(t, v, String("3"))
}
