package cliclient

import (
	"testing"
)

func TestEncodeString(t *testing.T) {
	enc := func(s, exp string) {
		t.Helper()
		tcompare(t, EncodeString(s), exp)
	}

	// Only letters, digits, "@", "_" and "-" stay unquoted.
	enc("", "")
	enc("abc", "abc")
	enc("postmaster@example-1.com", `"postmaster@example-1.com"`)
	enc("user@host", "user@host")
	enc("A_b-9", "A_b-9")
	enc("a b", `"a b"`)
	enc("a.b", `"a.b"`)
	enc("dömäin", `"dömäin"`)

	enc(`a\b`, `"a\\b"`)
	enc(`say "hi"`, `"say \"hi\""`)
	enc("a\tb", `"a\tb"`)
	enc("a\nb", `"a\nb"`)
	enc("a\rb", `"a\rb"`)

	// CRLF merges into the single "\e" escape, a lone CR or LF does not.
	enc("a\r\nb", `"a\eb"`)
	enc("a\r\r\nb", `"a\r\eb"`)
	enc("a\r\n", `"a\e"`)
}

func TestDecodeString(t *testing.T) {
	dec := func(s, exp string) {
		t.Helper()
		tcompare(t, DecodeString(s), exp)
	}

	dec("", "")
	dec("abc", "abc")
	dec(`"a b"`, "a b")
	dec(`"a\eb"`, "a\r\nb")
	dec(`"a\\b"`, `a\b`)
	dec(`"\"hi\""`, `"hi"`)
	dec(`"a\tb\rc\nd"`, "a\tb\rc\nd")

	// Only one pair of surrounding quotes is stripped.
	dec(`""a""`, `"a"`)

	// \u'HHHHHH' takes 3 to 6 hex digits between single quotes.
	dec(`"\u'20AC'"`, "€")
	dec(`"\u'1F600'"`, "\U0001f600")
	dec(`"x\u'048'y"`, "xHy")

	// \DDD takes exactly three decimal digits.
	dec(`"\065"`, "A")
	dec(`"\0651"`, "A1")

	// Malformed escapes degrade to literal text instead of failing.
	dec(`"\q"`, `\q`)
	dec(`"\u'48'"`, `\u'48'`)
	dec(`"€"`, `€`)
	dec(`"\65"`, `\65`)
	dec(`"a\"`, `a\`)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{
		"",
		"plain",
		"two words",
		"quo\"te",
		`back\slash`,
		"tab\there",
		"line1\r\nline2",
		"cr\rlf\n",
		"\r\n\r\n",
		"héllo wörld",
		"\U0001f600",
		"\x01\x02\x7f",
		`trailing\`,
	} {
		if got := DecodeString(EncodeString(s)); got != s {
			t.Errorf("round trip of %q: got %q", s, got)
		}
	}
}

func TestEncodeValue(t *testing.T) {
	enc := func(v any, exp string) {
		t.Helper()
		tcompare(t, EncodeValue(v), exp)
	}

	enc(dict("RealName", "Jan Smit", "MaxAccounts", Int(25)), `{RealName="Jan Smit";MaxAccounts=25;}`)
	enc(map[string]string{"b": "2", "a": "1"}, `{a=1;b=2;}`)
	enc(Array{String("a"), Array{String("b c")}}, `(a,("b c"))`)
	enc([]string{"x", "y z"}, `(x,"y z")`)
	enc(Null{}, "#NULL#")
	enc(Timestamp("22-10-2009_15:24:45"), "#T22-10-2009_15:24:45")
	enc(IP{"10.0.44.55"}, "#I10.0.44.55")
	enc(DataBlock("Hello"), "[SGVsbG8=]")
	enc("plain", "plain")
}

// Encoding a parsed value and parsing it again must yield the original tree.
func TestValueRoundTrip(t *testing.T) {
	for _, line := range []string{
		"200 (1,2,(3,4))",
		`200 {RealName="Jan Smit";Aliases=(jan,smit);}`,
		"200 #NULL#",
		"200 #TFUTURE",
		"200 #I10.0.44.55",
		"200 [SGVsbG8=]",
		`200 "a\eb"`,
	} {
		resp, err := Parse(line)
		tcheckf(t, err, "parsing %q", line)
		v := resp.Payload()[0]
		resp2, err := Parse("200 " + EncodeValue(v))
		tcheckf(t, err, "reparsing %q", EncodeValue(v))
		tcompare(t, resp2.Payload()[0], v)
	}
}
