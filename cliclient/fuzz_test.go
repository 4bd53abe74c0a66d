package cliclient

import (
	"testing"
)

func FuzzParse(f *testing.F) {
	f.Add("200 OK")
	f.Add("201 (1,2,(3,4))")
	f.Add(`200 {RealName="Jan Smit";MaxAccounts=#25;}`)
	f.Add("200 mymail1.example CommuniGate Pro PWD Server 7.1.10 ready <50.123@mymail1.example>")
	f.Add("200 #NULL# #TFUTURE #I10.0.44.55 [SGVsbG8=]")
	f.Add(`200 "a\eb\u'20AC'\065"`)
	f.Add("200 #-0b1000111000")
	f.Fuzz(func(t *testing.T, line string) {
		Parse(line)
	})
}

func FuzzStringRoundTrip(f *testing.F) {
	f.Add("plain")
	f.Add("two words")
	f.Add("line1\r\nline2")
	f.Add(`quo"te \ back`)
	f.Add("héllo\t\U0001f600")
	f.Fuzz(func(t *testing.T, s string) {
		if got := DecodeString(EncodeString(s)); got != s {
			t.Errorf("round trip of %q: got %q", s, got)
		}
	})
}
