package cliclient

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// EncodeString returns the wire form of s: the text itself if every character
// is a letter, digit, "@", "_" or "-", and a quoted string otherwise. An
// empty string encodes to the empty string, without quotes. A CRLF pair
// becomes the single escape "\e", the protocol's canonical line break.
func EncodeString(s string) string {
	if s == "" {
		return ""
	}
	quote := false
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
			quote = true
		case '"':
			b.WriteString(`\"`)
			quote = true
		case '\t':
			b.WriteString(`\t`)
			quote = true
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				b.WriteString(`\e`)
				i++
			} else {
				b.WriteString(`\r`)
			}
			quote = true
		case '\n':
			b.WriteString(`\n`)
			quote = true
		default:
			if !isSafeChar(c) {
				quote = true
			}
			b.WriteByte(c)
		}
	}
	if quote {
		return `"` + b.String() + `"`
	}
	return b.String()
}

func isSafeChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '@' || c == '_' || c == '-'
}

// DecodeString decodes the wire form of an atom or quoted string: one pair of
// surrounding quotes is stripped if present, and escape sequences are
// substituted. Unknown escapes are passed through unmodified, backslash
// included, so decoding never fails.
func DecodeString(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'e':
			b.WriteString("\r\n")
		case 't':
			b.WriteByte('\t')
		case 'u':
			// \u'HHHHHH' with 3 to 6 hex digits between single quotes.
			if r, n, ok := decodeUnicodeEscape(s[i+1:]); ok {
				b.WriteRune(r)
				i += n
			} else {
				b.WriteString(`\u`)
			}
		default:
			// \DDD with exactly three decimal digits is a code point. Anything else is
			// passed through as-is.
			if i+2 < len(s) && isPlainDecimal(s[i:i+3]) {
				n, _ := strconv.Atoi(s[i : i+3])
				b.WriteRune(rune(n))
				i += 2
			} else {
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}

func decodeUnicodeEscape(s string) (r rune, consumed int, ok bool) {
	if len(s) == 0 || s[0] != '\'' {
		return 0, 0, false
	}
	end := strings.IndexByte(s[1:], '\'')
	if end < 3 || end > 6 {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(s[1:1+end], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return rune(v), end + 2, true
}

// EncodeValue returns the wire form of a command argument. A dictionary
// encodes as "{key=value;...}", a sequence as "(item,item)", both
// recursively; anything else encodes its textual form through EncodeString.
func EncodeValue(v any) string {
	switch t := v.(type) {
	case Dict:
		var b strings.Builder
		b.WriteString("{")
		for _, e := range t.Entries() {
			b.WriteString(EncodeString(e.Key))
			b.WriteString("=")
			b.WriteString(EncodeValue(e.Value))
			b.WriteString(";")
		}
		b.WriteString("}")
		return b.String()
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var b strings.Builder
		b.WriteString("{")
		for _, k := range keys {
			b.WriteString(EncodeString(k))
			b.WriteString("=")
			b.WriteString(EncodeString(t[k]))
			b.WriteString(";")
		}
		b.WriteString("}")
		return b.String()
	case Array:
		return encodeSeq(t)
	case []Value:
		return encodeSeq(t)
	case []string:
		l := make([]string, len(t))
		for i, e := range t {
			l[i] = EncodeString(e)
		}
		return "(" + strings.Join(l, ",") + ")"
	case String:
		return EncodeString(string(t))
	case Int:
		return EncodeString(strconv.FormatInt(int64(t), 10))
	case Null:
		return "#NULL#"
	case Timestamp:
		return "#T" + string(t)
	case IP:
		return "#I" + t.Address
	case DataBlock:
		return "[" + base64.StdEncoding.EncodeToString(t) + "]"
	case string:
		return EncodeString(t)
	}
	return EncodeString(fmt.Sprint(v))
}

func encodeSeq(l []Value) string {
	r := make([]string, len(l))
	for i, e := range l {
		r[i] = EncodeValue(e)
	}
	return "(" + strings.Join(r, ",") + ")"
}
