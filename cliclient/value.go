package cliclient

import (
	"fmt"
	"strings"
)

// Value is a single object from a response line, one of the concrete types
// below: String, Int, Null, IP, Timestamp, DataBlock, Array or Dict. Values
// are built during parsing and not modified afterwards.
type Value any

// String is decoded text, with quoting and escape sequences already resolved.
type String string

// Int is an integer, regardless of the radix it was written in on the wire.
type Int int64

// Null is the null object, "#NULL#" on the wire.
type Null struct{}

// IP is an IPv4 or IPv6 address with optional port, kept as the text from the
// wire.
type IP struct {
	Address string
}

// Timestamp is a time value in its raw lexical form: "FUTURE", "PAST", or
// "DD-MM-YYYY" with optional "_HH:MM:SS". Interpretation is left to callers.
type Timestamp string

// DataBlock is a binary payload, decoded from its base64 form on the wire.
type DataBlock []byte

// Array is an ordered sequence of values.
type Array []Value

// DictEntry is a single key/value pair of a Dict.
type DictEntry struct {
	Key   string
	Value Value
}

// Dict is a dictionary with string keys, preserving insertion order. The
// protocol does not forbid a server from repeating a key; we keep the last
// value, at the position of the first occurrence.
type Dict struct {
	entries []DictEntry
}

// Set adds key with value, or replaces the value if key is already present.
func (d *Dict) Set(key string, value Value) {
	for i := range d.entries {
		if d.entries[i].Key == key {
			d.entries[i].Value = value
			return
		}
	}
	d.entries = append(d.entries, DictEntry{key, value})
}

// Get returns the value for key and whether key is present.
func (d Dict) Get(key string) (Value, bool) {
	for _, e := range d.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in insertion order.
func (d Dict) Keys() []string {
	l := make([]string, len(d.entries))
	for i, e := range d.entries {
		l[i] = e.Key
	}
	return l
}

// Entries returns the key/value pairs in insertion order. Callers must not
// modify the returned slice.
func (d Dict) Entries() []DictEntry {
	return d.entries
}

// Len returns the number of entries.
func (d Dict) Len() int {
	return len(d.entries)
}

// First returns the first value of concrete type T among values, in
// depth-first left-to-right order, descending into arrays and dictionary
// values. Responses place their payload at varying depths, e.g. as a direct
// value or wrapped in a single-element array, and First resolves both without
// the caller caring which form the server chose.
func First[T Value](values ...Value) (T, bool) {
	for _, v := range values {
		if t, ok := v.(T); ok {
			return t, true
		}
		switch c := v.(type) {
		case Array:
			if t, ok := First[T]([]Value(c)...); ok {
				return t, true
			}
		case Dict:
			for _, e := range c.entries {
				if t, ok := First[T](e.Value); ok {
					return t, true
				}
			}
		}
	}
	var zero T
	return zero, false
}

// Text returns a plain-text rendering of v, for projecting values into
// strings and for display, e.g. account types and setting values.
func Text(v Value) string {
	switch t := v.(type) {
	case String:
		return string(t)
	case Int:
		return fmt.Sprintf("%d", int64(t))
	case Null:
		return ""
	case IP:
		return t.Address
	case Timestamp:
		return string(t)
	case DataBlock:
		return string(t)
	case Array:
		l := make([]string, len(t))
		for i, e := range t {
			l[i] = Text(e)
		}
		return "(" + strings.Join(l, ",") + ")"
	case Dict:
		var b strings.Builder
		b.WriteString("{")
		for _, e := range t.entries {
			fmt.Fprintf(&b, "%s=%s;", e.Key, Text(e.Value))
		}
		b.WriteString("}")
		return b.String()
	}
	return fmt.Sprintf("%v", v)
}
