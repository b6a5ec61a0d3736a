// Package ipld implements the self-describing value model described in
// spec.md §3 and its canonical content addressing (§4.1): null, boolean,
// integer, float, string, bytes, ordered list, ordered string-keyed map,
// and link (a CID). Values are encoded with go-ipld-prime's dag-cbor codec,
// which writes map keys in its canonical length-first, then bytewise order,
// giving deterministic, round-trippable encodings.
package ipld

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
)

// Kind enumerates the variants of the value model.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// MapEntry is a single key/value pair of a Value of KindMap.
type MapEntry struct {
	Key   string
	Value Value
}

// Value is an immutable node of the value model. The zero Value is KindNull.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	list  []Value
	m     []MapEntry
	link  cid.Cid
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a byte-string value. The slice is not copied; callers must
// not mutate it after constructing the Value.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }

// List returns an ordered list value.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map returns an ordered string-keyed map value. Entries are re-sorted
// lexicographically by key bytes at construction time so that two Maps
// built from the same key/value pairs in any order compare and encode
// identically (spec.md §4.1's canonical map-key rule).
func Map(entries ...MapEntry) Value {
	sorted := make([]MapEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return Value{kind: KindMap, m: sorted}
}

// Link returns a link value (a reference to another value by CID).
func Link(c cid.Cid) Value { return Value{kind: KindLink, link: c} }

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns v's boolean payload. ok is false if v is not KindBool.
func (v Value) AsBool() (val bool, ok bool) { return v.b, v.kind == KindBool }

// AsInt returns v's integer payload. ok is false if v is not KindInt.
func (v Value) AsInt() (val int64, ok bool) { return v.i, v.kind == KindInt }

// AsFloat returns v's float payload. ok is false if v is not KindFloat.
func (v Value) AsFloat() (val float64, ok bool) { return v.f, v.kind == KindFloat }

// AsString returns v's string payload. ok is false if v is not KindString.
func (v Value) AsString() (val string, ok bool) { return v.s, v.kind == KindString }

// AsBytes returns v's byte-string payload. ok is false if v is not KindBytes.
func (v Value) AsBytes() (val []byte, ok bool) { return v.bytes, v.kind == KindBytes }

// AsList returns v's list payload. ok is false if v is not KindList.
func (v Value) AsList() (val []Value, ok bool) { return v.list, v.kind == KindList }

// AsMap returns v's map payload, sorted lexicographically by key.
// ok is false if v is not KindMap.
func (v Value) AsMap() (val []MapEntry, ok bool) { return v.m, v.kind == KindMap }

// AsLink returns v's link payload. ok is false if v is not KindLink.
func (v Value) AsLink() (val cid.Cid, ok bool) { return v.link, v.kind == KindLink }

// Lookup returns the value associated with key in a KindMap value, or
// (Null(), false) if v is not a map or the key is absent.
func (v Value) Lookup(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null(), false
	}
	// m is sorted by key; binary search keeps Lookup cheap on wide maps.
	lo, hi := 0, len(v.m)
	for lo < hi {
		mid := (lo + hi) / 2
		if v.m[mid].Key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(v.m) && v.m[lo].Key == key {
		return v.m[lo].Value, true
	}
	return Null(), false
}

// Equal reports whether v and other encode to the same canonical bytes
// value-for-value, without needing a round trip through Encode.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindBytes:
		if len(v.bytes) != len(other.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for i := range v.m {
			if v.m[i].Key != other.m[i].Key || !v.m[i].Value.Equal(other.m[i].Value) {
				return false
			}
		}
		return true
	case KindLink:
		return v.link.Equals(other.link)
	default:
		return false
	}
}

// GoString renders a debug representation; useful in test failure output.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("bool(%v)", v.b)
	case KindInt:
		return fmt.Sprintf("int(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("float(%v)", v.f)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytes))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.list))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	case KindLink:
		return fmt.Sprintf("link(%s)", v.link)
	default:
		return "invalid"
	}
}
