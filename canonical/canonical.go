// Package canonical produces the deterministic JSON byte form that activity
// signatures and proofing payloads are computed over: object keys sorted,
// no insignificant whitespace, non-ASCII characters escaped as \uXXXX and
// HTML characters left untouched.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// Bag is a flat attribute bag describing one signed activity. Attributes
// whose value is unset (nil, or a nil pointer, map or slice) are dropped
// when the bag is canonicalized.
type Bag struct {
	keys   []string
	values map[string]any
}

// NewBag creates an empty bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// Set assigns key. Re-setting a key keeps its original position.
func (b *Bag) Set(key string, value any) *Bag {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
	return b
}

// Get returns the raw value stored under key.
func (b *Bag) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (b *Bag) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Len returns the number of attributes, set or not.
func (b *Bag) Len() int {
	return len(b.keys)
}

// Canonicalize renders the bag with unset attributes stripped and keys sorted.
func Canonicalize(b *Bag) ([]byte, error) {
	if b == nil {
		return nil, errors.New("canonical: nil bag")
	}

	present := make(map[string]any, len(b.keys))
	for _, k := range b.keys {
		v := b.values[k]
		if isUnset(v) {
			continue
		}
		present[k] = v
	}
	return Marshal(present)
}

// Marshal renders any JSON-serializable value in canonical form. Structs
// are normalized into generic maps first so their keys sort like map keys.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, errors.Wrap(err, "canonical: encode")
	}
	return escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "canonical: value of type %T is not serializable", v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, "canonical: normalize")
	}
	return out, nil
}

func isUnset(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// escapeNonASCII rewrites every rune above 0x7F as a lowercase \uXXXX
// escape, using surrogate pairs outside the basic multilingual plane.
func escapeNonASCII(in []byte) []byte {
	ascii := true
	for _, c := range in {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return in
	}

	out := make([]byte, 0, len(in)+16)
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, hi, lo)
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}
