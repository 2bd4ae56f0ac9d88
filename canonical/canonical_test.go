package canonical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsAndStripsUnset(t *testing.T) {
	var missing *string
	bag := NewBag().
		Set("tceId", "abc").
		Set("hocId", nil).
		Set("tocId", missing).
		Set("mass", "1500.00").
		Set("prevTceIds", []string{})

	out, err := Canonicalize(bag)
	require.NoError(t, err)
	require.Equal(t, `{"mass":"1500.00","prevTceIds":[],"tceId":"abc"}`, string(out))
}

func TestCanonicalizeIsOrderIndependent(t *testing.T) {
	a := NewBag().Set("b", 1).Set("a", map[string]any{"z": 1, "y": 2})
	b := NewBag().Set("a", map[string]any{"y": 2, "z": 1}).Set("b", 1)

	outA, err := Canonicalize(a)
	require.NoError(t, err)
	outB, err := Canonicalize(b)
	require.NoError(t, err)
	require.Equal(t, outA, outB)
	require.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, string(outA))
}

func TestMarshalEscapesNonASCIIOnly(t *testing.T) {
	out, err := Marshal(map[string]string{"name": "Müller <&> 😀"})
	require.NoError(t, err)
	require.Equal(t, `{"name":"M\u00fcller <&> \ud83d\ude00"}`, string(out))
}

func TestMarshalSortsStructFields(t *testing.T) {
	type distance struct {
		Value string `json:"value"`
		Unit  string `json:"unit"`
	}
	out, err := Marshal(distance{Value: "10.00", Unit: "km"})
	require.NoError(t, err)
	require.Equal(t, `{"unit":"km","value":"10.00"}`, string(out))
}

func TestMarshalPreservesNumberLiterals(t *testing.T) {
	out, err := Marshal(map[string]any{"big": 12345678901234567, "f": 1.5})
	require.NoError(t, err)
	require.Equal(t, `{"big":12345678901234567,"f":1.5}`, string(out))
}

func TestCanonicalizeRejectsUnserializableValues(t *testing.T) {
	bag := NewBag().Set("callback", func() {})
	_, err := Canonicalize(bag)
	require.Error(t, err)

	_, err = Canonicalize(nil)
	require.Error(t, err)
}

func TestBagKeepsInsertionPosition(t *testing.T) {
	bag := NewBag().Set("x", 1).Set("y", 2).Set("x", 3)
	require.Equal(t, []string{"x", "y"}, bag.Keys())
	require.Equal(t, 2, bag.Len())

	v, ok := bag.Get("x")
	require.True(t, ok)
	require.Equal(t, 3, v)
}
