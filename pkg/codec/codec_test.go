package codec

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
)

var (
	point = idl.Struct(
		idl.Field{Name: "x", Type: idl.Primitive(idl.KindI32)},
		idl.Field{Name: "y", Type: idl.Primitive(idl.KindI32)},
	)

	shape = &idl.Type{
		Kind:             idl.KindEnum,
		DiscriminantSize: 1,
		Variants: []idl.Variant{
			{Name: "Empty", Index: 0},
			{Name: "Circle", Index: 1, Payload: idl.Struct(
				idl.Field{Name: "center", Type: idl.Defined("Point", point)},
				idl.Field{Name: "radius", Type: idl.Primitive(idl.KindU32)},
			)},
			{Name: "Tagged", Index: 2, Payload: idl.Struct(
				idl.Field{Name: "0", Type: idl.Primitive(idl.KindString)},
			)},
		},
	}
)

func bigInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

// normalize renders big integers as strings so that equal values compare
// equal regardless of their internal representation.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case *big.Int:
		return "big:" + x.String()
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = normalize(x[i])
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case EnumValue:
		return EnumValue{Variant: x.Variant, Value: normalize(x.Value)}
	case Some:
		return Some{Value: normalize(x.Value)}
	}
	return v
}

func TestRoundTrip(t *testing.T) {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	for i := range key {
		key[i] = byte(i)
	}

	for _, tc := range []struct {
		t      *idl.Type
		values []interface{}
	}{
		{idl.Primitive(idl.KindBool), []interface{}{true, false}},
		{idl.Primitive(idl.KindU8), []interface{}{uint8(0), uint8(math.MaxUint8)}},
		{idl.Primitive(idl.KindU16), []interface{}{uint16(0), uint16(math.MaxUint16)}},
		{idl.Primitive(idl.KindU32), []interface{}{uint32(7), uint32(math.MaxUint32)}},
		{idl.Primitive(idl.KindU64), []interface{}{uint64(1000), uint64(math.MaxUint64)}},
		{idl.Primitive(idl.KindI8), []interface{}{int8(math.MinInt8), int8(math.MaxInt8)}},
		{idl.Primitive(idl.KindI16), []interface{}{int16(math.MinInt16), int16(-1)}},
		{idl.Primitive(idl.KindI32), []interface{}{int32(math.MinInt32), int32(math.MaxInt32)}},
		{idl.Primitive(idl.KindI64), []interface{}{int64(math.MinInt64), int64(math.MaxInt64)}},
		{idl.Primitive(idl.KindU128), []interface{}{big.NewInt(1), bigInt("340282366920938463463374607431768211455")}},
		{idl.Primitive(idl.KindI128), []interface{}{big.NewInt(-1), bigInt("-170141183460469231731687303715884105728"), bigInt("170141183460469231731687303715884105727")}},
		{idl.Primitive(idl.KindF32), []interface{}{float32(1.5), float32(-3.25)}},
		{idl.Primitive(idl.KindF64), []interface{}{math.Pi, -0.125}},
		{idl.Primitive(idl.KindString), []interface{}{"", "héllo wörld"}},
		{idl.Primitive(idl.KindBytes), []interface{}{[]byte{}, []byte{1, 2, 3}}},
		{idl.Primitive(idl.KindPubkey), []interface{}{key}},
		{idl.Vector(idl.Primitive(idl.KindU16)), []interface{}{[]interface{}{}, []interface{}{uint16(1), uint16(2)}}},
		{idl.Option(idl.Primitive(idl.KindU64)), []interface{}{nil, uint64(42)}},
		{idl.Array(idl.Primitive(idl.KindI8), 3), []interface{}{[]interface{}{int8(-1), int8(0), int8(1)}}},
		{point, []interface{}{map[string]interface{}{"x": int32(-5), "y": int32(9)}}},
		{shape, []interface{}{
			EnumValue{Variant: "Empty"},
			EnumValue{Variant: "Circle", Value: map[string]interface{}{
				"center": map[string]interface{}{"x": int32(1), "y": int32(2)},
				"radius": uint32(3),
			}},
			EnumValue{Variant: "Tagged", Value: map[string]interface{}{"0": "label"}},
		}},
		{idl.Defined("Point", point), []interface{}{map[string]interface{}{"x": int32(0), "y": int32(0)}}},
		{idl.Vector(idl.Option(idl.Defined("Shape", shape))), []interface{}{
			[]interface{}{nil, EnumValue{Variant: "Empty"}},
		}},
		{idl.Option(idl.Option(idl.Primitive(idl.KindU64))), []interface{}{
			nil,
			Some{Value: nil},
			Some{Value: uint64(7)},
		}},
		{idl.Option(idl.Defined("MaybeU8", idl.Option(idl.Primitive(idl.KindU8)))), []interface{}{
			Some{Value: nil},
			Some{Value: uint8(1)},
		}},
	} {
		for _, v := range tc.values {
			t.Run(fmt.Sprintf("%s/%v", tc.t, v), func(t *testing.T) {
				encoded, err := Encode(v, tc.t)
				require.NoError(t, err)

				decoded, n, err := Decode(encoded, tc.t)
				require.NoError(t, err)
				assert.Equal(t, len(encoded), n)
				assert.Equal(t, normalize(v), normalize(decoded))

				again, err := Encode(decoded, tc.t)
				require.NoError(t, err)
				assert.Equal(t, encoded, again)
			})
		}
	}
}

func TestRoundTrip_Generated(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	record := idl.Struct(
		idl.Field{Name: "id", Type: idl.Primitive(idl.KindU64)},
		idl.Field{Name: "delta", Type: idl.Primitive(idl.KindI64)},
		idl.Field{Name: "name", Type: idl.Primitive(idl.KindString)},
		idl.Field{Name: "tags", Type: idl.Vector(idl.Primitive(idl.KindU8))},
		idl.Field{Name: "parent", Type: idl.Option(idl.Primitive(idl.KindU32))},
		idl.Field{Name: "owner", Type: idl.Primitive(idl.KindPubkey)},
		idl.Field{Name: "corner", Type: idl.Array(idl.Primitive(idl.KindI16), 2)},
		idl.Field{Name: "shape", Type: idl.Defined("Shape", shape)},
		idl.Field{Name: "limit", Type: idl.Option(idl.Option(idl.Primitive(idl.KindU16)))},
	)

	const letters = "abcdefghijklmnopqrstuvwxyz"
	randomString := func(max int) string {
		b := make([]byte, r.Intn(max))
		for j := range b {
			b[j] = letters[r.Intn(len(letters))]
		}
		return string(b)
	}

	for i := 0; i < 200; i++ {
		tags := make([]interface{}, r.Intn(8))
		for j := range tags {
			tags[j] = uint8(r.Intn(256))
		}

		var parent interface{}
		if r.Intn(2) == 1 {
			parent = r.Uint32()
		}

		owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
		r.Read(owner)

		var s interface{}
		switch r.Intn(3) {
		case 0:
			s = EnumValue{Variant: "Empty"}
		case 1:
			s = EnumValue{Variant: "Circle", Value: map[string]interface{}{
				"center": map[string]interface{}{"x": r.Int31() - r.Int31(), "y": r.Int31()},
				"radius": r.Uint32(),
			}}
		default:
			s = EnumValue{Variant: "Tagged", Value: map[string]interface{}{"0": randomString(8)}}
		}

		var limit interface{}
		switch r.Intn(3) {
		case 1:
			limit = Some{Value: nil}
		case 2:
			limit = Some{Value: uint16(r.Intn(1 << 16))}
		}

		v := map[string]interface{}{
			"id":     r.Uint64(),
			"delta":  r.Int63() - r.Int63(),
			"name":   randomString(16),
			"tags":   tags,
			"parent": parent,
			"owner":  owner,
			"corner": []interface{}{int16(r.Intn(1<<16) - 1<<15), int16(r.Intn(1<<16) - 1<<15)},
			"shape":  s,
			"limit":  limit,
		}

		encoded, err := Encode(v, record)
		require.NoError(t, err)

		decoded, n, err := Decode(encoded, record)
		require.NoError(t, err)
		require.Equal(t, len(encoded), n)
		require.Equal(t, v, decoded)

		again, err := Encode(decoded, record)
		require.NoError(t, err)
		require.Equal(t, encoded, again)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	v := map[string]interface{}{"y": int32(2), "x": int32(1)}

	first, err := Encode(v, point)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Encode(v, point)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Declaration order, not map order.
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0}, first)
}

func TestEncode_Layout(t *testing.T) {
	for _, tc := range []struct {
		name     string
		t        *idl.Type
		value    interface{}
		expected []byte
	}{
		{"u64", idl.Primitive(idl.KindU64), uint64(1000), []byte{0xe8, 0x03, 0, 0, 0, 0, 0, 0}},
		{"json number", idl.Primitive(idl.KindU64), json.Number("1000"), []byte{0xe8, 0x03, 0, 0, 0, 0, 0, 0}},
		{"integral float", idl.Primitive(idl.KindU16), float64(258), []byte{0x02, 0x01}},
		{"negative i16", idl.Primitive(idl.KindI16), -2, []byte{0xfe, 0xff}},
		{"i128 minus one", idl.Primitive(idl.KindI128), "-1", []byte{
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		}},
		{"u128 hex", idl.Primitive(idl.KindU128), "0x0102", []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"bool", idl.Primitive(idl.KindBool), true, []byte{1}},
		{"string", idl.Primitive(idl.KindString), "abc", []byte{3, 0, 0, 0, 'a', 'b', 'c'}},
		{"bytes", idl.Primitive(idl.KindBytes), []byte{9}, []byte{1, 0, 0, 0, 9}},
		{"pubkey base58", idl.Primitive(idl.KindPubkey), "11111111111111111111111111111111", make([]byte, 32)},
		{"vec", idl.Vector(idl.Primitive(idl.KindU8)), []int{1, 2}, []byte{2, 0, 0, 0, 1, 2}},
		{"array", idl.Array(idl.Primitive(idl.KindU8), 2), []interface{}{7, 8}, []byte{7, 8}},
		{"option absent", idl.Option(idl.Primitive(idl.KindU64)), nil, []byte{0}},
		{"option present", idl.Option(idl.Primitive(idl.KindU64)), 42, []byte{1, 42, 0, 0, 0, 0, 0, 0, 0}},
		{"option explicitly present", idl.Option(idl.Primitive(idl.KindU8)), Some{Value: 3}, []byte{1, 3}},
		{"nested option inner absent", idl.Option(idl.Option(idl.Primitive(idl.KindU8))), Some{Value: nil}, []byte{1, 0}},
		{"nested option from json", idl.Option(idl.Option(idl.Primitive(idl.KindU8))), map[string]interface{}{"some": nil}, []byte{1, 0}},
		{"nested option from json present", idl.Option(idl.Option(idl.Primitive(idl.KindU8))), map[string]interface{}{"some": 4}, []byte{1, 1, 4}},
		{"nested option nil pointer", idl.Option(idl.Option(idl.Primitive(idl.KindU8))), (*Some)(nil), []byte{0}},
		{"decimal with leading zero", idl.Primitive(idl.KindU8), "010", []byte{10}},
		{"signed decimal string", idl.Primitive(idl.KindI8), "-12", []byte{0xf4}},
		{"unit variant by name", shape, "Empty", []byte{0}},
		{"variant object", shape, map[string]interface{}{"Tagged": "x"}, []byte{2, 1, 0, 0, 0, 'x'}},
		{"tuple struct positional", idl.Struct(
			idl.Field{Name: "0", Type: idl.Primitive(idl.KindU8)},
			idl.Field{Name: "1", Type: idl.Primitive(idl.KindBool)},
		), []interface{}{5, false}, []byte{5, 0}},
		{"wide discriminant", &idl.Type{
			Kind:             idl.KindEnum,
			DiscriminantSize: 2,
			Variants:         []idl.Variant{{Name: "A", Index: 0}, {Name: "B", Index: 0x0102}},
		}, "B", []byte{0x02, 0x01}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.value, tc.t)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, encoded)
		})
	}
}

func TestEncode_TypeMismatch(t *testing.T) {
	for _, tc := range []struct {
		name  string
		t     *idl.Type
		value interface{}
	}{
		{"u8 overflow", idl.Primitive(idl.KindU8), 256},
		{"u64 negative", idl.Primitive(idl.KindU64), -1},
		{"i8 underflow", idl.Primitive(idl.KindI8), -129},
		{"u128 overflow", idl.Primitive(idl.KindU128), "340282366920938463463374607431768211456"},
		{"fractional integer", idl.Primitive(idl.KindU32), 1.5},
		{"digit separators", idl.Primitive(idl.KindU32), "1_000"},
		{"octal prefix", idl.Primitive(idl.KindU32), "0o17"},
		{"binary prefix", idl.Primitive(idl.KindU32), json.Number("0b11")},
		{"empty hex", idl.Primitive(idl.KindU32), "0x"},
		{"integer from bool", idl.Primitive(idl.KindU32), true},
		{"bool from string", idl.Primitive(idl.KindBool), "true"},
		{"invalid utf-8", idl.Primitive(idl.KindString), "\xff\xfe"},
		{"f32 overflow", idl.Primitive(idl.KindF32), 1e39},
		{"nan", idl.Primitive(idl.KindF64), math.NaN()},
		{"short pubkey", idl.Primitive(idl.KindPubkey), []byte{1, 2, 3}},
		{"bad base58", idl.Primitive(idl.KindPubkey), "0OIl"},
		{"vec from scalar", idl.Vector(idl.Primitive(idl.KindU8)), 5},
		{"array length", idl.Array(idl.Primitive(idl.KindU8), 3), []interface{}{1, 2}},
		{"missing field", point, map[string]interface{}{"x": 1}},
		{"unknown field", point, map[string]interface{}{"x": 1, "y": 2, "z": 3}},
		{"struct from scalar", point, 1},
		{"unknown variant", shape, "Square"},
		{"unit variant with value", shape, EnumValue{Variant: "Empty", Value: 1}},
		{"payload variant without value", shape, "Circle"},
		{"unresolved reference", &idl.Type{Kind: idl.KindDefined, Name: "Ghost"}, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.value, tc.t)
			assert.ErrorIs(t, err, ErrTypeMismatch)
		})
	}
}

func TestEncode_ErrorPath(t *testing.T) {
	route := idl.Struct(idl.Field{Name: "hops", Type: idl.Vector(idl.Defined("Point", point))})

	_, err := Encode(map[string]interface{}{
		"hops": []interface{}{
			map[string]interface{}{"x": 1, "y": 2},
			map[string]interface{}{"x": 1, "y": "far"},
		},
	}, route)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "value.hops[1].y")
}

func TestDecode_Enum(t *testing.T) {
	_, _, err := Decode([]byte{3}, shape)
	assert.ErrorIs(t, err, ErrInvalidDiscriminant)

	_, _, err = Decode([]byte{0xff}, shape)
	assert.ErrorIs(t, err, ErrInvalidDiscriminant)

	// Valid Circle discriminant followed by half a point.
	_, _, err = Decode([]byte{1, 1, 0, 0, 0}, shape)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	_, _, err = Decode(nil, shape)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	v, n, err := Decode([]byte{0, 0xaa}, shape)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, EnumValue{Variant: "Empty"}, v)
}

func TestDecode_Option(t *testing.T) {
	optional := idl.Option(idl.Primitive(idl.KindU64))

	v, n, err := Decode([]byte{0x00}, optional)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, n)

	v, n, err = Decode([]byte{0x01, 0x2a, 0, 0, 0, 0, 0, 0, 0}, optional)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
	assert.Equal(t, 9, n)

	_, _, err = Decode([]byte{0x02}, optional)
	assert.ErrorIs(t, err, ErrInvalidDiscriminant)

	_, _, err = Decode([]byte{0x01, 0x2a}, optional)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	nested := idl.Option(optional)

	v, n, err = Decode([]byte{0x01, 0x00}, nested)
	require.NoError(t, err)
	assert.Equal(t, Some{Value: nil}, v)
	assert.Equal(t, 2, n)

	again, err := Encode(v, nested)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00}, again)

	v, _, err = Decode([]byte{0x01, 0x01, 0x2a, 0, 0, 0, 0, 0, 0, 0}, nested)
	require.NoError(t, err)
	assert.Equal(t, Some{Value: uint64(42)}, v)

	v, _, err = Decode([]byte{0x00}, nested)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDecode_Truncated(t *testing.T) {
	for _, tc := range []struct {
		name string
		t    *idl.Type
		data []byte
	}{
		{"u32", idl.Primitive(idl.KindU32), []byte{1, 2, 3}},
		{"u128", idl.Primitive(idl.KindU128), make([]byte, 15)},
		{"string body", idl.Primitive(idl.KindString), []byte{5, 0, 0, 0, 'a'}},
		{"string length", idl.Primitive(idl.KindString), []byte{5, 0}},
		{"vec elements", idl.Vector(idl.Primitive(idl.KindU16)), []byte{2, 0, 0, 0, 1, 0}},
		{"huge vec", idl.Vector(idl.Primitive(idl.KindU64)), []byte{0xff, 0xff, 0xff, 0x7f}},
		{"pubkey", idl.Primitive(idl.KindPubkey), make([]byte, 31)},
		{"struct field", point, []byte{1, 0, 0, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(tc.data, tc.t)
			assert.ErrorIs(t, err, ErrTruncatedInput)
		})
	}
}

func TestDecode_InvalidValues(t *testing.T) {
	_, _, err := Decode([]byte{2}, idl.Primitive(idl.KindBool))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, _, err = Decode([]byte{2, 0, 0, 0, 0xff, 0xfe}, idl.Primitive(idl.KindString))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecodeAll(t *testing.T) {
	v, err := DecodeAll([]byte{7, 0}, idl.Primitive(idl.KindU16))
	require.NoError(t, err)
	assert.Equal(t, uint16(7), v)

	_, err = DecodeAll([]byte{7, 0, 1}, idl.Primitive(idl.KindU16))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
