// Package codec encodes and decodes values against IDL type descriptors
// using the Borsh wire format.
//
// Decoded values use the following Go types:
//
//	bool                      bool
//	u8..u64, i8..i64          uint8..uint64, int8..int64
//	u128, i128                *big.Int
//	f32, f64                  float32, float64
//	string                    string
//	bytes                     []byte
//	pubkey                    ed25519.PublicKey
//	vec, array                []interface{}
//	option                    nil when absent, otherwise the inner value;
//	                          Some when the inner type is itself an option
//	struct                    map[string]interface{}
//	enum                      EnumValue
//
// Encode accepts every decoded form, plus the looser shapes produced by
// decoding JSON: json.Number, float64 and numeric strings for integers,
// base58 strings for public keys, a variant name for unit enum variants, a
// single-key object for variants with a payload and {"some": v} for a present
// option wrapping another option.
package codec

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
)

var (
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrTruncatedInput      = errors.New("truncated input")
	ErrInvalidDiscriminant = errors.New("invalid discriminant")
)

// EnumValue is a decoded enum. Value is nil for unit variants and a
// map[string]interface{} for variants carrying fields.
type EnumValue struct {
	Variant string
	Value   interface{}
}

// Some is a present option. Decode produces it only when the inner type is
// itself an option, where Some{Value: nil} (present, inner absent) must differ
// from nil (absent). Encode accepts it for any option.
type Some struct {
	Value interface{}
}

func (v EnumValue) String() string {
	if v.Value == nil {
		return v.Variant
	}
	return fmt.Sprintf("%s(%v)", v.Variant, v.Value)
}

// Encode returns the Borsh encoding of value as t.
func Encode(value interface{}, t *idl.Type) ([]byte, error) {
	e := &encoder{}
	if err := e.encode(value, t, "value"); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// Decode reads a single t from the front of data. It returns the value and
// the number of bytes consumed.
func Decode(data []byte, t *idl.Type) (interface{}, int, error) {
	d := &decoder{data: data}
	v, err := d.decode(t, "value")
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

// DecodeAll is Decode that additionally fails if data has trailing bytes.
func DecodeAll(data []byte, t *idl.Type) (interface{}, error) {
	v, n, err := Decode(data, t)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, errors.Wrapf(ErrTypeMismatch, "%d trailing bytes after %s", len(data)-n, t)
	}
	return v, nil
}

func mismatch(path string, t *idl.Type, v interface{}) error {
	return errors.Wrapf(ErrTypeMismatch, "%s: cannot encode %T as %s", path, v, t)
}
