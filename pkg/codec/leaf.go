package codec

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/near/borsh-go"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
)

var (
	two128 = new(big.Int).Lsh(big.NewInt(1), 128)
	bounds = make(map[idl.Kind][2]*big.Int)
)

func init() {
	for _, kind := range []idl.Kind{idl.KindU8, idl.KindU16, idl.KindU32, idl.KindU64, idl.KindU128} {
		bits := uint(kind.Size() * 8)
		hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
		bounds[kind] = [2]*big.Int{big.NewInt(0), hi}
	}
	for _, kind := range []idl.Kind{idl.KindI8, idl.KindI16, idl.KindI32, idl.KindI64, idl.KindI128} {
		bits := uint(kind.Size()*8 - 1)
		limit := new(big.Int).Lsh(big.NewInt(1), bits)
		bounds[kind] = [2]*big.Int{new(big.Int).Neg(limit), new(big.Int).Sub(limit, big.NewInt(1))}
	}
}

func serialize(v interface{}) ([]byte, error) {
	b, err := borsh.Serialize(v)
	if err != nil {
		return nil, errors.Wrap(err, "borsh serialize failed")
	}
	return b, nil
}

// deserialize reads exactly len(b) bytes into dst. Callers size b from the
// descriptor, so a borsh failure here means the input was short.
func deserialize(dst interface{}, b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrTruncatedInput, "borsh deserialize panic: %v", r)
		}
	}()

	if err := borsh.Deserialize(dst, b); err != nil {
		return errors.Wrapf(ErrTruncatedInput, "borsh deserialize failed: %v", err)
	}
	return nil
}

// integerLeaf converts n, already range checked, into the fixed width Go type
// borsh serializes for kind.
func integerLeaf(kind idl.Kind, n *big.Int) interface{} {
	switch kind {
	case idl.KindU8:
		return uint8(n.Uint64())
	case idl.KindU16:
		return uint16(n.Uint64())
	case idl.KindU32:
		return uint32(n.Uint64())
	case idl.KindU64:
		return n.Uint64()
	case idl.KindI8:
		return int8(n.Int64())
	case idl.KindI16:
		return int16(n.Int64())
	case idl.KindI32:
		return int32(n.Int64())
	case idl.KindI64:
		return n.Int64()
	}
	return nil
}

// integerDest returns a pointer borsh can deserialize a kind into.
func integerDest(kind idl.Kind) interface{} {
	switch kind {
	case idl.KindU8:
		return new(uint8)
	case idl.KindU16:
		return new(uint16)
	case idl.KindU32:
		return new(uint32)
	case idl.KindU64:
		return new(uint64)
	case idl.KindI8:
		return new(int8)
	case idl.KindI16:
		return new(int16)
	case idl.KindI32:
		return new(int32)
	case idl.KindI64:
		return new(int64)
	}
	return nil
}

func deref(p interface{}) interface{} {
	switch v := p.(type) {
	case *uint8:
		return *v
	case *uint16:
		return *v
	case *uint32:
		return *v
	case *uint64:
		return *v
	case *int8:
		return *v
	case *int16:
		return *v
	case *int32:
		return *v
	case *int64:
		return *v
	case *float32:
		return *v
	case *float64:
		return *v
	}
	return nil
}

// put128 writes n as 16 little-endian bytes in two's complement.
func put128(n *big.Int) []byte {
	v := new(big.Int).Set(n)
	if v.Sign() < 0 {
		v.Add(v, two128)
	}

	out := make([]byte, 16)
	v.FillBytes(out)
	reverse(out)
	return out
}

func get128(b []byte, signed bool) *big.Int {
	be := make([]byte, 16)
	copy(be, b)
	reverse(be)

	n := new(big.Int).SetBytes(be)
	if signed && be[0]&0x80 != 0 {
		n.Sub(n, two128)
	}
	return n
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func toBigInt(v interface{}) (*big.Int, bool) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, false
		}
		return new(big.Int).Set(x), true
	case big.Int:
		return new(big.Int).Set(&x), true
	case int:
		return big.NewInt(int64(x)), true
	case int8:
		return big.NewInt(int64(x)), true
	case int16:
		return big.NewInt(int64(x)), true
	case int32:
		return big.NewInt(int64(x)), true
	case int64:
		return big.NewInt(x), true
	case uint:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint64:
		return new(big.Int).SetUint64(x), true
	case float32:
		return floatToBigInt(float64(x))
	case float64:
		return floatToBigInt(x)
	case json.Number:
		return parseInteger(string(x))
	case string:
		return parseInteger(x)
	}
	return nil, false
}

// parseInteger reads a decimal integer, or a hexadecimal one when prefixed by
// 0x. Other prefixes and digit separators are rejected.
func parseInteger(s string) (*big.Int, bool) {
	digits, base := s, 10
	sign := ""
	if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		sign, digits = digits[:1], digits[1:]
	}
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits, base = digits[2:], 16
	}
	if digits == "" || strings.ContainsAny(digits, "_+-") {
		return nil, false
	}
	if n, ok := new(big.Int).SetString(sign+digits, base); ok {
		return n, true
	}
	if base == 16 {
		return nil, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return floatToBigInt(f)
}

func floatToBigInt(f float64) (*big.Int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return nil, false
	}
	n, _ := big.NewFloat(f).Int(nil)
	return n, true
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
