package codec

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
)

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) take(n int, path string, t *idl.Type) ([]byte, error) {
	if n < 0 || len(d.data)-d.pos < n {
		return nil, errors.Wrapf(ErrTruncatedInput, "%s: %s needs %d bytes, %d remain", path, t, n, len(d.data)-d.pos)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) length(path string, t *idl.Type) (int, error) {
	b, err := d.take(4, path, t)
	if err != nil {
		return 0, err
	}
	var n uint32
	if err := deserialize(&n, b); err != nil {
		return 0, err
	}
	if uint64(n) > math.MaxInt32 {
		return 0, errors.Wrapf(ErrTruncatedInput, "%s: length %d exceeds input", path, n)
	}
	return int(n), nil
}

func (d *decoder) decode(t *idl.Type, path string) (interface{}, error) {
	if t == nil {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s: missing type", path)
	}

	switch t.Kind {
	case idl.KindBool:
		b, err := d.take(1, path, t)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, errors.Wrapf(ErrTypeMismatch, "%s: invalid bool byte 0x%02x", path, b[0])

	case idl.KindU8, idl.KindU16, idl.KindU32, idl.KindU64,
		idl.KindI8, idl.KindI16, idl.KindI32, idl.KindI64:
		b, err := d.take(t.Kind.Size(), path, t)
		if err != nil {
			return nil, err
		}
		dst := integerDest(t.Kind)
		if err := deserialize(dst, b); err != nil {
			return nil, err
		}
		return deref(dst), nil

	case idl.KindU128, idl.KindI128:
		b, err := d.take(16, path, t)
		if err != nil {
			return nil, err
		}
		return get128(b, t.Kind == idl.KindI128), nil

	case idl.KindF32:
		b, err := d.take(4, path, t)
		if err != nil {
			return nil, err
		}
		var f float32
		if err := deserialize(&f, b); err != nil {
			return nil, err
		}
		if math.IsNaN(float64(f)) {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s: NaN", path)
		}
		return f, nil

	case idl.KindF64:
		b, err := d.take(8, path, t)
		if err != nil {
			return nil, err
		}
		var f float64
		if err := deserialize(&f, b); err != nil {
			return nil, err
		}
		if math.IsNaN(f) {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s: NaN", path)
		}
		return f, nil

	case idl.KindString:
		n, err := d.length(path, t)
		if err != nil {
			return nil, err
		}
		b, err := d.take(n, path, t)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s: string is not valid utf-8", path)
		}
		return string(b), nil

	case idl.KindBytes:
		n, err := d.length(path, t)
		if err != nil {
			return nil, err
		}
		b, err := d.take(n, path, t)
		if err != nil {
			return nil, err
		}
		return append([]byte{}, b...), nil

	case idl.KindPubkey:
		b, err := d.take(ed25519.PublicKeySize, path, t)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(append([]byte{}, b...)), nil

	case idl.KindVector:
		n, err := d.length(path, t)
		if err != nil {
			return nil, err
		}

		// Reject impossible lengths before allocating.
		size := minSize(t.Elem)
		if size == 0 && n > 0 {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s: vector of zero sized %s", path, t.Elem)
		}
		if remaining := len(d.data) - d.pos; n > 0 && size > 0 && n > remaining/size {
			return nil, errors.Wrapf(ErrTruncatedInput, "%s: %d elements of %s cannot fit in %d bytes", path, n, t.Elem, remaining)
		}
		return d.sequence(n, t.Elem, path)

	case idl.KindArray:
		return d.sequence(t.Len, t.Elem, path)

	case idl.KindOption:
		b, err := d.take(1, path, t)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return nil, nil
		case 1:
			v, err := d.decode(t.Elem, path)
			if err != nil {
				return nil, err
			}
			if isOption(t.Elem) {
				return Some{Value: v}, nil
			}
			return v, nil
		}
		return nil, errors.Wrapf(ErrInvalidDiscriminant, "%s: invalid option flag 0x%02x", path, b[0])

	case idl.KindStruct:
		fields := make(map[string]interface{}, len(t.Fields))
		for _, f := range t.Fields {
			v, err := d.decode(f.Type, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
		}
		return fields, nil

	case idl.KindEnum:
		return d.enum(t, path)

	case idl.KindDefined:
		resolved := t.Resolve()
		if resolved == nil {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s: unresolved type %q", path, t.Name)
		}
		return d.decode(resolved, path)
	}

	return nil, errors.Wrapf(ErrTypeMismatch, "%s: unknown type kind %s", path, t.Kind)
}

func (d *decoder) sequence(n int, elem *idl.Type, path string) ([]interface{}, error) {
	items := make([]interface{}, 0, min(n, len(d.data)-d.pos))
	for i := 0; i < n; i++ {
		v, err := d.decode(elem, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func (d *decoder) enum(t *idl.Type, path string) (interface{}, error) {
	size := t.DiscriminantSize
	if size == 0 {
		size = 1
	}

	b, err := d.take(size, path, t)
	if err != nil {
		return nil, err
	}

	var index uint32
	switch size {
	case 1:
		index = uint32(b[0])
	case 2:
		index = uint32(binary.LittleEndian.Uint16(b))
	case 4:
		index = binary.LittleEndian.Uint32(b)
	default:
		return nil, errors.Wrapf(ErrInvalidDiscriminant, "%s: unsupported discriminant size %d", path, size)
	}

	variant, ok := t.VariantByIndex(index)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidDiscriminant, "%s: no variant of %s has index %d", path, t, index)
	}

	if variant.Payload == nil {
		return EnumValue{Variant: variant.Name}, nil
	}

	payload, err := d.decode(variant.Payload, path+"."+variant.Name)
	if err != nil {
		return nil, err
	}
	return EnumValue{Variant: variant.Name, Value: payload}, nil
}

// minSize is the fewest bytes any value of t encodes to.
func minSize(t *idl.Type) int {
	if t == nil {
		return 0
	}

	switch t.Kind {
	case idl.KindString, idl.KindBytes, idl.KindVector:
		return 4
	case idl.KindOption:
		return 1
	case idl.KindArray:
		return t.Len * minSize(t.Elem)
	case idl.KindStruct:
		total := 0
		for _, f := range t.Fields {
			total += minSize(f.Type)
		}
		return total
	case idl.KindEnum:
		if t.DiscriminantSize == 0 {
			return 1
		}
		return t.DiscriminantSize
	case idl.KindDefined:
		return minSize(t.Resolve())
	}
	return t.Kind.Size()
}

func isOption(t *idl.Type) bool {
	if t != nil && t.Kind == idl.KindDefined {
		t = t.Resolve()
	}
	return t != nil && t.Kind == idl.KindOption
}
