package codec

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
)

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) write(b []byte, err error) error {
	if err != nil {
		return err
	}
	_, _ = e.buf.Write(b)
	return nil
}

func (e *encoder) encode(v interface{}, t *idl.Type, path string) error {
	if t == nil {
		return errors.Wrapf(ErrTypeMismatch, "%s: missing type", path)
	}

	switch t.Kind {
	case idl.KindBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(path, t, v)
		}
		return e.write(serialize(b))

	case idl.KindU8, idl.KindU16, idl.KindU32, idl.KindU64, idl.KindU128,
		idl.KindI8, idl.KindI16, idl.KindI32, idl.KindI64, idl.KindI128:
		return e.integer(v, t, path)

	case idl.KindF32, idl.KindF64:
		f, ok := toFloat(v)
		if !ok {
			return mismatch(path, t, v)
		}
		if math.IsNaN(f) {
			return errors.Wrapf(ErrTypeMismatch, "%s: NaN is not encodable", path)
		}
		if t.Kind == idl.KindF32 {
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return errors.Wrapf(ErrTypeMismatch, "%s: %v out of range for f32", path, f)
			}
			return e.write(serialize(float32(f)))
		}
		return e.write(serialize(f))

	case idl.KindString:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, t, v)
		}
		if !utf8.ValidString(s) {
			return errors.Wrapf(ErrTypeMismatch, "%s: string is not valid utf-8", path)
		}
		if uint64(len(s)) > math.MaxUint32 {
			return errors.Wrapf(ErrTypeMismatch, "%s: length %d exceeds u32", path, len(s))
		}
		return e.write(serialize(s))

	case idl.KindBytes:
		b, ok := toBytes(v)
		if !ok {
			return mismatch(path, t, v)
		}
		if err := e.length(len(b), path); err != nil {
			return err
		}
		_, _ = e.buf.Write(b)
		return nil

	case idl.KindPubkey:
		key, err := toPublicKey(v)
		if err != nil {
			return errors.Wrapf(ErrTypeMismatch, "%s: %v", path, err)
		}
		_, _ = e.buf.Write(key)
		return nil

	case idl.KindVector:
		items, ok := toSlice(v)
		if !ok {
			return mismatch(path, t, v)
		}
		if err := e.length(len(items), path); err != nil {
			return err
		}
		return e.sequence(items, t.Elem, path)

	case idl.KindArray:
		items, ok := toSlice(v)
		if !ok {
			return mismatch(path, t, v)
		}
		if len(items) != t.Len {
			return errors.Wrapf(ErrTypeMismatch, "%s: expected %d elements, got %d", path, t.Len, len(items))
		}
		return e.sequence(items, t.Elem, path)

	case idl.KindOption:
		inner, present := optional(v)
		if present && isOption(t.Elem) {
			// JSON callers spell a present outer option as {"some": inner}.
			if fields, ok := toFieldMap(inner); ok && len(fields) == 1 {
				if wrapped, ok := fields["some"]; ok {
					inner = wrapped
				}
			}
		}
		if !present {
			_ = e.buf.WriteByte(0)
			return nil
		}
		_ = e.buf.WriteByte(1)
		return e.encode(inner, t.Elem, path)

	case idl.KindStruct:
		return e.structure(v, t, path)

	case idl.KindEnum:
		return e.enum(v, t, path)

	case idl.KindDefined:
		resolved := t.Resolve()
		if resolved == nil {
			return errors.Wrapf(ErrTypeMismatch, "%s: unresolved type %q", path, t.Name)
		}
		return e.encode(v, resolved, path)
	}

	return errors.Wrapf(ErrTypeMismatch, "%s: unknown type kind %s", path, t.Kind)
}

func (e *encoder) integer(v interface{}, t *idl.Type, path string) error {
	n, ok := toBigInt(v)
	if !ok {
		return mismatch(path, t, v)
	}

	b := bounds[t.Kind]
	if n.Cmp(b[0]) < 0 || n.Cmp(b[1]) > 0 {
		return errors.Wrapf(ErrTypeMismatch, "%s: %s out of range for %s", path, n, t.Kind)
	}

	if t.Kind == idl.KindU128 || t.Kind == idl.KindI128 {
		_, _ = e.buf.Write(put128(n))
		return nil
	}
	return e.write(serialize(integerLeaf(t.Kind, n)))
}

func (e *encoder) length(n int, path string) error {
	if uint64(n) > math.MaxUint32 {
		return errors.Wrapf(ErrTypeMismatch, "%s: length %d exceeds u32", path, n)
	}
	return e.write(serialize(uint32(n)))
}

func (e *encoder) sequence(items []interface{}, elem *idl.Type, path string) error {
	for i, item := range items {
		if err := e.encode(item, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) structure(v interface{}, t *idl.Type, path string) error {
	// Tuple structs may be supplied positionally.
	if items, ok := toSlice(v); ok && isTuple(t) {
		if len(items) != len(t.Fields) {
			return errors.Wrapf(ErrTypeMismatch, "%s: expected %d fields, got %d", path, len(t.Fields), len(items))
		}
		for i, f := range t.Fields {
			if err := e.encode(items[i], f.Type, path+"."+f.Name); err != nil {
				return err
			}
		}
		return nil
	}

	fields, ok := toFieldMap(v)
	if !ok {
		return mismatch(path, t, v)
	}

	for _, f := range t.Fields {
		fv, ok := fields[f.Name]
		if !ok {
			return errors.Wrapf(ErrTypeMismatch, "%s: missing field %q", path, f.Name)
		}
		if err := e.encode(fv, f.Type, path+"."+f.Name); err != nil {
			return err
		}
	}

	if len(fields) > len(t.Fields) {
		declared := make(map[string]struct{}, len(t.Fields))
		for _, f := range t.Fields {
			declared[f.Name] = struct{}{}
		}
		var unknown []string
		for name := range fields {
			if _, ok := declared[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		return errors.Wrapf(ErrTypeMismatch, "%s: unknown fields %v", path, unknown)
	}

	return nil
}

func (e *encoder) enum(v interface{}, t *idl.Type, path string) error {
	name, payload, ok := toVariant(v)
	if !ok {
		return mismatch(path, t, v)
	}

	variant, ok := t.Variant(name)
	if !ok {
		return errors.Wrapf(ErrTypeMismatch, "%s: unknown variant %q of %s", path, name, t)
	}

	if err := e.discriminant(variant.Index, t.DiscriminantSize, path); err != nil {
		return err
	}

	if variant.Payload == nil {
		if fields, ok := toFieldMap(payload); payload != nil && !(ok && len(fields) == 0) {
			return errors.Wrapf(ErrTypeMismatch, "%s: variant %q takes no value", path, name)
		}
		return nil
	}
	if payload == nil {
		return errors.Wrapf(ErrTypeMismatch, "%s: variant %q requires a value", path, name)
	}

	// A single field tuple variant may carry its value unwrapped.
	if len(variant.Payload.Fields) == 1 && isTuple(variant.Payload) {
		_, isSlice := toSlice(payload)
		_, isMap := toFieldMap(payload)
		if !isSlice && !isMap {
			payload = []interface{}{payload}
		}
	}
	return e.structure(payload, variant.Payload, path+"."+name)
}

func (e *encoder) discriminant(index uint32, size int, path string) error {
	switch size {
	case 0, 1:
		if index > math.MaxUint8 {
			break
		}
		_ = e.buf.WriteByte(byte(index))
		return nil
	case 2:
		if index > math.MaxUint16 {
			break
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(index))
		_, _ = e.buf.Write(b[:])
		return nil
	case 4:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], index)
		_, _ = e.buf.Write(b[:])
		return nil
	}
	return errors.Wrapf(ErrInvalidDiscriminant, "%s: index %d does not fit in %d bytes", path, index, size)
}

func isTuple(t *idl.Type) bool {
	for i, f := range t.Fields {
		if f.Name != strconv.Itoa(i) {
			return false
		}
	}
	return true
}

func optional(v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case Some:
		return x.Value, true
	case *Some:
		if x == nil {
			return nil, false
		}
		return x.Value, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		if _, isBig := v.(*big.Int); !isBig {
			return rv.Elem().Interface(), true
		}
	}
	return v, true
}

func toBytes(v interface{}) ([]byte, bool) {
	switch x := v.(type) {
	case []byte:
		return x, true
	case string:
		return nil, false
	}

	items, ok := toSlice(v)
	if !ok {
		return nil, false
	}

	b := make([]byte, len(items))
	for i, item := range items {
		n, ok := toBigInt(item)
		if !ok || n.Sign() < 0 || n.Cmp(bounds[idl.KindU8][1]) > 0 {
			return nil, false
		}
		b[i] = byte(n.Uint64())
	}
	return b, true
}

func toPublicKey(v interface{}) (ed25519.PublicKey, error) {
	var b []byte
	switch x := v.(type) {
	case ed25519.PublicKey:
		b = x
	case []byte:
		b = x
	case [ed25519.PublicKeySize]byte:
		b = x[:]
	case string:
		decoded, err := base58.Decode(x)
		if err != nil {
			return nil, errors.Errorf("invalid base58 address %q", x)
		}
		b = decoded
	default:
		return nil, errors.Errorf("cannot encode %T as pubkey", v)
	}

	if len(b) != ed25519.PublicKeySize {
		return nil, errors.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return b, nil
}

// toSlice flattens any slice or array, except strings, into []interface{}.
func toSlice(v interface{}) ([]interface{}, bool) {
	if items, ok := v.([]interface{}); ok {
		return items, true
	}
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func toFieldMap(v interface{}) (map[string]interface{}, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	m := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// toVariant accepts EnumValue, a bare variant name, or a single-key object
// mapping the variant name to its fields.
func toVariant(v interface{}) (string, interface{}, bool) {
	switch x := v.(type) {
	case EnumValue:
		return x.Variant, x.Value, true
	case *EnumValue:
		if x == nil {
			return "", nil, false
		}
		return x.Variant, x.Value, true
	case string:
		return x, nil, true
	}

	m, ok := toFieldMap(v)
	if !ok || len(m) != 1 {
		return "", nil, false
	}
	for name, payload := range m {
		return name, payload, true
	}
	return "", nil, false
}
