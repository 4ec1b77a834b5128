// Package shortvec implements the compact-u16 length prefix used by the
// Solana wire format.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

const maxEncodedBytes = 3

// EncodeLen writes length as a compact-u16 into w and returns the number of
// bytes written.
//
// Lengths above math.MaxUint16 are rejected.
func EncodeLen(w io.Writer, length int) (int, error) {
	if length < 0 || length > math.MaxUint16 {
		return 0, errors.Errorf("len %d outside [0, %d]", length, math.MaxUint16)
	}

	encoded := AppendLen(make([]byte, 0, maxEncodedBytes), length)
	return w.Write(encoded)
}

// AppendLen appends the compact-u16 encoding of length to dst. The caller is
// responsible for keeping length within a u16.
func AppendLen(dst []byte, length int) []byte {
	for {
		b := byte(length & 0x7f)
		length >>= 7
		if length == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// DecodeLen reads a compact-u16 length from r.
func DecodeLen(r io.Reader) (int, error) {
	var val int
	var single [1]byte

	for i := 0; ; i++ {
		if i == maxEncodedBytes {
			return 0, errors.Errorf("invalid size: more than %d bytes", maxEncodedBytes)
		}

		if _, err := io.ReadFull(r, single[:]); err != nil {
			return 0, err
		}

		val |= int(single[0]&0x7f) << (i * 7)
		if single[0]&0x80 == 0 {
			break
		}
	}

	if val > math.MaxUint16 {
		return 0, errors.Errorf("len %d exceeds %d", val, math.MaxUint16)
	}

	return val, nil
}
