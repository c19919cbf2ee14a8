package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"

	"cyberbook/internal/domain"
)

// Index keys are an order-preserving encoding of the indexed value followed
// by the record's primary key. Each encoded value is self-delimiting, so a
// prefix seek on the value finds every record holding it.
const (
	tagBool   byte = 0x01
	tagNumber byte = 0x02
	tagString byte = 0x03
)

var errBadIndexKey = errors.New("store: malformed index key")

// encodeValue encodes a scalar. ok is false for values that cannot be indexed.
func encodeValue(v any) ([]byte, bool) {
	n, ok := domain.NormalizeValue(v)
	if !ok {
		return nil, false
	}
	switch x := n.(type) {
	case bool:
		if x {
			return []byte{tagBool, 1}, true
		}
		return []byte{tagBool, 0}, true
	case float64:
		bits := math.Float64bits(x)
		if x < 0 || (x == 0 && math.Signbit(x)) {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		out := make([]byte, 9)
		out[0] = tagNumber
		binary.BigEndian.PutUint64(out[1:], bits)
		return out, true
	case string:
		out := make([]byte, 0, len(x)+3)
		out = append(out, tagString)
		for i := 0; i < len(x); i++ {
			if x[i] == 0x00 {
				out = append(out, 0x00, 0xFF)
				continue
			}
			out = append(out, x[i])
		}
		return append(out, 0x00, 0x01), true
	}
	return nil, false
}

// decodeValue decodes the value at the start of key and returns the remainder.
func decodeValue(key []byte) (any, []byte, error) {
	if len(key) == 0 {
		return nil, nil, errBadIndexKey
	}
	switch key[0] {
	case tagBool:
		if len(key) < 2 {
			return nil, nil, errBadIndexKey
		}
		return key[1] == 1, key[2:], nil
	case tagNumber:
		if len(key) < 9 {
			return nil, nil, errBadIndexKey
		}
		bits := binary.BigEndian.Uint64(key[1:9])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), key[9:], nil
	case tagString:
		var buf bytes.Buffer
		for i := 1; i < len(key); i++ {
			if key[i] != 0x00 {
				buf.WriteByte(key[i])
				continue
			}
			if i+1 >= len(key) {
				return nil, nil, errBadIndexKey
			}
			switch key[i+1] {
			case 0x01:
				return buf.String(), key[i+2:], nil
			case 0xFF:
				buf.WriteByte(0x00)
				i++
			default:
				return nil, nil, errBadIndexKey
			}
		}
	}
	return nil, nil, errBadIndexKey
}

// indexKey joins an encoded value with the primary key.
func indexKey(enc []byte, pk string) []byte {
	out := make([]byte, 0, len(enc)+len(pk))
	out = append(out, enc...)
	return append(out, pk...)
}
