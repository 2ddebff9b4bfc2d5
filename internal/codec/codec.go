// Package codec implements the Byte Codec (spec.md §4.6): a canonical,
// little-endian, size-prefixed encoder/decoder for primitives, strings,
// fixed-length sequences, and structures with named fields, used to
// serialize records, column descriptors, and B-tree nodes.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// Size is the bit-width used to encode a length prefix: one of
// 8, 16, 32, 64.
type Size uint8

const (
	Size8  Size = 8
	Size16 Size = 16
	Size32 Size = 32
	Size64 Size = 64
)

// ByteLen returns how many bytes a Size-width length prefix occupies.
func (w Size) ByteLen() int {
	switch w {
	case Size8:
		return 1
	case Size16:
		return 2
	case Size32:
		return 4
	case Size64:
		return 8
	default:
		panic("codec: invalid Size width")
	}
}

func (w Size) max() uint64 {
	switch w {
	case Size8:
		return 1<<8 - 1
	case Size16:
		return 1<<16 - 1
	case Size32:
		return 1<<32 - 1
	default:
		return math.MaxUint64
	}
}

var (
	// ErrOverflow: a size field cannot represent the length being encoded.
	ErrOverflow = errors.New("codec: overflow: value does not fit in the declared size width")
	// ErrBadSize: declared lengths don't sum to the buffer length.
	ErrBadSize = errors.New("codec: bad size: declared length exceeds available buffer")
	// ErrStringDecode: UTF-8 validation failed for a character string.
	ErrStringDecode = errors.New("codec: invalid UTF-8 in decoded string")
)

// ---- primitives ----

func EncodeUint8(v uint8) []byte { return []byte{v} }
func DecodeUint8(buf []byte) (uint8, error) {
	if len(buf) < 1 {
		return 0, ErrBadSize
	}
	return buf[0], nil
}

func EncodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}
func DecodeUint16(buf []byte) (uint16, error) {
	if len(buf) < 2 {
		return 0, ErrBadSize
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func EncodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
func DecodeUint32(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, ErrBadSize
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
func DecodeUint64(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, ErrBadSize
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func EncodeInt64(v int64) []byte { return EncodeUint64(uint64(v)) }
func DecodeInt64(buf []byte) (int64, error) {
	u, err := DecodeUint64(buf)
	return int64(u), err
}

func EncodeFloat64(v float64) []byte { return EncodeUint64(math.Float64bits(v)) }
func DecodeFloat64(buf []byte) (float64, error) {
	u, err := DecodeUint64(buf)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func EncodeFloat32(v float32) []byte { return EncodeUint32(math.Float32bits(v)) }
func DecodeFloat32(buf []byte) (float32, error) {
	u, err := DecodeUint32(buf)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// ---- size-prefixed length fields ----

// EncodeSize encodes n as a w-wide little-endian length field. Fails
// with ErrOverflow if n does not fit in w bits.
func EncodeSize(w Size, n uint64) ([]byte, error) {
	if n > w.max() {
		return nil, ErrOverflow
	}
	switch w {
	case Size8:
		return EncodeUint8(uint8(n)), nil
	case Size16:
		return EncodeUint16(uint16(n)), nil
	case Size32:
		return EncodeUint32(uint32(n)), nil
	default:
		return EncodeUint64(n), nil
	}
}

// decodeSizeConsume reads one w-wide length field off the front of buf
// and returns (value, remaining buffer).
func decodeSizeConsume(buf []byte, w Size) (uint64, []byte, error) {
	n := w.ByteLen()
	if len(buf) < n {
		return 0, nil, ErrBadSize
	}
	var v uint64
	switch w {
	case Size8:
		v = uint64(buf[0])
	case Size16:
		v = uint64(binary.LittleEndian.Uint16(buf))
	case Size32:
		v = uint64(binary.LittleEndian.Uint32(buf))
	default:
		v = binary.LittleEndian.Uint64(buf)
	}
	return v, buf[n:], nil
}

// ---- byte sequences / strings ----

// EncodeBytes prepends a w-wide length prefix to data.
func EncodeBytes(w Size, data []byte) ([]byte, error) {
	if uint64(len(data)) > w.max() {
		return nil, ErrOverflow
	}
	prefix, err := EncodeSize(w, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(prefix)+len(data))
	out = append(out, prefix...)
	out = append(out, data...)
	return out, nil
}

// DecodeBytesConsume reads a w-wide length-prefixed byte string off the
// front of buf and returns (data, remaining buffer).
func DecodeBytesConsume(buf []byte, w Size) ([]byte, []byte, error) {
	n, rest, err := decodeSizeConsume(buf, w)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, ErrBadSize
	}
	return rest[:n], rest[n:], nil
}

// DecodeBytes decodes a single length-prefixed byte string and
// requires the whole of buf to be consumed.
func DecodeBytes(buf []byte, w Size) ([]byte, error) {
	data, rest, err := DecodeBytesConsume(buf, w)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrBadSize
	}
	return data, nil
}

// EncodeString is EncodeBytes over a UTF-8 string.
func EncodeString(w Size, s string) ([]byte, error) {
	return EncodeBytes(w, []byte(s))
}

// DecodeStringConsume decodes a length-prefixed character string,
// validating UTF-8.
func DecodeStringConsume(buf []byte, w Size) (string, []byte, error) {
	data, rest, err := DecodeBytesConsume(buf, w)
	if err != nil {
		return "", nil, err
	}
	if !utf8.Valid(data) {
		return "", nil, ErrStringDecode
	}
	return string(data), rest, nil
}

func DecodeString(buf []byte, w Size) (string, error) {
	s, rest, err := DecodeStringConsume(buf, w)
	if err != nil {
		return "", err
	}
	if len(rest) != 0 {
		return "", ErrBadSize
	}
	return s, nil
}

// ---- structures with named fields / tuples ----

// EncodeStruct emits one w-wide length per field followed by the field
// payloads in declaration order (spec.md §4.6).
func EncodeStruct(w Size, fields [][]byte) ([]byte, error) {
	lens := make([]byte, 0, len(fields)*w.ByteLen())
	total := 0
	for _, f := range fields {
		lp, err := EncodeSize(w, uint64(len(f)))
		if err != nil {
			return nil, err
		}
		lens = append(lens, lp...)
		total += len(f)
	}
	out := make([]byte, 0, len(lens)+total)
	out = append(out, lens...)
	for _, f := range fields {
		out = append(out, f...)
	}
	return out, nil
}

// DecodeStructConsume decodes exactly numFields length-prefixed fields
// and returns (fields, remaining buffer).
func DecodeStructConsume(buf []byte, w Size, numFields int) ([][]byte, []byte, error) {
	lens := make([]uint64, numFields)
	cur := buf
	for i := 0; i < numFields; i++ {
		n, rest, err := decodeSizeConsume(cur, w)
		if err != nil {
			return nil, nil, err
		}
		lens[i] = n
		cur = rest
	}
	fields := make([][]byte, numFields)
	for i, n := range lens {
		if uint64(len(cur)) < n {
			return nil, nil, ErrBadSize
		}
		fields[i] = cur[:n]
		cur = cur[n:]
	}
	return fields, cur, nil
}

// DecodeStruct decodes exactly numFields fields and requires buf to be
// fully consumed.
func DecodeStruct(buf []byte, w Size, numFields int) ([][]byte, error) {
	fields, rest, err := DecodeStructConsume(buf, w, numFields)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrBadSize
	}
	return fields, nil
}

// ---- homogeneous sequences (also used for maps/sets: element = pair
// or single value, encoded as an opaque already-serialized blob) ----

// EncodeSequence emits a w-wide count followed by each element
// length-prefixed in insertion order.
func EncodeSequence(w Size, elems [][]byte) ([]byte, error) {
	countPrefix, err := EncodeSize(w, uint64(len(elems)))
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, countPrefix...)
	for _, e := range elems {
		enc, err := EncodeBytes(w, e)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeSequenceConsume decodes a count-prefixed, length-prefixed
// sequence of elements and returns (elements, remaining buffer).
func DecodeSequenceConsume(buf []byte, w Size) ([][]byte, []byte, error) {
	count, cur, err := decodeSizeConsume(buf, w)
	if err != nil {
		return nil, nil, err
	}
	elems := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		var e []byte
		e, cur, err = DecodeBytesConsume(cur, w)
		if err != nil {
			return nil, nil, err
		}
		elems = append(elems, e)
	}
	return elems, cur, nil
}

// DecodeSequence decodes a full sequence and requires buf to be fully
// consumed.
func DecodeSequence(buf []byte, w Size) ([][]byte, error) {
	elems, rest, err := DecodeSequenceConsume(buf, w)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrBadSize
	}
	return elems, nil
}

// DecodeMax behaves like a decode guard rejecting any buffer longer
// than limit before the caller applies one of the Decode* functions
// above (spec.md §4.6 decode_max).
func DecodeMax(buf []byte, limit int) ([]byte, error) {
	if len(buf) > limit {
		return nil, ErrBadSize
	}
	return buf, nil
}
