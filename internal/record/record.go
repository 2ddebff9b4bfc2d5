// Package record implements the Typed Record & Catalog model
// (spec.md §4.7): Column-Data cells, Column Descriptors, and their
// canonical byte-codec serialization. Strings referenced from a record
// or descriptor are represented here as a packed (page, slot) pointer
// pair rather than a concrete dependency on the allocator package —
// internal/table owns resolving those pointers against an
// internal/alloc.FileHandler.
package record

import (
	"fmt"
	"math"

	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/relerr"
)

// DataType is the tag on a column's value, matching the four scalar
// types the engine supports (spec.md §3).
type DataType uint8

const (
	TypeInt   DataType = 1
	TypeFloat DataType = 2
	TypeDate  DataType = 3
	TypeStr   DataType = 4
)

func (t DataType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeDate:
		return "DATE"
	case TypeStr:
		return "STR"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// PackPtr / UnpackPtr convert a (page, slot) allocator pointer to and
// from the single u64 payload a Column-Data cell carries for Str
// values (spec.md §4.7).
func PackPtr(page, slot uint32) uint64 {
	return uint64(page)<<32 | uint64(slot)
}

func UnpackPtr(payload uint64) (page, slot uint32) {
	return uint32(payload >> 32), uint32(payload)
}

// ColumnData is one cell of a Record: an ordinal, a default/null flag
// pair, a type tag, and an 8-byte payload (spec.md §4.7).
type ColumnData struct {
	Ordinal   uint32
	IsDefault bool
	IsNull    bool
	Type      DataType
	Payload   uint64
}

const (
	flagDefault = 1 << 0
	flagNull    = 1 << 1
	flagTypeLo  = 2 // type tag occupies bits [2:5), 3 bits, values 1..4
)

func (c ColumnData) flags() uint8 {
	var f uint8
	if c.IsDefault {
		f |= flagDefault
	}
	if c.IsNull {
		f |= flagNull
	}
	f |= uint8(c.Type) << flagTypeLo
	return f
}

func flagsToColumnData(ordinal uint32, flags uint8, payload uint64) ColumnData {
	return ColumnData{
		Ordinal:   ordinal,
		IsDefault: flags&flagDefault != 0,
		IsNull:    flags&flagNull != 0,
		Type:      DataType(flags >> flagTypeLo),
		Payload:   payload,
	}
}

func NewInt(ordinal uint32, v int64, isDefault bool) ColumnData {
	return ColumnData{Ordinal: ordinal, Type: TypeInt, Payload: uint64(v), IsDefault: isDefault}
}

func NewFloat(ordinal uint32, v float64, isDefault bool) ColumnData {
	return ColumnData{Ordinal: ordinal, Type: TypeFloat, Payload: math.Float64bits(v), IsDefault: isDefault}
}

func NewDate(ordinal uint32, v uint64, isDefault bool) ColumnData {
	return ColumnData{Ordinal: ordinal, Type: TypeDate, Payload: v, IsDefault: isDefault}
}

func NewStr(ordinal uint32, page, slot uint32, isDefault bool) ColumnData {
	return ColumnData{Ordinal: ordinal, Type: TypeStr, Payload: PackPtr(page, slot), IsDefault: isDefault}
}

func NewNull(ordinal uint32, t DataType, isDefault bool) ColumnData {
	return ColumnData{Ordinal: ordinal, Type: t, IsNull: true, IsDefault: isDefault}
}

func (c ColumnData) Int() int64     { return int64(c.Payload) }
func (c ColumnData) Float() float64 { return math.Float64frombits(c.Payload) }
func (c ColumnData) Date() uint64   { return c.Payload }
func (c ColumnData) StrPtr() (page, slot uint32) { return UnpackPtr(c.Payload) }

// CellSize is the fixed on-disk width of one encoded Column-Data cell:
// ordinal(4) + flags(1) + payload(8).
const CellSize = 4 + 1 + 8

// EncodeCell writes c as a fixed-width cell.
func EncodeCell(c ColumnData) []byte {
	buf := make([]byte, CellSize)
	copy(buf[0:4], codec.EncodeUint32(c.Ordinal))
	buf[4] = c.flags()
	copy(buf[5:13], codec.EncodeUint64(c.Payload))
	return buf
}

// DecodeCell reads one fixed-width cell from the front of buf; it
// always consumes exactly CellSize bytes and ignores anything after.
func DecodeCell(buf []byte) (ColumnData, error) {
	if len(buf) < CellSize {
		return ColumnData{}, relerr.Wrap(relerr.Codec, "record.DecodeCell", codec.ErrBadSize)
	}
	ordinal, err := codec.DecodeUint32(buf[0:4])
	if err != nil {
		return ColumnData{}, relerr.Wrap(relerr.Codec, "record.DecodeCell", err)
	}
	payload, err := codec.DecodeUint64(buf[5:13])
	if err != nil {
		return ColumnData{}, relerr.Wrap(relerr.Codec, "record.DecodeCell", err)
	}
	return flagsToColumnData(ordinal, buf[4], payload), nil
}

// Record is an ordered sequence of Column-Data cells (spec.md §4.7).
type Record struct {
	Cells []ColumnData
}

// Encode serializes a Record as a w-wide cell count followed by the
// concatenated fixed-width cells.
func Encode(w codec.Size, rec Record) ([]byte, error) {
	countPrefix, err := codec.EncodeSize(w, uint64(len(rec.Cells)))
	if err != nil {
		return nil, relerr.Wrap(relerr.Codec, "record.Encode", err)
	}
	out := make([]byte, 0, len(countPrefix)+len(rec.Cells)*CellSize)
	out = append(out, countPrefix...)
	for _, c := range rec.Cells {
		out = append(out, EncodeCell(c)...)
	}
	return out, nil
}

// Decode parses a Record previously written by Encode, requiring the
// whole of buf to be consumed.
func Decode(buf []byte, w codec.Size) (Record, error) {
	count, rest, err := decodeCount(buf, w)
	if err != nil {
		return Record{}, err
	}
	cells := make([]ColumnData, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(rest) < CellSize {
			return Record{}, relerr.New(relerr.Codec, "record.Decode", "truncated cell")
		}
		c, err := DecodeCell(rest[:CellSize])
		if err != nil {
			return Record{}, err
		}
		cells = append(cells, c)
		rest = rest[CellSize:]
	}
	if len(rest) != 0 {
		return Record{}, relerr.New(relerr.Codec, "record.Decode", "trailing bytes after record")
	}
	return Record{Cells: cells}, nil
}

func decodeCount(buf []byte, w codec.Size) (uint64, []byte, error) {
	n := w.ByteLen()
	if len(buf) < n {
		return 0, nil, relerr.Wrap(relerr.Codec, "record.decodeCount", codec.ErrBadSize)
	}
	switch w {
	case codec.Size8:
		v, e := codec.DecodeUint8(buf[:1])
		return uint64(v), buf[1:], wrapCodecErr(e)
	case codec.Size16:
		v, e := codec.DecodeUint16(buf[:2])
		return uint64(v), buf[2:], wrapCodecErr(e)
	case codec.Size32:
		v, e := codec.DecodeUint32(buf[:4])
		return uint64(v), buf[4:], wrapCodecErr(e)
	default:
		v, e := codec.DecodeUint64(buf[:8])
		return v, buf[8:], wrapCodecErr(e)
	}
}

func wrapCodecErr(err error) error {
	if err == nil {
		return nil
	}
	return relerr.Wrap(relerr.Codec, "record.decodeCount", err)
}
