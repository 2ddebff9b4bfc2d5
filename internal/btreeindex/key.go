// Package btreeindex implements the clustered and secondary B-tree
// Index (spec.md §4.9): a composite-key B-tree whose nodes and buckets
// are persisted as variable-length byte strings through a
// internal/table.Handle, addressed by allocator slot pointers rather
// than raw page numbers — eliminating the parent-pointer cycle the
// source left unresolved (spec.md §"Design Notes" / REDESIGN FLAGS) by
// walking a descent stack of (node pointer, child index) instead.
package btreeindex

import (
	"bytes"
	"math"

	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
)

// KeyPart is one typed column value within a composite B-tree key.
type KeyPart struct {
	Type   record.DataType
	Int    int64
	Float  float64
	Date   uint64
	Str    string
	IsNull bool
}

func IntPart(v int64) KeyPart     { return KeyPart{Type: record.TypeInt, Int: v} }
func FloatPart(v float64) KeyPart { return KeyPart{Type: record.TypeFloat, Float: v} }
func DatePart(v uint64) KeyPart   { return KeyPart{Type: record.TypeDate, Date: v} }
func StrPart(v string) KeyPart    { return KeyPart{Type: record.TypeStr, Str: v} }

// EncodeKey produces a byte-comparable encoding of a composite key:
// bytes.Compare on two encoded keys agrees with the column-by-column
// typed comparison the catalog defines for that index. Fixed-width
// scalar parts (Int/Float/Date) are encoded big-endian with their sign
// bit manipulated so two's-complement / IEEE-754 ordering matches
// unsigned byte ordering; Str parts are NUL-terminated so a shorter
// string with a matching prefix always compares less than any longer
// continuation (column values must not contain an embedded NUL byte).
// A null part sorts before every non-null value of the same column.
func EncodeKey(parts []KeyPart) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, encodePart(p)...)
	}
	return out
}

// partTag packs a part's declared column type and null/present state
// into a single leading byte (type in the high bits, present in the
// low bit), instead of a bare null/present flag. Two parts at the same
// composite-key position must carry the same type half of the tag;
// CompareKeys uses that to catch a type mismatch explicitly rather
// than silently ordering by raw bytes (spec.md §"Design Notes": "type
// tags must match position-for-position; mismatch is an error, not
// Less/Greater"). The present bit still sorts a null before any
// present value of the same type.
func partTag(t record.DataType, present bool) byte {
	tag := byte(t) << 1
	if present {
		tag |= 1
	}
	return tag
}

func encodePart(p KeyPart) []byte {
	if p.IsNull {
		return []byte{partTag(p.Type, false)}
	}
	buf := make([]byte, 0, 9)
	buf = append(buf, partTag(p.Type, true))
	switch p.Type {
	case record.TypeInt:
		buf = append(buf, beUint64(uint64(p.Int)^(1<<63))...)
	case record.TypeFloat:
		bits := math.Float64bits(p.Float)
		if p.Float >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		buf = append(buf, beUint64(bits)...)
	case record.TypeDate:
		buf = append(buf, beUint64(p.Date)...)
	case record.TypeStr:
		buf = append(buf, []byte(p.Str)...)
		buf = append(buf, 0)
	}
	return buf
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// partEnd returns the offset just past the key part starting at i,
// using its tag byte to determine the type-specific payload width.
func partEnd(buf []byte, i int) (int, error) {
	if i >= len(buf) {
		return 0, relerr.New(relerr.Codec, "btreeindex.partEnd", "truncated key part")
	}
	tag := buf[i]
	present := tag&1 != 0
	switch record.DataType(tag >> 1) {
	case record.TypeInt, record.TypeFloat, record.TypeDate:
		if !present {
			return i + 1, nil
		}
		if i+9 > len(buf) {
			return 0, relerr.New(relerr.Codec, "btreeindex.partEnd", "truncated scalar key part")
		}
		return i + 9, nil
	case record.TypeStr:
		if !present {
			return i + 1, nil
		}
		nul := bytes.IndexByte(buf[i+1:], 0)
		if nul < 0 {
			return 0, relerr.New(relerr.Codec, "btreeindex.partEnd", "unterminated string key part")
		}
		return i + 1 + nul + 1, nil
	default:
		return 0, relerr.New(relerr.Codec, "btreeindex.partEnd", "unknown key part type tag")
	}
}

// CompareKeys orders two already-encoded composite keys, walking them
// part by part. Two keys being compared always come from the same
// index and therefore share a schema; if a position's type tags don't
// match, or one key has more parts than the other, that is reported as
// an explicit error rather than guessed at with Less/Greater (spec.md
// §"Design Notes": "a pure comparator function ... errors (type/arity
// mismatch) are explicit results, not exceptions").
func CompareKeys(a, b []byte) (int, error) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if record.DataType(a[i]>>1) != record.DataType(b[j]>>1) {
			return 0, relerr.New(relerr.Type, "btreeindex.CompareKeys", "composite key type tag mismatch")
		}
		aEnd, err := partEnd(a, i)
		if err != nil {
			return 0, err
		}
		bEnd, err := partEnd(b, j)
		if err != nil {
			return 0, err
		}
		if cmp := bytes.Compare(a[i:aEnd], b[j:bEnd]); cmp != 0 {
			return cmp, nil
		}
		i, j = aEnd, bEnd
	}
	if i != len(a) || j != len(b) {
		return 0, relerr.New(relerr.Type, "btreeindex.CompareKeys", "composite key arity mismatch")
	}
	return 0, nil
}

// mustCompareKeys is CompareKeys for callers within the B-tree's own
// descent logic, which already guarantee every key compared came from
// the same tree and therefore the same schema — a mismatch here is an
// invariant violation, not a caller error, so it panics the same way
// readNode does on a corrupt node rather than threading an error
// through every sort.Search closure.
func mustCompareKeys(a, b []byte) int {
	cmp, err := CompareKeys(a, b)
	if err != nil {
		panic(err)
	}
	return cmp
}
