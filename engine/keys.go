package engine

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/table"
)

// cellByOrdinal indexes a record's cells by their column ordinal for
// building composite keys over an arbitrary column subset.
func cellByOrdinal(rec record.Record) map[uint32]record.ColumnData {
	m := make(map[uint32]record.ColumnData, len(rec.Cells))
	for _, c := range rec.Cells {
		m[c.Ordinal] = c
	}
	return m
}

// keyPartFor converts one cell into the KeyPart the B-tree's composite
// comparator expects, resolving Str cells' allocator pointer to the
// actual string content.
func keyPartFor(th *table.Handle, c record.ColumnData) btreeindex.KeyPart {
	if c.IsNull {
		return btreeindex.KeyPart{Type: c.Type, IsNull: true}
	}
	switch c.Type {
	case record.TypeInt:
		return btreeindex.IntPart(c.Int())
	case record.TypeFloat:
		return btreeindex.FloatPart(c.Float())
	case record.TypeDate:
		return btreeindex.DatePart(c.Date())
	case record.TypeStr:
		page, slot := c.StrPtr()
		return btreeindex.StrPart(th.GetString(alloc.SlotPtr{Page: page, Slot: slot}))
	default:
		return btreeindex.KeyPart{Type: c.Type, IsNull: true}
	}
}

// buildKey assembles the composite key for ordinals (in the order
// given) from rec, as required by the clustered index (every primary
// key column) or a secondary index (its single indexed column).
func buildKey(th *table.Handle, rec record.Record, ordinals []uint32) []byte {
	byOrd := cellByOrdinal(rec)
	parts := make([]btreeindex.KeyPart, len(ordinals))
	for i, ord := range ordinals {
		parts[i] = keyPartFor(th, byOrd[ord])
	}
	return btreeindex.EncodeKey(parts)
}
