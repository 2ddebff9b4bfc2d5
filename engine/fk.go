package engine

import (
	"bytes"

	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
	"github.com/relcore/engine/internal/table"
)

// cellsEqual compares two cells (possibly from different tables, hence
// different table.Handles for resolving Str pointers) for foreign-key
// value equality, reusing the B-tree's order-preserving key encoding
// rather than a separate comparison routine.
func cellsEqual(th1 *table.Handle, c1 record.ColumnData, th2 *table.Handle, c2 record.ColumnData) bool {
	if c1.Type != c2.Type || c1.IsNull != c2.IsNull {
		return false
	}
	k1 := btreeindex.EncodeKey([]btreeindex.KeyPart{keyPartFor(th1, c1)})
	k2 := btreeindex.EncodeKey([]btreeindex.KeyPart{keyPartFor(th2, c2)})
	return bytes.Equal(k1, k2)
}

// checkForeignKeysOnWrite enforces SPEC_FULL §4.13's Insert/Update-time
// foreign key rule: the referenced table's column must be its primary
// key, and a non-null referencing value must already exist there.
// Checked before any allocation, same as primary-key duplication.
func (c *Context) checkForeignKeysOnWrite(db *databaseState, ts *tableState, rec record.Record) error {
	byOrd := cellByOrdinal(rec)
	for _, col := range ts.columns {
		if !col.IsForeign {
			continue
		}
		target, ok := db.tables[col.ForeignTableName]
		if !ok {
			return relerr.New(relerr.Catalog, "engine.checkForeignKeysOnWrite", "foreign key references unknown table: "+col.ForeignTableName)
		}
		pkOrds := target.primaryKeyOrdinals()
		if len(pkOrds) != 1 {
			return relerr.New(relerr.Catalog, "engine.checkForeignKeysOnWrite", "foreign key target "+col.ForeignTableName+" has no single-column primary key")
		}
		cell := byOrd[col.Ordinal]
		if cell.IsNull {
			continue
		}
		key := btreeindex.EncodeKey([]btreeindex.KeyPart{keyPartFor(ts.handle, cell)})
		if _, found := target.clustered.Get(key); !found {
			return relerr.New(relerr.Constraint, "engine.checkForeignKeysOnWrite", "foreign key violation: no matching row in "+col.ForeignTableName)
		}
	}
	return nil
}

// checkForeignKeysOnDelete enforces SPEC_FULL §4.13's Delete/Update-time
// rule on the referenced side: a row may not be removed (or have its
// primary key changed) while any other table's foreign key still
// references it. No cascade — matches original_source's behavior.
func (c *Context) checkForeignKeysOnDelete(db *databaseState, ts *tableState, rec record.Record) error {
	pkOrds := ts.primaryKeyOrdinals()
	if len(pkOrds) != 1 {
		return nil // composite-PK tables can't be FK targets (rejected at write time already)
	}
	pkCell := cellByOrdinal(rec)[pkOrds[0]]

	for otherName, other := range db.tables {
		for _, col := range other.columns {
			if !col.IsForeign || col.ForeignTableName != ts.name {
				continue
			}
			for _, ptr := range other.clustered.All() {
				orec := other.handle.GetRecord(ptr)
				ocell := cellByOrdinal(orec)[col.Ordinal]
				if !ocell.IsNull && cellsEqual(ts.handle, pkCell, other.handle, ocell) {
					return relerr.New(relerr.Constraint, "engine.checkForeignKeysOnDelete", "row is referenced by a foreign key in table "+otherName)
				}
			}
		}
	}
	return nil
}
