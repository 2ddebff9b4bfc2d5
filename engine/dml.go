package engine

import (
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
)

// completeRow fills in defaults and NULLs for columns rows left out,
// and rejects a NULL against a NOT NULL column (spec.md §4.7, SPEC_FULL
// §4.13 "apply defaults ... check NOT NULL").
func (ts *tableState) completeRow(row record.Record) (record.Record, error) {
	byOrd := cellByOrdinal(row)
	cells := make([]record.ColumnData, len(ts.columns))
	for i, col := range ts.columns {
		cell, present := byOrd[col.Ordinal]
		if present && !cell.IsNull && cell.Type != col.Type {
			return record.Record{}, relerr.New(relerr.Type, "engine.completeRow", "value type does not match column: "+col.Name)
		}
		if !present {
			var err error
			cell, err = fillCellFor(col)
			if err != nil {
				return record.Record{}, err
			}
		}
		if cell.IsNull && !col.CanBeNull {
			return record.Record{}, relerr.New(relerr.Constraint, "engine.completeRow", "NULL not allowed for column: "+col.Name)
		}
		cells[i] = cell
	}
	return record.Record{Cells: cells}, nil
}

// fillCellFor produces the cell a row missing col outright must get:
// col's default, or NULL if col allows it, or an error if neither
// applies. Shared by completeRow (a row the caller left col out of)
// and AlterAddColumn (backfilling col into every existing row).
func fillCellFor(col record.ColumnDescriptor) (record.ColumnData, error) {
	switch {
	case col.HasDefault:
		cell := col.DefaultValue
		cell.Ordinal = col.Ordinal
		cell.IsDefault = true
		return cell, nil
	case col.CanBeNull:
		return record.NewNull(col.Ordinal, col.Type, false), nil
	default:
		return record.ColumnData{}, relerr.New(relerr.Constraint, "engine.fillCellFor", "missing value for NOT NULL column: "+col.Name)
	}
}

// insertIntoIndexes adds ptr to the clustered index under rec's primary
// key and to every secondary index under its own indexed column,
// rolling the record back out of any already-updated structure if a
// later index rejects it (duplicate primary key is checked before this
// is ever called, so only a secondary index's own bookkeeping can fail
// here in practice).
func (ts *tableState) insertIntoIndexes(rec record.Record, ptr recordPtr) error {
	pkOrds := ts.primaryKeyOrdinals()
	pkKey := buildKey(ts.handle, rec, pkOrds)
	// A table with no primary key (AlterDropPrimaryKey) clusters every
	// row under the same empty key; unique must then be false or the
	// second row in would be rejected as a duplicate of the first.
	if err := ts.clustered.Insert(pkKey, ptr, len(pkOrds) > 0); err != nil {
		return err
	}
	var done []uint32
	for ord, tr := range ts.secondary {
		skey := buildKey(ts.handle, rec, []uint32{ord})
		if err := tr.Insert(skey, ptr, false); err != nil {
			for _, d := range done {
				_ = ts.secondary[d].Delete(buildKey(ts.handle, rec, []uint32{d}), ptr)
			}
			_ = ts.clustered.Delete(pkKey, ptr)
			return err
		}
		done = append(done, ord)
	}
	return nil
}

func (ts *tableState) removeFromIndexes(rec record.Record, ptr recordPtr) error {
	pkKey := buildKey(ts.handle, rec, ts.primaryKeyOrdinals())
	if err := ts.clustered.Delete(pkKey, ptr); err != nil {
		return err
	}
	for ord, tr := range ts.secondary {
		skey := buildKey(ts.handle, rec, []uint32{ord})
		_ = tr.Delete(skey, ptr) // secondary entries are rebuildable bookkeeping, never block a delete
	}
	return nil
}

// Insert validates, applies defaults, enforces the primary-key and
// foreign-key constraints, and writes each row (spec.md §4.9
// "Insertion"; SPEC_FULL §4.13 dispatch table).
func (c *Context) Insert(tableName string, rows []record.Record) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.Insert", "no such table: "+tableName)
	}

	for _, row := range rows {
		complete, err := ts.completeRow(row)
		if err != nil {
			return err
		}
		pkOrds := ts.primaryKeyOrdinals()
		if len(pkOrds) > 0 {
			pkKey := buildKey(ts.handle, complete, pkOrds)
			if _, found := ts.clustered.Get(pkKey); found {
				return relerr.New(relerr.Constraint, "engine.Insert", "duplicate primary key in table "+tableName)
			}
		}
		if err := c.checkForeignKeysOnWrite(db, ts, complete); err != nil {
			return err
		}

		ptr := ts.handle.InsertRecord(complete)
		if err := ts.insertIntoIndexes(complete, ptr); err != nil {
			ts.handle.DeleteRecord(ptr)
			return err
		}
		ts.persistHeader()
	}
	return nil
}

// Select returns every row of tableName for which where returns true
// (or every row, if where is nil). Predicate evaluation, projection,
// and joins are the external executor's job (spec §1 Non-goals) — the
// engine only walks rows via the clustered index and hands back the
// ones the caller's predicate selects.
func (c *Context) Select(tableName string, where func(record.Record) bool) ([]record.Record, error) {
	db, err := c.activeDatabase()
	if err != nil {
		return nil, err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return nil, relerr.New(relerr.Catalog, "engine.Select", "no such table: "+tableName)
	}
	var out []record.Record
	for _, ptr := range ts.clustered.All() {
		rec := ts.handle.GetRecord(ptr)
		if where == nil || where(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes every row selected by where (spec.md §4.9 "Deletion";
// SPEC_FULL §4.13), rejecting any row a foreign key still references.
func (c *Context) Delete(tableName string, where func(record.Record) bool) (int, error) {
	db, err := c.activeDatabase()
	if err != nil {
		return 0, err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return 0, relerr.New(relerr.Catalog, "engine.Delete", "no such table: "+tableName)
	}

	type victim struct {
		ptr recordPtr
		rec record.Record
	}
	var victims []victim
	for _, ptr := range ts.clustered.All() {
		rec := ts.handle.GetRecord(ptr)
		if where == nil || where(rec) {
			victims = append(victims, victim{ptr: ptr, rec: rec})
		}
	}

	for _, v := range victims {
		if err := c.checkForeignKeysOnDelete(db, ts, v.rec); err != nil {
			return 0, err
		}
	}
	for _, v := range victims {
		if err := ts.removeFromIndexes(v.rec, v.ptr); err != nil {
			return 0, err
		}
		ts.handle.DeleteRecord(v.ptr)
	}
	ts.persistHeader()
	return len(victims), nil
}

// Update applies set (new values, by ordinal) to every row selected by
// where. Because a changed primary-key column moves a row's position
// in the clustered index, an update is modeled as a remove-then-insert
// under the new key rather than an in-place index rewrite.
func (c *Context) Update(tableName string, where func(record.Record) bool, set map[uint32]record.ColumnData) (int, error) {
	db, err := c.activeDatabase()
	if err != nil {
		return 0, err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return 0, relerr.New(relerr.Catalog, "engine.Update", "no such table: "+tableName)
	}

	type victim struct {
		ptr recordPtr
		old record.Record
		new record.Record
	}
	var victims []victim
	for _, ptr := range ts.clustered.All() {
		old := ts.handle.GetRecord(ptr)
		if where != nil && !where(old) {
			continue
		}
		newCells := make([]record.ColumnData, len(old.Cells))
		copy(newCells, old.Cells)
		for i, c := range newCells {
			if replacement, ok := set[c.Ordinal]; ok {
				newCells[i] = replacement
			}
		}
		newRec, err := ts.completeRow(record.Record{Cells: newCells})
		if err != nil {
			return 0, err
		}
		victims = append(victims, victim{ptr: ptr, old: old, new: newRec})
	}

	for _, v := range victims {
		if err := c.checkForeignKeysOnWrite(db, ts, v.new); err != nil {
			return 0, err
		}
		pkOrds := ts.primaryKeyOrdinals()
		if len(pkOrds) > 0 {
			oldKey := buildKey(ts.handle, v.old, pkOrds)
			newKey := buildKey(ts.handle, v.new, pkOrds)
			if string(oldKey) != string(newKey) {
				if _, found := ts.clustered.Get(newKey); found {
					return 0, relerr.New(relerr.Constraint, "engine.Update", "update would duplicate an existing primary key")
				}
				// The row is leaving its old primary key behind; any other
				// table's foreign key still pointing at that old value
				// would otherwise be silently orphaned.
				if err := c.checkForeignKeysOnDelete(db, ts, v.old); err != nil {
					return 0, err
				}
			}
		}
	}

	for _, v := range victims {
		if err := ts.removeFromIndexes(v.old, v.ptr); err != nil {
			return 0, err
		}
		newPtr := ts.handle.UpdateRecord(v.ptr, v.new)
		if err := ts.insertIntoIndexes(v.new, newPtr); err != nil {
			return 0, err
		}
	}
	ts.persistHeader()
	return len(victims), nil
}
