package engine

import (
	"os"

	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
)

// This file implements the Alter family (spec.md §6 "Alter"; SPEC_FULL
// §4.13): structural changes to a table already holding rows.
// original_source/src/sm/system_manager.rs never implemented the
// methods its own executor dispatches to for these statements, so
// there was no original behavior to mirror for the edge cases below —
// each is instead grounded in this engine's own existing patterns
// (CreateIndex's scan-and-rebuild, Update's remove-then-reinsert under
// a new key) and recorded as an explicit decision in DESIGN.md.

func (ts *tableState) columnByOrdinal(ord uint32) (record.ColumnDescriptor, bool) {
	for _, c := range ts.columns {
		if c.Ordinal == ord {
			return c, true
		}
	}
	return record.ColumnDescriptor{}, false
}

// rebuildClustered builds a fresh clustered tree over ts's current rows
// keyed by ordinals, validating uniqueness and NOT NULL the same way
// Insert does but without mutating ts — callers only swap it in once
// every other check for their operation has also passed. An empty
// ordinals list (no primary key) clusters every row under one shared
// key with uniqueness turned off, the same convention insertIntoIndexes
// uses. The tree nodes backing ts's previous clustered index are left
// as orphaned allocator chains; nothing currently reclaims an entire
// discarded tree at once (see DESIGN.md).
func (ts *tableState) rebuildClustered(ordinals []uint32) (*btreeindex.Tree, error) {
	tr := btreeindex.NewTree(ts.handle, alloc.Null, btreeindex.DefaultFanout)
	unique := len(ordinals) > 0
	for _, ptr := range ts.clustered.All() {
		rec := ts.handle.GetRecord(ptr)
		if unique {
			byOrd := cellByOrdinal(rec)
			for _, ord := range ordinals {
				if byOrd[ord].IsNull {
					return nil, relerr.New(relerr.Constraint, "engine.rebuildClustered", "primary key column cannot contain NULL")
				}
			}
		}
		key := buildKey(ts.handle, rec, ordinals)
		if err := tr.Insert(key, ptr, unique); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// AlterAddColumn appends a new column to tableName, backfilling every
// existing row with its default (or NULL) value.
func (c *Context) AlterAddColumn(tableName string, col record.ColumnDescriptor) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterAddColumn", "no such table: "+tableName)
	}
	if _, exists := ts.column(col.Name); exists {
		return relerr.New(relerr.Catalog, "engine.AlterAddColumn", "duplicate column name: "+col.Name)
	}
	if col.IsPrimary || col.IsForeign {
		return relerr.New(relerr.Catalog, "engine.AlterAddColumn", "use AlterAddPrimaryKey/AlterAddForeignKey to add a constraint column: "+col.Name)
	}

	rows := ts.clustered.All()
	if !col.CanBeNull && !col.HasDefault && len(rows) > 0 {
		return relerr.New(relerr.Constraint, "engine.AlterAddColumn", "cannot add NOT NULL column without a default to a non-empty table: "+col.Name)
	}
	col.Ordinal = uint32(len(ts.columns))
	fill, err := fillCellFor(col)
	if err != nil {
		return err
	}

	for _, ptr := range rows {
		old := ts.handle.GetRecord(ptr)
		newCells := make([]record.ColumnData, len(old.Cells)+1)
		copy(newCells, old.Cells)
		newCells[len(old.Cells)] = fill
		newRec := record.Record{Cells: newCells}
		if err := ts.removeFromIndexes(old, ptr); err != nil {
			return err
		}
		newPtr := ts.handle.UpdateRecord(ptr, newRec)
		if err := ts.insertIntoIndexes(newRec, newPtr); err != nil {
			return err
		}
	}

	colPtr := ts.handle.InsertColumnDescriptor(col)
	ts.columns = append(ts.columns, col)
	ts.columnPtrs = append(ts.columnPtrs, colPtr)
	ts.persistHeader()
	return nil
}

// AlterDropColumn removes a column, renumbering the ordinals of every
// column that followed it. Every existing row's cells, the secondary
// index map's ordinal keys, and the renumbered descriptors are all
// rewritten to match. Rows are removed from and reinserted into their
// indexes using, respectively, the old and the new ordinals, so the
// ordinal shift below happens strictly between those two passes.
func (c *Context) AlterDropColumn(tableName, columnName string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterDropColumn", "no such table: "+tableName)
	}
	idx, ok := ts.columnIndex(columnName)
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterDropColumn", "no such column: "+columnName)
	}
	if len(ts.columns) == 1 {
		return relerr.New(relerr.Catalog, "engine.AlterDropColumn", "table must have at least one column")
	}
	col := ts.columns[idx]
	if col.IsPrimary {
		return relerr.New(relerr.Catalog, "engine.AlterDropColumn", "drop the primary key first: "+columnName)
	}
	if col.IsForeign {
		return relerr.New(relerr.Catalog, "engine.AlterDropColumn", "drop the foreign key first: "+columnName)
	}

	type rewritten struct {
		ptr recordPtr
		rec record.Record
	}
	var pending []rewritten
	for _, ptr := range ts.clustered.All() {
		old := ts.handle.GetRecord(ptr)
		if err := ts.removeFromIndexes(old, ptr); err != nil {
			return err
		}
		byOrd := cellByOrdinal(old)
		newCells := make([]record.ColumnData, 0, len(ts.columns)-1)
		for i, cd := range ts.columns {
			if i == idx {
				continue
			}
			cell := byOrd[cd.Ordinal]
			newOrd := uint32(i)
			if i > idx {
				newOrd = uint32(i - 1)
			}
			cell.Ordinal = newOrd
			newCells = append(newCells, cell)
		}
		newRec := record.Record{Cells: newCells}
		newPtr := ts.handle.UpdateRecord(ptr, newRec)
		pending = append(pending, rewritten{ptr: newPtr, rec: newRec})
	}

	ts.handle.DeleteColumnDescriptor(ts.columnPtrs[idx])
	ts.columns = append(ts.columns[:idx], ts.columns[idx+1:]...)
	ts.columnPtrs = append(ts.columnPtrs[:idx], ts.columnPtrs[idx+1:]...)
	for i := idx; i < len(ts.columns); i++ {
		ts.columns[i].Ordinal = uint32(i)
		ts.columnPtrs[i] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[i], ts.columns[i])
	}
	newSecondary := make(map[uint32]*btreeindex.Tree, len(ts.secondary))
	for ord, tr := range ts.secondary {
		switch {
		case ord == col.Ordinal:
			continue // the dropped column's own index goes with it
		case ord > col.Ordinal:
			newSecondary[ord-1] = tr
		default:
			newSecondary[ord] = tr
		}
	}
	ts.secondary = newSecondary

	for _, rw := range pending {
		if err := ts.insertIntoIndexes(rw.rec, rw.ptr); err != nil {
			return err
		}
	}
	ts.persistHeader()
	return nil
}

// AlterChangeColumn replaces a column's name, nullability, and default
// while preserving whatever primary-key, index, or foreign-key
// constraint it already carries. Changing Type is rejected: with no
// original behavior to mirror for converting existing rows under a
// retyped column, this module declines to guess at one (see
// DESIGN.md).
func (c *Context) AlterChangeColumn(tableName, columnName string, newCol record.ColumnDescriptor) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterChangeColumn", "no such table: "+tableName)
	}
	idx, ok := ts.columnIndex(columnName)
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterChangeColumn", "no such column: "+columnName)
	}
	old := ts.columns[idx]
	if newCol.Type != old.Type {
		return relerr.New(relerr.Catalog, "engine.AlterChangeColumn", "changing a column's type is not supported: "+columnName)
	}
	if newCol.Name != old.Name {
		if _, exists := ts.column(newCol.Name); exists {
			return relerr.New(relerr.Catalog, "engine.AlterChangeColumn", "duplicate column name: "+newCol.Name)
		}
	}
	if !newCol.CanBeNull && old.CanBeNull {
		for _, ptr := range ts.clustered.All() {
			rec := ts.handle.GetRecord(ptr)
			if cellByOrdinal(rec)[old.Ordinal].IsNull {
				return relerr.New(relerr.Constraint, "engine.AlterChangeColumn", "column has NULL values, cannot make NOT NULL: "+columnName)
			}
		}
	}

	updated := newCol
	updated.Ordinal = old.Ordinal
	updated.IsPrimary = old.IsPrimary
	updated.IsForeign = old.IsForeign
	updated.ForeignTableName = old.ForeignTableName
	updated.HasIndex = old.HasIndex

	ts.columnPtrs[idx] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[idx], updated)
	ts.columns[idx] = updated
	ts.persistHeader()
	return nil
}

// AlterRenameTable renames an open table's file and its catalog entry.
// Renaming the underlying path does not invalidate the file's already
// open descriptor (internal/pagefile.Manager keys files by fid, not
// path), so no table file needs to be closed and reopened.
func (c *Context) AlterRenameTable(oldName, newName string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[oldName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterRenameTable", "no such table: "+oldName)
	}
	if _, exists := db.tables[newName]; exists {
		return relerr.New(relerr.Catalog, "engine.AlterRenameTable", "table already exists: "+newName)
	}
	if err := os.Rename(tableFilePath(db.dir, oldName), tableFilePath(db.dir, newName)); err != nil {
		return relerr.Wrap(relerr.Io, "engine.AlterRenameTable", err)
	}
	delete(db.tables, oldName)
	ts.name = newName
	db.tables[newName] = ts

	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	return writeCatalog(db.dir, names)
}

// AlterAddPrimaryKey declares columnNames as tableName's primary key,
// rebuilding the clustered index over them (mirroring CreateIndex's
// scan-and-reinsert pattern, applied to the clustered tree itself
// instead of a secondary one). Only adding a primary key to a table
// that doesn't already have one is supported; drop the existing one
// first to replace it.
func (c *Context) AlterAddPrimaryKey(tableName string, columnNames []string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterAddPrimaryKey", "no such table: "+tableName)
	}
	if len(columnNames) == 0 {
		return relerr.New(relerr.Catalog, "engine.AlterAddPrimaryKey", "primary key must name at least one column")
	}
	if len(ts.primaryKeyOrdinals()) > 0 {
		return relerr.New(relerr.Catalog, "engine.AlterAddPrimaryKey", "table already has a primary key: "+tableName)
	}

	idxs := make([]int, len(columnNames))
	ords := make([]uint32, len(columnNames))
	for i, name := range columnNames {
		idx, ok := ts.columnIndex(name)
		if !ok {
			return relerr.New(relerr.Catalog, "engine.AlterAddPrimaryKey", "no such column: "+name)
		}
		idxs[i] = idx
		ords[i] = ts.columns[idx].Ordinal
	}

	tr, err := ts.rebuildClustered(ords)
	if err != nil {
		return err
	}
	for _, idx := range idxs {
		col := ts.columns[idx]
		col.IsPrimary = true
		col.CanBeNull = false
		ts.columnPtrs[idx] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[idx], col)
		ts.columns[idx] = col
	}
	ts.clustered = tr
	ts.persistHeader()
	return nil
}

// AlterDropPrimaryKey clears tableName's primary key and rebuilds the
// clustered index as a non-unique tree over no columns at all (the
// same empty-key, unique=false convention insertIntoIndexes already
// uses for a table with no primary key).
func (c *Context) AlterDropPrimaryKey(tableName string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterDropPrimaryKey", "no such table: "+tableName)
	}
	if len(ts.primaryKeyOrdinals()) == 0 {
		return relerr.New(relerr.Catalog, "engine.AlterDropPrimaryKey", "table has no primary key: "+tableName)
	}
	for otherName, other := range db.tables {
		for _, oc := range other.columns {
			if oc.IsForeign && oc.ForeignTableName == ts.name {
				return relerr.New(relerr.Constraint, "engine.AlterDropPrimaryKey", "table is referenced by a foreign key in "+otherName+", drop it first")
			}
		}
	}

	tr, err := ts.rebuildClustered(nil)
	if err != nil {
		return err
	}
	for i, col := range ts.columns {
		if !col.IsPrimary {
			continue
		}
		col.IsPrimary = false
		ts.columnPtrs[i] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[i], col)
		ts.columns[i] = col
	}
	ts.clustered = tr
	ts.persistHeader()
	return nil
}

// AlterAddForeignKey declares columnName as a foreign key against
// foreignTable's primary key, validating every existing row the same
// way checkForeignKeysOnWrite validates a new one before the
// constraint is allowed to take effect.
func (c *Context) AlterAddForeignKey(tableName, columnName, foreignTable string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterAddForeignKey", "no such table: "+tableName)
	}
	idx, ok := ts.columnIndex(columnName)
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterAddForeignKey", "no such column: "+columnName)
	}
	col := ts.columns[idx]
	if col.IsForeign {
		return relerr.New(relerr.Catalog, "engine.AlterAddForeignKey", "column already has a foreign key: "+columnName)
	}
	target, ok := db.tables[foreignTable]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterAddForeignKey", "no such table: "+foreignTable)
	}
	pkOrds := target.primaryKeyOrdinals()
	if len(pkOrds) != 1 {
		return relerr.New(relerr.Catalog, "engine.AlterAddForeignKey", "foreign key target "+foreignTable+" has no single-column primary key")
	}
	targetCol, ok := target.columnByOrdinal(pkOrds[0])
	if !ok || targetCol.Type != col.Type {
		return relerr.New(relerr.Catalog, "engine.AlterAddForeignKey", "foreign key column type does not match "+foreignTable)
	}

	for _, ptr := range ts.clustered.All() {
		rec := ts.handle.GetRecord(ptr)
		cell := cellByOrdinal(rec)[col.Ordinal]
		if cell.IsNull {
			continue
		}
		key := btreeindex.EncodeKey([]btreeindex.KeyPart{keyPartFor(ts.handle, cell)})
		if _, found := target.clustered.Get(key); !found {
			return relerr.New(relerr.Constraint, "engine.AlterAddForeignKey", "existing row violates new foreign key against "+foreignTable)
		}
	}

	col.IsForeign = true
	col.ForeignTableName = foreignTable
	ts.columnPtrs[idx] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[idx], col)
	ts.columns[idx] = col
	ts.persistHeader()
	return nil
}

// AlterDropForeignKey clears a column's foreign key constraint.
func (c *Context) AlterDropForeignKey(tableName, columnName string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterDropForeignKey", "no such table: "+tableName)
	}
	idx, ok := ts.columnIndex(columnName)
	if !ok {
		return relerr.New(relerr.Catalog, "engine.AlterDropForeignKey", "no such column: "+columnName)
	}
	col := ts.columns[idx]
	if !col.IsForeign {
		return relerr.New(relerr.Catalog, "engine.AlterDropForeignKey", "column has no foreign key: "+columnName)
	}
	col.IsForeign = false
	col.ForeignTableName = ""
	ts.columnPtrs[idx] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[idx], col)
	ts.columns[idx] = col
	ts.persistHeader()
	return nil
}
