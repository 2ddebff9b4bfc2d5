package engine

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/relerr"
)

func (ts *tableState) columnIndex(name string) (int, bool) {
	for i, c := range ts.columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// CreateIndex builds a new secondary B-tree over columnName by scanning
// the clustered index and reinserting every row's key (SPEC_FULL
// §4.14), then flips the column descriptor's has_index flag.
func (c *Context) CreateIndex(tableName, columnName string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.CreateIndex", "no such table: "+tableName)
	}
	idx, ok := ts.columnIndex(columnName)
	if !ok {
		return relerr.New(relerr.Catalog, "engine.CreateIndex", "no such column: "+columnName)
	}
	col := ts.columns[idx]
	if col.IsPrimary {
		return relerr.New(relerr.Catalog, "engine.CreateIndex", "column is already the clustered primary key: "+columnName)
	}
	if _, exists := ts.secondary[col.Ordinal]; exists {
		return relerr.New(relerr.Catalog, "engine.CreateIndex", "index already exists on column: "+columnName)
	}

	tr := btreeindex.NewTree(ts.handle, alloc.Null, btreeindex.DefaultFanout)
	for _, ptr := range ts.clustered.All() {
		rec := ts.handle.GetRecord(ptr)
		key := buildKey(ts.handle, rec, []uint32{col.Ordinal})
		if err := tr.Insert(key, ptr, false); err != nil {
			return err
		}
	}
	ts.secondary[col.Ordinal] = tr

	col.HasIndex = true
	ts.columnPtrs[idx] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[idx], col)
	ts.columns[idx] = col
	ts.persistHeader()
	return nil
}

// DropIndex removes a secondary index and clears the column's
// has_index flag.
func (c *Context) DropIndex(tableName, columnName string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.DropIndex", "no such table: "+tableName)
	}
	idx, ok := ts.columnIndex(columnName)
	if !ok {
		return relerr.New(relerr.Catalog, "engine.DropIndex", "no such column: "+columnName)
	}
	col := ts.columns[idx]
	if _, exists := ts.secondary[col.Ordinal]; !exists {
		return relerr.New(relerr.Catalog, "engine.DropIndex", "no index on column: "+columnName)
	}
	delete(ts.secondary, col.Ordinal)

	col.HasIndex = false
	ts.columnPtrs[idx] = ts.handle.UpdateColumnDescriptor(ts.columnPtrs[idx], col)
	ts.columns[idx] = col
	ts.persistHeader()
	return nil
}
