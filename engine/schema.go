package engine

import (
	"os"
	"path/filepath"

	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
	"github.com/relcore/engine/internal/table"
)

func tableFilePath(dbDir, name string) string {
	return filepath.Join(dbDir, name+".tbl")
}

// openTableFile opens an existing table file and rebuilds its in-memory
// schema and B-trees from the header written by CreateTable.
func (c *Context) openTableFile(dbDir, name string) (*tableState, error) {
	fid := c.files.Open(tableFilePath(dbDir, name))
	h := table.Open(c.pool, fid)

	hdr, err := readTableHeader(h)
	if err != nil {
		return nil, err
	}
	columns := make([]record.ColumnDescriptor, len(hdr.columnPtrs))
	for i, ptr := range hdr.columnPtrs {
		columns[i] = h.GetColumnDescriptor(ptr)
	}
	secondary := make(map[uint32]*btreeindex.Tree, len(hdr.secondary))
	for _, s := range hdr.secondary {
		secondary[s.ordinal] = btreeindex.NewTree(h, s.root, int(s.fanout))
	}
	return &tableState{
		name:       name,
		fid:        fid,
		handle:     h,
		columns:    columns,
		columnPtrs: hdr.columnPtrs,
		clustered:  btreeindex.NewTree(h, hdr.clusteredRoot, int(hdr.clusteredFanout)),
		secondary:  secondary,
	}, nil
}

// persistHeader writes ts's current root pointers and fan-outs back
// into its table file's header (called after any operation that may
// have changed a clustered or secondary tree's root, per spec.md §4.9:
// "the root pointer is rewritten in the Table Header whenever the tree
// height changes").
func (ts *tableState) persistHeader() {
	secondary := make([]secondaryEntry, 0, len(ts.secondary))
	for ord, tr := range ts.secondary {
		secondary = append(secondary, secondaryEntry{ordinal: ord, root: tr.Root(), fanout: btreeindex.DefaultFanout})
	}
	writeTableHeader(ts.handle, tableHeader{
		columnPtrs:      ts.columnPtrs,
		clusteredRoot:   ts.clustered.Root(),
		clusteredFanout: btreeindex.DefaultFanout,
		secondary:       secondary,
	})
}

// primaryKeyOrdinals returns the ordinals of ts's primary key columns,
// in ordinal order — the composite key the clustered tree is keyed by.
func (ts *tableState) primaryKeyOrdinals() []uint32 {
	var ords []uint32
	for _, col := range ts.columns {
		if col.IsPrimary {
			ords = append(ords, col.Ordinal)
		}
	}
	return ords
}

// InsertTableString allocates s into tableName's own byte-string
// storage, returning the (page, slot) pointer a Str-typed ColumnData
// cell must carry. Callers build that cell themselves (spec.md §4.7:
// Str cells reference an allocator chain, they don't embed the text).
func (c *Context) InsertTableString(tableName, s string) (alloc.SlotPtr, error) {
	db, err := c.activeDatabase()
	if err != nil {
		return alloc.Null, err
	}
	ts, ok := db.tables[tableName]
	if !ok {
		return alloc.Null, relerr.New(relerr.Catalog, "engine.InsertTableString", "no such table: "+tableName)
	}
	return ts.handle.InsertString(s), nil
}

func (ts *tableState) column(name string) (record.ColumnDescriptor, bool) {
	for _, c := range ts.columns {
		if c.Name == name {
			return c, true
		}
	}
	return record.ColumnDescriptor{}, false
}

// CreateTable validates and creates a new table in the active
// database, writing its column descriptors and an empty clustered
// index into a fresh table file (SPEC_FULL §4.13).
func (c *Context) CreateTable(name string, columns []record.ColumnDescriptor) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	if _, exists := db.tables[name]; exists {
		return relerr.New(relerr.Catalog, "engine.CreateTable", "table already exists: "+name)
	}
	if err := validateColumns(columns); err != nil {
		return err
	}

	assigned := make([]record.ColumnDescriptor, len(columns))
	copy(assigned, columns)
	for i := range assigned {
		assigned[i].Ordinal = uint32(i)
	}

	fid := c.files.Open(tableFilePath(db.dir, name))
	h := table.Open(c.pool, fid)

	columnPtrs := make([]alloc.SlotPtr, len(assigned))
	secondary := make(map[uint32]*btreeindex.Tree)
	secEntries := make([]secondaryEntry, 0)
	for i, col := range assigned {
		columnPtrs[i] = h.InsertColumnDescriptor(col)
		if col.HasIndex && !col.IsPrimary {
			tr := btreeindex.NewTree(h, alloc.Null, btreeindex.DefaultFanout)
			secondary[col.Ordinal] = tr
			secEntries = append(secEntries, secondaryEntry{ordinal: col.Ordinal, root: alloc.Null, fanout: btreeindex.DefaultFanout})
		}
	}

	writeTableHeader(h, tableHeader{
		columnPtrs:      columnPtrs,
		clusteredRoot:   alloc.Null,
		clusteredFanout: btreeindex.DefaultFanout,
		secondary:       secEntries,
	})

	ts := &tableState{
		name:       name,
		fid:        fid,
		handle:     h,
		columns:    assigned,
		columnPtrs: columnPtrs,
		clustered:  btreeindex.NewTree(h, alloc.Null, btreeindex.DefaultFanout),
		secondary:  secondary,
	}
	db.tables[name] = ts

	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	return writeCatalog(db.dir, names)
}

func validateColumns(columns []record.ColumnDescriptor) error {
	if len(columns) == 0 {
		return relerr.New(relerr.Catalog, "engine.validateColumns", "table must have at least one column")
	}
	seen := make(map[string]bool, len(columns))
	hasPrimary := false
	for _, col := range columns {
		if seen[col.Name] {
			return relerr.New(relerr.Catalog, "engine.validateColumns", "duplicate column name: "+col.Name)
		}
		seen[col.Name] = true
		if col.IsPrimary {
			hasPrimary = true
		}
	}
	if !hasPrimary {
		return relerr.New(relerr.Catalog, "engine.validateColumns", "table must define a primary key")
	}
	return nil
}

// DropTable closes and removes a table's file and drops it from the
// active database's catalog.
func (c *Context) DropTable(name string) error {
	db, err := c.activeDatabase()
	if err != nil {
		return err
	}
	ts, ok := db.tables[name]
	if !ok {
		return relerr.New(relerr.Catalog, "engine.DropTable", "no such table: "+name)
	}
	ts.handle.Close(c.pool, ts.fid)
	c.files.Close(ts.fid)
	delete(db.tables, name)
	if err := os.Remove(tableFilePath(db.dir, name)); err != nil {
		return relerr.Wrap(relerr.Io, "engine.DropTable", err)
	}

	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	return writeCatalog(db.dir, names)
}

// DescRow is one row of a DESC <table> result (spec.md §6).
type DescRow struct {
	Field      string
	Type       string
	Null       bool
	Key        string // "PRI", "UNI" (has_index), or ""
	HasDefault bool
}

// Desc returns the column descriptors of a table as DescRows.
func (c *Context) Desc(name string) ([]DescRow, error) {
	db, err := c.activeDatabase()
	if err != nil {
		return nil, err
	}
	ts, ok := db.tables[name]
	if !ok {
		return nil, relerr.New(relerr.Catalog, "engine.Desc", "no such table: "+name)
	}
	rows := make([]DescRow, len(ts.columns))
	for i, col := range ts.columns {
		key := ""
		switch {
		case col.IsPrimary:
			key = "PRI"
		case col.HasIndex:
			key = "UNI"
		}
		rows[i] = DescRow{
			Field:      col.Name,
			Type:       col.Type.String(),
			Null:       col.CanBeNull,
			Key:        key,
			HasDefault: col.HasDefault,
		}
	}
	return rows, nil
}
