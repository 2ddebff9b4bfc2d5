// Package engine implements the thin statement-dispatch layer
// described in SPEC_FULL.md §4.13: an explicit Context owning the
// process-wide buffer pool and open table handles, accepting
// pre-built Statement values (standing in for an external parser's AST)
// and executing them against the core storage packages. It never
// parses SQL text itself.
package engine

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/applog"
	"github.com/relcore/engine/internal/btreeindex"
	"github.com/relcore/engine/internal/bufpool"
	"github.com/relcore/engine/internal/config"
	"github.com/relcore/engine/internal/pagefile"
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
	"github.com/relcore/engine/internal/table"
)

// recordPtr names the allocator pointer type for readability at call
// sites in the DML and index-maintenance code.
type recordPtr = alloc.SlotPtr

// tableState is every in-memory structure a Context needs to serve
// statements against one open table: its handle, resolved schema, and
// the clustered/secondary B-trees built over that schema.
type tableState struct {
	name       string
	fid        int
	handle     *table.Handle
	columns    []record.ColumnDescriptor // ordinal order
	columnPtrs []alloc.SlotPtr
	clustered  *btreeindex.Tree
	secondary  map[uint32]*btreeindex.Tree // keyed by indexed column's ordinal
}

// databaseState tracks one open database directory: every table file
// it currently knows about, opened eagerly per SPEC_FULL §4.13.
type databaseState struct {
	dir    string
	tables map[string]*tableState
}

// Context is the explicit engine context threaded through statement
// dispatch (spec.md §5 "process-wide singleton owned by the Record
// Manager", generalized here to every resource a statement can touch):
// one shared buffer pool, one file manager, the set of open databases,
// and the logger/config fixed at construction.
type Context struct {
	cfg   config.Config
	log   zerolog.Logger
	files *pagefile.Manager
	pool  *bufpool.Pool

	dbs      map[string]*databaseState
	activeDB string
}

// New builds a Context from cfg, creating the data root directory if
// it does not already exist.
func New(cfg config.Config, log zerolog.Logger) (*Context, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, relerr.Wrap(relerr.Io, "engine.New", err)
	}
	files := pagefile.New()
	return &Context{
		cfg:   cfg,
		log:   log,
		files: files,
		pool:  bufpool.New(files, cfg.BufferPoolFrames),
		dbs:   make(map[string]*databaseState),
	}, nil
}

// NewWithDefaultLogger is a convenience constructor for callers (tests,
// small tools) that don't need a specific logger.
func NewWithDefaultLogger(cfg config.Config) (*Context, error) {
	logger, err := applog.Stderr(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return New(cfg, logger)
}

func (c *Context) dbDir(name string) string { return filepath.Join(c.cfg.DataDir, name) }

// ShowDatabases lists database directories under the data root.
func (c *Context) ShowDatabases() ([]string, error) {
	entries, err := os.ReadDir(c.cfg.DataDir)
	if err != nil {
		return nil, relerr.Wrap(relerr.Io, "engine.ShowDatabases", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateDatabase makes a new database directory.
func (c *Context) CreateDatabase(name string) error {
	dir := c.dbDir(name)
	if _, err := os.Stat(dir); err == nil {
		return relerr.New(relerr.Catalog, "engine.CreateDatabase", "database already exists: "+name)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return relerr.Wrap(relerr.Io, "engine.CreateDatabase", err)
	}
	return nil
}

// DropDatabase closes the database if open and removes its directory.
func (c *Context) DropDatabase(name string) error {
	if db, ok := c.dbs[name]; ok {
		c.closeDatabase(db)
		delete(c.dbs, name)
		if c.activeDB == name {
			c.activeDB = ""
		}
	}
	if err := os.RemoveAll(c.dbDir(name)); err != nil {
		return relerr.Wrap(relerr.Io, "engine.DropDatabase", err)
	}
	return nil
}

// UseDatabase opens (if not already open) and switches the active
// database used to resolve unqualified table references. Opening reads
// the per-database catalog file and opens every table file it names
// (SPEC_FULL §4.13).
func (c *Context) UseDatabase(name string) error {
	if _, ok := c.dbs[name]; !ok {
		if err := c.openDatabase(name); err != nil {
			return err
		}
	}
	c.activeDB = name
	return nil
}

func (c *Context) openDatabase(name string) error {
	dir := c.dbDir(name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return relerr.New(relerr.Catalog, "engine.openDatabase", "no such database: "+name)
	}
	names, err := readCatalog(dir)
	if err != nil {
		return err
	}
	db := &databaseState{dir: dir, tables: make(map[string]*tableState)}
	for _, tn := range names {
		ts, err := c.openTableFile(dir, tn)
		if err != nil {
			return err
		}
		db.tables[tn] = ts
	}
	c.dbs[name] = db
	return nil
}

func (c *Context) closeDatabase(db *databaseState) {
	for _, ts := range db.tables {
		ts.handle.Close(c.pool, ts.fid)
		c.files.Close(ts.fid)
	}
}

// Close flushes and releases every open database.
func (c *Context) Close() {
	for _, db := range c.dbs {
		c.closeDatabase(db)
	}
	c.dbs = make(map[string]*databaseState)
	c.pool.Close()
}

func (c *Context) activeDatabase() (*databaseState, error) {
	if c.activeDB == "" {
		return nil, relerr.New(relerr.Catalog, "engine.activeDatabase", "no database selected")
	}
	return c.dbs[c.activeDB], nil
}

// ShowTables lists the tables known to the active database.
func (c *Context) ShowTables() ([]string, error) {
	db, err := c.activeDatabase()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
