package engine

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/engine/common/testutil"
	"github.com/relcore/engine/internal/applog"
	"github.com/relcore/engine/internal/config"
	"github.com/relcore/engine/internal/record"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	logger, err := applog.New(io.Discard, "error")
	require.NoError(t, err)
	cfg := config.Config{DataDir: testutil.TempDir(t), BufferPoolFrames: 64, LogLevel: "error"}
	ctx, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func usersColumns() []record.ColumnDescriptor {
	return []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "name", Type: record.TypeStr, MaxLen: 64, CanBeNull: false},
		{Name: "age", Type: record.TypeInt, CanBeNull: true},
	}
}

func intCell(ordinal uint32, v int64) record.ColumnData { return record.NewInt(ordinal, v, false) }
func strCellForInsert(ts *tableState, ordinal uint32, s string) record.ColumnData {
	ptr := ts.handle.InsertString(s)
	return record.NewStr(ordinal, ptr.Page, ptr.Slot, false)
}

func setupUsersTable(t *testing.T, ctx *Context) *tableState {
	t.Helper()
	require.NoError(t, ctx.CreateDatabase("app"))
	require.NoError(t, ctx.UseDatabase("app"))
	require.NoError(t, ctx.CreateTable("users", usersColumns()))
	db, err := ctx.activeDatabase()
	require.NoError(t, err)
	return db.tables["users"]
}

func TestCreateDatabaseAndTableShowUp(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.CreateDatabase("app"))

	dbs, err := ctx.ShowDatabases()
	require.NoError(t, err)
	require.Contains(t, dbs, "app")

	require.NoError(t, ctx.UseDatabase("app"))
	require.NoError(t, ctx.CreateTable("users", usersColumns()))

	tables, err := ctx.ShowTables()
	require.NoError(t, err)
	require.Equal(t, []string{"users"}, tables)
}

func TestCreateTableRejectsMissingPrimaryKey(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.CreateDatabase("app"))
	require.NoError(t, ctx.UseDatabase("app"))

	cols := []record.ColumnDescriptor{{Name: "x", Type: record.TypeInt}}
	err := ctx.CreateTable("t", cols)
	require.Error(t, err)
}

func TestCreateTableRejectsDuplicateColumnNames(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.CreateDatabase("app"))
	require.NoError(t, ctx.UseDatabase("app"))

	cols := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "id", Type: record.TypeInt},
	}
	err := ctx.CreateTable("t", cols)
	require.Error(t, err)
}

func TestInsertThenSelectRoundtrips(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)

	row := record.Record{Cells: []record.ColumnData{
		intCell(0, 1),
		strCellForInsert(ts, 1, "Ada"),
		intCell(2, 36),
	}}
	require.NoError(t, ctx.Insert("users", []record.Record{row}))

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Cells[0].Int())
	require.Equal(t, int64(36), rows[0].Cells[2].Int())
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)

	row1 := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{row1}))

	row2 := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Bob"), intCell(2, 40)}}
	err := ctx.Insert("users", []record.Record{row2})
	require.Error(t, err)
}

func TestInsertRejectsNullAgainstNotNullColumn(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	_ = ts

	row := record.Record{Cells: []record.ColumnData{
		intCell(0, 1),
		record.NewNull(1, record.TypeStr, false),
		intCell(2, 36),
	}}
	err := ctx.Insert("users", []record.Record{row})
	require.Error(t, err)
}

func TestInsertFillsMissingNullableColumnWithNull(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)

	row := record.Record{Cells: []record.ColumnData{
		intCell(0, 1),
		strCellForInsert(ts, 1, "Ada"),
	}}
	require.NoError(t, ctx.Insert("users", []record.Record{row}))

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.True(t, rows[0].Cells[2].IsNull)
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)

	for i := int64(1); i <= 3; i++ {
		row := record.Record{Cells: []record.ColumnData{intCell(0, i), strCellForInsert(ts, 1, "x"), intCell(2, i * 10)}}
		require.NoError(t, ctx.Insert("users", []record.Record{row}))
	}

	n, err := ctx.Delete("users", func(r record.Record) bool { return r.Cells[0].Int() == 2 })
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestUpdateChangesNonKeyColumn(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	row := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{row}))

	n, err := ctx.Update("users", nil, map[uint32]record.ColumnData{2: intCell(2, 99)})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.Equal(t, int64(99), rows[0].Cells[2].Int())
}

func TestUpdateChangingPrimaryKeyMovesIndexEntry(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	row := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{row}))

	_, err := ctx.Update("users", nil, map[uint32]record.ColumnData{0: intCell(0, 2)})
	require.NoError(t, err)

	rows, err := ctx.Select("users", func(r record.Record) bool { return r.Cells[0].Int() == 2 })
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDescListsColumnsWithPrimaryKeyTag(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)

	rows, err := ctx.Desc("users")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "PRI", rows[0].Key)
}

func TestDropTableRemovesItFromCatalog(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)

	require.NoError(t, ctx.DropTable("users"))
	tables, err := ctx.ShowTables()
	require.NoError(t, err)
	require.Empty(t, tables)
}

func TestCreateAndDropSecondaryIndex(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	for i := int64(1); i <= 5; i++ {
		row := record.Record{Cells: []record.ColumnData{intCell(0, i), strCellForInsert(ts, 1, "x"), intCell(2, i)}}
		require.NoError(t, ctx.Insert("users", []record.Record{row}))
	}

	require.NoError(t, ctx.CreateIndex("users", "age"))
	db, err := ctx.activeDatabase()
	require.NoError(t, err)
	ageOrdinal := uint32(2)
	require.Contains(t, db.tables["users"].secondary, ageOrdinal)
	require.Len(t, db.tables["users"].secondary[ageOrdinal].All(), 5)

	require.NoError(t, ctx.DropIndex("users", "age"))
	require.NotContains(t, db.tables["users"].secondary, ageOrdinal)
}

func TestForeignKeyInsertRequiresExistingReferencedRow(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)

	ordersCols := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, IsForeign: true, ForeignTableName: "users"},
	}
	require.NoError(t, ctx.CreateTable("orders", ordersCols))

	badRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), intCell(1, 42)}}
	err := ctx.Insert("orders", []record.Record{badRow})
	require.Error(t, err)
}

func TestForeignKeyInsertSucceedsAfterReferencedRowExists(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	userRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{userRow}))

	ordersCols := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, IsForeign: true, ForeignTableName: "users"},
	}
	require.NoError(t, ctx.CreateTable("orders", ordersCols))

	goodRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), intCell(1, 1)}}
	require.NoError(t, ctx.Insert("orders", []record.Record{goodRow}))
}

func TestDeletingReferencedRowIsBlocked(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	userRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{userRow}))

	ordersCols := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, IsForeign: true, ForeignTableName: "users"},
	}
	require.NoError(t, ctx.CreateTable("orders", ordersCols))
	orderRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), intCell(1, 1)}}
	require.NoError(t, ctx.Insert("orders", []record.Record{orderRow}))

	_, err := ctx.Delete("users", func(r record.Record) bool { return r.Cells[0].Int() == 1 })
	require.Error(t, err)
}

func TestChangingReferencedPrimaryKeyIsBlocked(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	userRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{userRow}))

	ordersCols := []record.ColumnDescriptor{
		{Name: "id", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, IsForeign: true, ForeignTableName: "users"},
	}
	require.NoError(t, ctx.CreateTable("orders", ordersCols))
	orderRow := record.Record{Cells: []record.ColumnData{intCell(0, 1), intCell(1, 1)}}
	require.NoError(t, ctx.Insert("orders", []record.Record{orderRow}))

	_, err := ctx.Update("users", func(r record.Record) bool { return r.Cells[0].Int() == 1 },
		map[uint32]record.ColumnData{0: intCell(0, 2)})
	require.Error(t, err, "moving the referenced row's primary key away must be blocked like a delete")
}

func TestExecuteDispatchesCreateTableAndInsertAndSelect(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)

	row := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	insertResult := ctx.Execute(Statement{Kind: KindInsert, Table: "users", Rows: []record.Record{row}})
	require.NoError(t, insertResult.Error)

	selectResult := ctx.Execute(Statement{Kind: KindSelect, Table: "users"})
	require.NoError(t, selectResult.Error)
	require.Len(t, selectResult.Rows, 1)
}

func TestReopenDatabasePreservesRows(t *testing.T) {
	cfg := config.Config{DataDir: testutil.TempDir(t), BufferPoolFrames: 64, LogLevel: "error"}
	logger, err := applog.New(io.Discard, "error")
	require.NoError(t, err)

	ctx, err := New(cfg, logger)
	require.NoError(t, err)
	ts := setupUsersTable(t, ctx)
	row := record.Record{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "Ada"), intCell(2, 36)}}
	require.NoError(t, ctx.Insert("users", []record.Record{row}))
	ctx.Close()

	ctx2, err := New(cfg, logger)
	require.NoError(t, err)
	defer ctx2.Close()
	require.NoError(t, ctx2.UseDatabase("app"))
	rows, err := ctx2.Select("users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Cells[0].Int())
}
