package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/engine/internal/record"
)

func TestAlterAddColumnBackfillsExistingRows(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice"), intCell(2, 30)}},
	}))

	newCol := record.ColumnDescriptor{Name: "active", Type: record.TypeInt, HasDefault: true, DefaultValue: record.NewInt(0, 1, true)}
	require.NoError(t, ctx.AlterAddColumn("users", newCol))

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	byOrd := cellByOrdinal(rows[0])
	require.Equal(t, int64(1), byOrd[3].Int())

	desc, err := ctx.Desc("users")
	require.NoError(t, err)
	require.Len(t, desc, 4)
	require.Equal(t, "active", desc[3].Field)
}

func TestAlterAddColumnRejectsNotNullWithoutDefaultOnNonEmptyTable(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice"), intCell(2, 30)}},
	}))

	err := ctx.AlterAddColumn("users", record.ColumnDescriptor{Name: "rank", Type: record.TypeInt, CanBeNull: false})
	require.Error(t, err)
}

func TestAlterDropColumnRenumbersLaterOrdinalsAndRewritesRows(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice"), intCell(2, 30)}},
		{Cells: []record.ColumnData{intCell(0, 2), strCellForInsert(ts, 1, "bob"), intCell(2, 40)}},
	}))

	require.NoError(t, ctx.AlterDropColumn("users", "name"))

	desc, err := ctx.Desc("users")
	require.NoError(t, err)
	require.Len(t, desc, 2)
	require.Equal(t, "id", desc[0].Field)
	require.Equal(t, "age", desc[1].Field)

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Len(t, r.Cells, 2)
		byOrd := cellByOrdinal(r)
		require.Contains(t, byOrd, uint32(0))
		require.Contains(t, byOrd, uint32(1))
	}
}

func TestAlterDropColumnRejectsPrimaryKeyColumn(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)
	err := ctx.AlterDropColumn("users", "id")
	require.Error(t, err)
}

func TestAlterDropColumnRejectsLastColumn(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.CreateDatabase("app"))
	require.NoError(t, ctx.UseDatabase("app"))
	require.NoError(t, ctx.CreateTable("t", []record.ColumnDescriptor{{Name: "id", Type: record.TypeInt, IsPrimary: true}}))
	err := ctx.AlterDropColumn("t", "id")
	require.Error(t, err)
}

func TestAlterChangeColumnRenamesAndPreservesPrimaryKey(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)

	err := ctx.AlterChangeColumn("users", "id", record.ColumnDescriptor{Name: "user_id", Type: record.TypeInt})
	require.NoError(t, err)

	desc, err := ctx.Desc("users")
	require.NoError(t, err)
	require.Equal(t, "user_id", desc[0].Field)
	require.Equal(t, "PRI", desc[0].Key)
}

func TestAlterChangeColumnRejectsTypeChange(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)
	err := ctx.AlterChangeColumn("users", "age", record.ColumnDescriptor{Name: "age", Type: record.TypeStr})
	require.Error(t, err)
}

func TestAlterChangeColumnRejectsNotNullWhenExistingRowsHaveNull(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice")}},
	}))
	err := ctx.AlterChangeColumn("users", "age", record.ColumnDescriptor{Name: "age", Type: record.TypeInt, CanBeNull: false})
	require.Error(t, err)
}

func TestAlterRenameTableMovesFileAndCatalogEntry(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)

	require.NoError(t, ctx.AlterRenameTable("users", "customers"))

	tables, err := ctx.ShowTables()
	require.NoError(t, err)
	require.Contains(t, tables, "customers")
	require.NotContains(t, tables, "users")

	_, err = ctx.Desc("users")
	require.Error(t, err)
	desc, err := ctx.Desc("customers")
	require.NoError(t, err)
	require.Len(t, desc, 3)
}

func TestAlterDropAndAddPrimaryKeyRoundTrips(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice"), intCell(2, 30)}},
		{Cells: []record.ColumnData{intCell(0, 2), strCellForInsert(ts, 1, "bob"), intCell(2, 40)}},
	}))

	require.NoError(t, ctx.AlterDropPrimaryKey("users"))
	desc, err := ctx.Desc("users")
	require.NoError(t, err)
	require.Equal(t, "", desc[0].Key)

	rows, err := ctx.Select("users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, ctx.AlterAddPrimaryKey("users", []string{"id"}))
	desc, err = ctx.Desc("users")
	require.NoError(t, err)
	require.Equal(t, "PRI", desc[0].Key)

	err = ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "carol"), intCell(2, 50)}},
	})
	require.Error(t, err, "duplicate id must be rejected once id is a primary key again")
}

func TestAlterAddPrimaryKeyRejectsDuplicateValues(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice"), intCell(2, 30)}},
		{Cells: []record.ColumnData{intCell(0, 2), strCellForInsert(ts, 1, "alice"), intCell(2, 40)}},
	}))
	require.NoError(t, ctx.AlterDropPrimaryKey("users"))

	err := ctx.AlterAddPrimaryKey("users", []string{"name"})
	require.Error(t, err)

	desc, err := ctx.Desc("users")
	require.NoError(t, err)
	require.Equal(t, "", desc[1].Key, "failed AlterAddPrimaryKey must not have partially applied")
}

func TestAlterDropPrimaryKeyRejectsWhenReferencedByForeignKey(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)
	require.NoError(t, ctx.CreateTable("orders", []record.ColumnDescriptor{
		{Name: "oid", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, IsForeign: true, ForeignTableName: "users"},
	}))

	err := ctx.AlterDropPrimaryKey("users")
	require.Error(t, err)
}

func TestAlterAddAndDropForeignKey(t *testing.T) {
	ctx := newTestContext(t)
	ts := setupUsersTable(t, ctx)
	require.NoError(t, ctx.Insert("users", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), strCellForInsert(ts, 1, "alice"), intCell(2, 30)}},
	}))
	require.NoError(t, ctx.CreateTable("orders", []record.ColumnDescriptor{
		{Name: "oid", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, CanBeNull: true},
	}))
	require.NoError(t, ctx.Insert("orders", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 100), intCell(1, 1)}},
	}))

	require.NoError(t, ctx.AlterAddForeignKey("orders", "user_id", "users"))
	desc, err := ctx.Desc("orders")
	require.NoError(t, err)
	require.Len(t, desc, 2)

	err = ctx.Insert("orders", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 101), intCell(1, 999)}},
	})
	require.Error(t, err, "foreign key must now be enforced on new inserts")

	require.NoError(t, ctx.AlterDropForeignKey("orders", "user_id"))
	require.NoError(t, ctx.Insert("orders", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 102), intCell(1, 999)}},
	}))
}

func TestAlterAddForeignKeyRejectsExistingViolatingRows(t *testing.T) {
	ctx := newTestContext(t)
	setupUsersTable(t, ctx)
	require.NoError(t, ctx.CreateTable("orders", []record.ColumnDescriptor{
		{Name: "oid", Type: record.TypeInt, IsPrimary: true},
		{Name: "user_id", Type: record.TypeInt, CanBeNull: true},
	}))
	require.NoError(t, ctx.Insert("orders", []record.Record{
		{Cells: []record.ColumnData{intCell(0, 1), intCell(1, 999)}},
	}))

	err := ctx.AlterAddForeignKey("orders", "user_id", "users")
	require.Error(t, err)
}
