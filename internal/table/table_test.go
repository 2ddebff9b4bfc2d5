package table

import (
	"path/filepath"
	"testing"

	"github.com/relcore/engine/internal/bufpool"
	"github.com/relcore/engine/internal/pagefile"
	"github.com/relcore/engine/internal/record"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T) (*Handle, *bufpool.Pool, int) {
	t.Helper()
	dir := t.TempDir()
	files := pagefile.New()
	fid := files.Open(filepath.Join(dir, "t.tbl"))
	pool := bufpool.New(files, 32)
	t.Cleanup(func() { pool.Close(); files.Close(fid) })
	return Open(pool, fid), pool, fid
}

func TestStringRoundtrip(t *testing.T) {
	h, _, _ := newTestHandle(t)
	ptr := h.InsertString("hello table")
	require.Equal(t, "hello table", h.GetString(ptr))

	ptr2 := h.UpdateString(ptr, "a replacement value")
	require.Equal(t, "a replacement value", h.GetString(ptr2))
}

func TestRecordRoundtripWithStringCell(t *testing.T) {
	h, _, _ := newTestHandle(t)
	namePtr := h.InsertString("Ada Lovelace")
	page, slot := namePtr.Page, namePtr.Slot

	rec := record.Record{Cells: []record.ColumnData{
		record.NewInt(0, 1, false),
		record.NewStr(1, page, slot, false),
	}}
	ptr := h.InsertRecord(rec)

	got := h.GetRecord(ptr)
	require.Equal(t, rec, got)
	gotPage, gotSlot := got.Cells[1].StrPtr()
	require.Equal(t, "Ada Lovelace", h.GetString(toSlotPtr(gotPage, gotSlot)))
}

func TestUpdateRecordFreesOldStringCell(t *testing.T) {
	h, _, _ := newTestHandle(t)
	oldNamePtr := h.InsertString("old name")
	rec := record.Record{Cells: []record.ColumnData{
		record.NewStr(0, oldNamePtr.Page, oldNamePtr.Slot, false),
	}}
	ptr := h.InsertRecord(rec)

	newNamePtr := h.InsertString("new name")
	newRec := record.Record{Cells: []record.ColumnData{
		record.NewStr(0, newNamePtr.Page, newNamePtr.Slot, false),
	}}
	ptr = h.UpdateRecord(ptr, newRec)

	got := h.GetRecord(ptr)
	page, slot := got.Cells[0].StrPtr()
	require.Equal(t, "new name", h.GetString(toSlotPtr(page, slot)))
}

func TestDeleteRecordFreesStringCells(t *testing.T) {
	h, _, _ := newTestHandle(t)
	namePtr := h.InsertString("to be deleted")
	rec := record.Record{Cells: []record.ColumnData{
		record.NewStr(0, namePtr.Page, namePtr.Slot, false),
	}}
	ptr := h.InsertRecord(rec)
	h.DeleteRecord(ptr)
	// The string slot should be free and available for reuse without
	// growing the file.
	reused := h.InsertString("reused slot")
	require.Equal(t, namePtr, reused)
}

func TestColumnDescriptorRoundtrip(t *testing.T) {
	h, _, _ := newTestHandle(t)
	d := record.ColumnDescriptor{
		Name:      "customer_id",
		Ordinal:   0,
		Type:      record.TypeInt,
		IsPrimary: true,
	}
	ptr := h.InsertColumnDescriptor(d)
	got := h.GetColumnDescriptor(ptr)
	require.Equal(t, d, got)
}

func TestColumnDescriptorWithForeignKey(t *testing.T) {
	h, _, _ := newTestHandle(t)
	d := record.ColumnDescriptor{
		Name:             "region_id",
		Ordinal:          2,
		Type:             record.TypeInt,
		IsForeign:        true,
		ForeignTableName: "regions",
	}
	ptr := h.InsertColumnDescriptor(d)
	got := h.GetColumnDescriptor(ptr)
	require.Equal(t, d, got)

	updated := d
	updated.ForeignTableName = "territories"
	ptr = h.UpdateColumnDescriptor(ptr, updated)
	got = h.GetColumnDescriptor(ptr)
	require.Equal(t, "territories", got.ForeignTableName)
}

func TestDeleteColumnDescriptorFreesNameSlot(t *testing.T) {
	h, _, _ := newTestHandle(t)
	// probe records which slot a name of this length lands in; freeing
	// it again leaves the file as it was.
	probe := h.InsertString("doomed_column")
	h.DeleteString(probe)
	d := record.ColumnDescriptor{Name: "doomed_column", Ordinal: 0, Type: record.TypeInt}
	ptr := h.InsertColumnDescriptor(d)
	h.DeleteColumnDescriptor(ptr)
	// Re-inserting a string of identical length should reuse the freed
	// slot rather than allocate a new one at the end of the file.
	reused := h.InsertString("doomed_column")
	require.Equal(t, probe, reused)
}

func TestCloseFlushesAllPages(t *testing.T) {
	h, pool, fid := newTestHandle(t)
	h.InsertString("some content forces page allocation")
	h.Close(pool, fid)
}
