package pagefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadPastEOFIsZeroPadded(t *testing.T) {
	dir := t.TempDir()
	m := New()
	fid := m.Open(filepath.Join(dir, "t.db"))
	defer m.Close(fid)

	buf := make([]byte, PageSize)
	m.ReadPage(fid, 3, buf)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

func TestWriteThenReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	m := New()
	fid := m.Open(filepath.Join(dir, "t.db"))
	defer m.Close(fid)

	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	m.WritePage(fid, 2, buf)

	out := make([]byte, PageSize)
	m.ReadPage(fid, 2, out)
	require.Equal(t, buf, out)
}

func TestReopenPreservesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.db")

	m1 := New()
	fid1 := m1.Open(path)
	buf := make([]byte, PageSize)
	buf[0] = 0xAB
	m1.WritePage(fid1, 0, buf)
	m1.Close(fid1)

	m2 := New()
	fid2 := m2.Open(path)
	defer m2.Close(fid2)
	out := make([]byte, PageSize)
	m2.ReadPage(fid2, 0, out)
	require.Equal(t, byte(0xAB), out[0])
}

func TestFileIdsAreReused(t *testing.T) {
	dir := t.TempDir()
	m := New()
	fid1 := m.Open(filepath.Join(dir, "a.db"))
	m.Close(fid1)
	fid2 := m.Open(filepath.Join(dir, "b.db"))
	defer m.Close(fid2)
	require.Equal(t, fid1, fid2)
}
