package alloc

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/relcore/engine/internal/bufpool"
	"github.com/relcore/engine/internal/pagefile"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *FileHandler {
	t.Helper()
	dir := t.TempDir()
	files := pagefile.New()
	fid := files.Open(filepath.Join(dir, "t.db"))
	pool := bufpool.New(files, 32)
	t.Cleanup(func() { pool.Close(); files.Close(fid) })
	return Open(pool, fid)
}

func TestAllocGetRoundtrip(t *testing.T) {
	fh := newTestHandler(t)
	data := bytes.Repeat([]byte("abcdefgh"), 100) // 800 bytes, spans slots
	ptr := fh.Alloc(data)
	require.Equal(t, data, fh.Get(ptr))
}

func TestAllocEmpty(t *testing.T) {
	fh := newTestHandler(t)
	ptr := fh.Alloc(nil)
	require.Equal(t, []byte{}, fh.Get(ptr))
}

func TestFreeThenReallocReusesSlots(t *testing.T) {
	// spec.md §8 scenario 5
	fh := newTestHandler(t)
	b1 := bytes.Repeat([]byte{0xAA}, 1024) // 4 slots of L=256
	b2 := bytes.Repeat([]byte{0xBB}, 100)

	p1 := fh.Alloc(b1)
	p2 := fh.Alloc(b2)

	fh.Free(p1)

	b3 := bytes.Repeat([]byte{0xCC}, 900)
	p3 := fh.Alloc(b3)
	require.Equal(t, b3, fh.Get(p3))

	// b2 must be unaffected by b1's freeing and b3's reuse.
	require.Equal(t, b2, fh.Get(p2))
}

func TestUpdateSubInPlace(t *testing.T) {
	fh := newTestHandler(t)
	data := bytes.Repeat([]byte{0x01}, 600)
	ptr := fh.Alloc(data)

	patch := bytes.Repeat([]byte{0x02}, 50)
	fh.UpdateSub(ptr, 260, patch) // crosses a slot boundary (L=256)

	got := fh.Get(ptr)
	require.Equal(t, patch, got[260:310])
	require.Equal(t, data[:260], got[:260])
	require.Equal(t, data[310:], got[310:])
}

func TestUpdateSubRejectsOverflow(t *testing.T) {
	fh := newTestHandler(t)
	ptr := fh.Alloc(make([]byte, 100))
	require.Panics(t, func() {
		fh.UpdateSub(ptr, 50, make([]byte, 100))
	})
}

func TestUpdateReplacesChain(t *testing.T) {
	fh := newTestHandler(t)
	ptr := fh.Alloc([]byte("hello"))
	ptr2 := fh.Update(ptr, []byte("a much longer replacement string"))
	require.Equal(t, []byte("a much longer replacement string"), fh.Get(ptr2))
}

func TestNoDuplicatesOnFreeStackAcrossManyAllocs(t *testing.T) {
	fh := newTestHandler(t)
	var ptrs []SlotPtr
	for i := 0; i < 500; i++ {
		ptrs = append(ptrs, fh.AllocSlot())
	}
	for _, p := range ptrs {
		fh.FreeSlot(p)
	}
	// Re-allocating the same count must succeed without running past
	// the same pages twice in a broken state.
	for i := 0; i < 500; i++ {
		fh.AllocSlot()
	}
}
