// Package pagefile implements the File Manager (spec.md §4.1): a small
// table mapping integer file-ids to open OS files, reading and writing
// fixed-size pages by (file-id, page-id). A short read past EOF is
// padded with zeros, which is how new pages come into existence.
package pagefile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/relcore/engine/internal/bitmap"
	"github.com/relcore/engine/internal/relerr"
)

// PageSize is the fixed page size in bytes (spec.md §3).
const PageSize = 8192

// MaxFiles bounds how many files one Manager can have open at once; the
// free-id bitmap is sized to it.
const MaxFiles = 128

// Manager owns a small table of open files, keyed by a bitmap-allocated
// integer file-id.
type Manager struct {
	files [MaxFiles]*os.File
	ids   *bitmap.Bitmap // 1 = free id
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{ids: bitmap.New(MaxFiles, true)}
}

// Open opens (creating if absent) the file at path for read+write and
// returns its file-id. I/O failures are fatal (spec.md §4.1).
func (m *Manager) Open(path string) int {
	fid := m.ids.FindLeftOne()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		panic(relerr.Wrap(relerr.Io, "pagefile.Open", err))
	}
	m.ids.SetBit(fid, 0)
	m.files[fid] = f
	return fid
}

// Close closes the file backing fid and releases its id.
func (m *Manager) Close(fid int) {
	m.checkOpen(fid)
	if err := m.files[fid].Close(); err != nil {
		panic(relerr.Wrap(relerr.Io, "pagefile.Close", err))
	}
	m.files[fid] = nil
	m.ids.SetBit(fid, 1)
}

func (m *Manager) checkOpen(fid int) {
	if fid < 0 || fid >= MaxFiles || m.files[fid] == nil {
		panic(relerr.New(relerr.Invariant, "pagefile", fmt.Sprintf("file-id %d is not open", fid)))
	}
}

// ReadPage reads page pid of file fid into buf, which must be exactly
// PageSize bytes. Reading past the current end of file is padded with
// zeros rather than treated as an error.
func (m *Manager) ReadPage(fid, pid int, buf []byte) {
	m.checkOpen(fid)
	if len(buf) != PageSize {
		panic(fmt.Sprintf("pagefile: buffer must be %d bytes, got %d", PageSize, len(buf)))
	}
	offset := int64(pid) * PageSize
	n, err := m.files[fid].ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		// Any read short of EOF means a real I/O failure, fatal per spec.
		panic(relerr.Wrap(relerr.Io, "pagefile.ReadPage", err))
	}
	// Short read past EOF (err is io.EOF or nil with n<PageSize at the
	// file's true end) is how new pages come into existence: pad with
	// zeros rather than erroring.
	for i := n; i < PageSize; i++ {
		buf[i] = 0
	}
}

// WritePage writes buf (exactly PageSize bytes) to page pid of file fid.
func (m *Manager) WritePage(fid, pid int, buf []byte) {
	m.checkOpen(fid)
	if len(buf) != PageSize {
		panic(fmt.Sprintf("pagefile: buffer must be %d bytes, got %d", PageSize, len(buf)))
	}
	offset := int64(pid) * PageSize
	if _, err := m.files[fid].WriteAt(buf, offset); err != nil {
		panic(relerr.Wrap(relerr.Io, "pagefile.WritePage", err))
	}
}
