// Package table implements the Table Handle (spec.md §4.7, "Typed
// Record & Catalog"): a typed CRUD facade over one table's backing
// file, composing internal/alloc (byte-string storage),
// internal/codec (wire format), and internal/record (typed cells and
// column descriptors). Strings referenced by a record or a column
// descriptor are persisted as their own allocator chains; updating or
// deleting an owner frees those chains so string slots never leak
// (grounded on original_source/src/rm/table_handler.rs and
// rm/in_file.rs).
package table

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/bufpool"
	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/record"
)

// wireSize is the Size width used for every length-prefixed field this
// package serializes.
const wireSize = codec.Size32

// Handle is a typed view over one table's (or catalog's) backing file.
type Handle struct {
	fh *alloc.FileHandler
}

// Open binds a Handle to fid within pool, formatting the file's
// allocator header on first use.
func Open(pool *bufpool.Pool, fid int) *Handle {
	return &Handle{fh: alloc.Open(pool, fid)}
}

func toSlotPtr(page, slot uint32) alloc.SlotPtr { return alloc.SlotPtr{Page: page, Slot: slot} }

// ---- strings ----

func (h *Handle) InsertString(s string) alloc.SlotPtr {
	return h.fh.Alloc([]byte(s))
}

func (h *Handle) GetString(ptr alloc.SlotPtr) string {
	if ptr.IsNull() {
		return ""
	}
	return string(h.fh.Get(ptr))
}

func (h *Handle) UpdateString(ptr alloc.SlotPtr, s string) alloc.SlotPtr {
	return h.fh.Update(ptr, []byte(s))
}

func (h *Handle) DeleteString(ptr alloc.SlotPtr) {
	if !ptr.IsNull() {
		h.fh.Delete(ptr)
	}
}

// ---- raw byte strings (used by internal/btreeindex to persist nodes
// and buckets, which own their own wire formats) ----

func (h *Handle) InsertBytes(b []byte) alloc.SlotPtr { return h.fh.Alloc(b) }
func (h *Handle) GetBytes(ptr alloc.SlotPtr) []byte  { return h.fh.Get(ptr) }
func (h *Handle) UpdateBytes(ptr alloc.SlotPtr, b []byte) alloc.SlotPtr {
	return h.fh.Update(ptr, b)
}
func (h *Handle) DeleteBytes(ptr alloc.SlotPtr) { h.fh.Delete(ptr) }

// UpdateBytesInPlace overwrites ptr's chain with data without
// reallocating, so ptr is guaranteed to stay valid. data must be
// exactly as long as the chain ptr already addresses.
func (h *Handle) UpdateBytesInPlace(ptr alloc.SlotPtr, data []byte) {
	h.fh.UpdateSub(ptr, 0, data)
}

// ---- records ----

func (h *Handle) InsertRecord(rec record.Record) alloc.SlotPtr {
	buf, err := record.Encode(wireSize, rec)
	if err != nil {
		panic(err)
	}
	return h.fh.Alloc(buf)
}

func (h *Handle) GetRecord(ptr alloc.SlotPtr) record.Record {
	buf := h.fh.Get(ptr)
	rec, err := record.Decode(buf, wireSize)
	if err != nil {
		panic(err)
	}
	return rec
}

// freeRecordStrings releases every Str cell's backing chain so that
// updating or deleting the owning record never leaks allocator slots.
func (h *Handle) freeRecordStrings(rec record.Record) {
	for _, c := range rec.Cells {
		if c.Type != record.TypeStr || c.IsNull {
			continue
		}
		page, slot := c.StrPtr()
		h.DeleteString(toSlotPtr(page, slot))
	}
}

// UpdateRecord frees the old record's string cells that the
// replacement no longer references, then writes the replacement
// (spec.md §4.7: "the pointer is freed when the record is updated or
// deleted").
func (h *Handle) UpdateRecord(ptr alloc.SlotPtr, rec record.Record) alloc.SlotPtr {
	old := h.GetRecord(ptr)
	kept := make(map[uint64]bool)
	for _, c := range rec.Cells {
		if c.Type == record.TypeStr && !c.IsNull {
			kept[c.Payload] = true
		}
	}
	var stale record.Record
	for _, c := range old.Cells {
		if !kept[c.Payload] {
			stale.Cells = append(stale.Cells, c)
		}
	}
	h.freeRecordStrings(stale)
	buf, err := record.Encode(wireSize, rec)
	if err != nil {
		panic(err)
	}
	return h.fh.Update(ptr, buf)
}

// DeleteRecord frees the record's string cells and its own chain.
func (h *Handle) DeleteRecord(ptr alloc.SlotPtr) {
	old := h.GetRecord(ptr)
	h.freeRecordStrings(old)
	h.fh.Delete(ptr)
}

// HeaderExtra returns the portion of the table's page 0 reserved for
// catalog data (column descriptor pointers, B-tree root pointers):
// everything the allocator itself does not own. Callers must call
// MarkHeaderDirty after writing into the returned slice.
func (h *Handle) HeaderExtra() []byte { return h.fh.HeaderExtra() }

// MarkHeaderDirty flags page 0 as modified after a HeaderExtra write.
func (h *Handle) MarkHeaderDirty() { h.fh.MarkHeaderDirty() }

// Close writes back and releases every frame belonging to the table's
// file via the shared buffer pool's per-file flush.
func (h *Handle) Close(pool *bufpool.Pool, fid int) {
	n := int(h.fh.PageCount())
	pages := make([]int, n)
	for i := range pages {
		pages[i] = i
	}
	pool.WriteBackFile(fid, pages)
}
