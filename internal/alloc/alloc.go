package alloc

import (
	"encoding/binary"

	"github.com/relcore/engine/internal/bufpool"
	"github.com/relcore/engine/internal/relerr"
)

// File-header field offsets within page 0, owned by the allocator. The
// table/catalog layer owns everything from headerExtraOffset onward in
// the same page (spec.md §6: "plus the table's catalog root").
const (
	hdrInitialized   = 0
	hdrFreeSlotPage  = 4
	hdrNextPage      = 8
	headerExtraOffset = 12
)

// FileHandler is the Slotted Allocator bound to one file within a
// shared buffer pool (spec.md §4.5).
type FileHandler struct {
	pool *bufpool.Pool
	fid  int
}

// Open binds a FileHandler to fid, formatting the file header on first
// use.
func Open(pool *bufpool.Pool, fid int) *FileHandler {
	fh := &FileHandler{pool: pool, fid: fid}
	fh.init()
	return fh
}

func (fh *FileHandler) init() {
	buf, frame := fh.pool.GetPage(fh.fid, 0)
	if binary.LittleEndian.Uint32(buf[hdrInitialized:hdrInitialized+4]) != 0 {
		return
	}
	binary.LittleEndian.PutUint32(buf[hdrInitialized:hdrInitialized+4], 1)
	binary.LittleEndian.PutUint32(buf[hdrFreeSlotPage:hdrFreeSlotPage+4], 0)
	binary.LittleEndian.PutUint32(buf[hdrNextPage:hdrNextPage+4], 1)
	fh.pool.MarkDirty(frame)
}

func (fh *FileHandler) freeSlotPage() uint32 {
	buf, _ := fh.pool.GetPage(fh.fid, 0)
	return binary.LittleEndian.Uint32(buf[hdrFreeSlotPage : hdrFreeSlotPage+4])
}

func (fh *FileHandler) setFreeSlotPage(v uint32) {
	buf, frame := fh.pool.GetPage(fh.fid, 0)
	binary.LittleEndian.PutUint32(buf[hdrFreeSlotPage:hdrFreeSlotPage+4], v)
	fh.pool.MarkDirty(frame)
}

// PageCount returns the number of pages allocated so far in this file
// (including page 0, the header), for callers that need to flush every
// page belonging to the file without tracking allocations themselves.
func (fh *FileHandler) PageCount() uint32 {
	return fh.nextPage()
}

func (fh *FileHandler) nextPage() uint32 {
	buf, _ := fh.pool.GetPage(fh.fid, 0)
	return binary.LittleEndian.Uint32(buf[hdrNextPage : hdrNextPage+4])
}

func (fh *FileHandler) setNextPage(v uint32) {
	buf, frame := fh.pool.GetPage(fh.fid, 0)
	binary.LittleEndian.PutUint32(buf[hdrNextPage:hdrNextPage+4], v)
	fh.pool.MarkDirty(frame)
}

// HeaderExtra returns the portion of page 0 reserved for the
// table/catalog layer (everything after the allocator's own fields).
// Callers must call MarkHeaderDirty after writing into the returned
// slice.
func (fh *FileHandler) HeaderExtra() []byte {
	buf, _ := fh.pool.GetPage(fh.fid, 0)
	return buf[headerExtraOffset:]
}

// MarkHeaderDirty flags page 0 as modified after a HeaderExtra write.
func (fh *FileHandler) MarkHeaderDirty() {
	_, frame := fh.pool.GetPage(fh.fid, 0)
	fh.pool.MarkDirty(frame)
}

func (fh *FileHandler) getPageView(pid uint32) (slotPage, int) {
	buf, frame := fh.pool.GetPage(fh.fid, int(pid))
	return newSlotPageView(buf[:]), frame
}

// newPage bumps next_page and formats the new page as an all-free
// slotted page.
func (fh *FileHandler) newPage() uint32 {
	pid := fh.nextPage()
	fh.setNextPage(pid + 1)
	view, frame := fh.getPageView(pid)
	view.reset()
	fh.pool.MarkDirty(frame)
	return pid
}

func (fh *FileHandler) pushFreeStack(pid uint32) {
	view, frame := fh.getPageView(pid)
	view.setNextFreePage(fh.freeSlotPage())
	fh.pool.MarkDirty(frame)
	fh.setFreeSlotPage(pid)
}

func (fh *FileHandler) popFreeStack() {
	pid := fh.freeSlotPage()
	view, _ := fh.getPageView(pid)
	fh.setFreeSlotPage(view.nextFreePage())
}

// AllocSlot reserves one free slot and returns its pointer (spec.md
// §4.5 alloc_slot).
func (fh *FileHandler) AllocSlot() SlotPtr {
	if fh.freeSlotPage() == 0 {
		pid := fh.newPage()
		fh.pushFreeStack(pid)
	}
	pid := fh.freeSlotPage()
	view, frame := fh.getPageView(pid)
	idx := view.lowestFreeSlot()
	if idx < 0 {
		panic(relerr.New(relerr.Invariant, "alloc.AllocSlot", "page on free-slot stack has no free slot"))
	}
	view.setUsed(idx, true)
	fh.pool.MarkDirty(frame)
	if view.isFull() {
		fh.popFreeStack()
	}
	return SlotPtr{Page: pid, Slot: uint32(idx)}
}

// Alloc splits data into ceil(len/L) slots, links them tail-to-head,
// and returns the pointer to the first slot (spec.md §4.5 alloc).
func (fh *FileHandler) Alloc(data []byte) SlotPtr {
	n := len(data)
	numSlots := (n + L - 1) / L
	if numSlots == 0 {
		numSlots = 1
	}
	next := Null
	for i := numSlots - 1; i >= 0; i-- {
		start := i * L
		end := start + L
		if end > n {
			end = n
		}
		chunk := data[start:end]

		ptr := fh.AllocSlot()
		view, frame := fh.getPageView(ptr.Page)
		view.setSlotLen(int(ptr.Slot), uint64(n-start))
		view.setSlotNext(int(ptr.Slot), next)
		payload := view.slotPayload(int(ptr.Slot))
		for j := range payload {
			payload[j] = 0
		}
		copy(payload, chunk)
		fh.pool.MarkDirty(frame)

		next = ptr
	}
	return next
}

// Get reads and concatenates the full byte string addressed by ptr
// (spec.md §4.5 get).
func (fh *FileHandler) Get(ptr SlotPtr) []byte {
	if ptr.IsNull() {
		return nil
	}
	out := []byte{}
	cur := ptr
	for !cur.IsNull() {
		view, _ := fh.getPageView(cur.Page)
		ln := view.slotLen(int(cur.Slot))
		take := L
		if ln < uint64(L) {
			take = int(ln)
		}
		out = append(out, view.slotPayload(int(cur.Slot))[:take]...)
		cur = view.slotNext(int(cur.Slot))
	}
	return out
}

// FreeSlot clears the used bit for ptr, pushing its page onto the
// free-slot stack if that transitions the page from fully-used to
// has-free, and returns the slot's next pointer (spec.md §4.5
// free_slot).
func (fh *FileHandler) FreeSlot(ptr SlotPtr) SlotPtr {
	view, frame := fh.getPageView(ptr.Page)
	wasFull := view.isFull()
	next := view.slotNext(int(ptr.Slot))
	view.setUsed(int(ptr.Slot), false)
	fh.pool.MarkDirty(frame)
	if wasFull {
		fh.pushFreeStack(ptr.Page)
	}
	return next
}

// Free walks the chain starting at ptr, freeing every slot.
func (fh *FileHandler) Free(ptr SlotPtr) {
	cur := ptr
	for !cur.IsNull() {
		cur = fh.FreeSlot(cur)
	}
}

// UpdateSub rewrites data in place starting at byte offset `offset`
// within the chain addressed by ptr, without reallocating. The new
// bytes must fit within the chain's existing total length (spec.md
// §4.5 update_sub).
func (fh *FileHandler) UpdateSub(ptr SlotPtr, offset int, data []byte) {
	if ptr.IsNull() {
		panic(relerr.New(relerr.Invariant, "alloc.UpdateSub", "nil pointer"))
	}
	headView, _ := fh.getPageView(ptr.Page)
	total := headView.slotLen(int(ptr.Slot))
	if uint64(offset+len(data)) > total {
		panic(relerr.New(relerr.Invariant, "alloc.UpdateSub", "write exceeds existing chain length"))
	}

	cur := ptr
	skip := offset
	for skip >= L {
		view, _ := fh.getPageView(cur.Page)
		cur = view.slotNext(int(cur.Slot))
		skip -= L
	}

	pos := 0
	for pos < len(data) {
		view, frame := fh.getPageView(cur.Page)
		payload := view.slotPayload(int(cur.Slot))
		n := copy(payload[skip:], data[pos:])
		fh.pool.MarkDirty(frame)
		pos += n
		skip = 0
		if pos < len(data) {
			cur = view.slotNext(int(cur.Slot))
		}
	}
}

// Update replaces the chain at ptr with data, returning the (possibly
// different) pointer to the new chain (spec.md §4.5 update: free then
// alloc).
func (fh *FileHandler) Update(ptr SlotPtr, data []byte) SlotPtr {
	fh.Free(ptr)
	return fh.Alloc(data)
}

// Delete frees the chain at ptr (spec.md §4.5 delete).
func (fh *FileHandler) Delete(ptr SlotPtr) {
	fh.Free(ptr)
}
