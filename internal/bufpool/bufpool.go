// Package bufpool implements the Buffer Pool (spec.md §4.4): a
// fixed-capacity page cache with LRU-style replacement, dirty
// tracking, and write-back on eviction/close. A chained hash table
// keyed by (file-id, page-id) locates cached frames; an LRU list
// (both backed by internal/linklist) picks the next victim on a miss.
//
// The pool is a process-wide singleton owned by the caller (spec.md
// §5: "a single owning container passed by borrow", never a
// multi-owner shared cell) and is not safe for concurrent use — the
// engine's single-threaded cooperative model means no caller holds a
// page's bytes across a call that could evict it.
package bufpool

import (
	"github.com/relcore/engine/internal/linklist"
	"github.com/relcore/engine/internal/pagefile"
)

const lruList = 0

// binding identifies the page a frame currently caches.
type binding struct {
	fid, pid int
}

// Pool is a fixed-capacity page cache sitting on a pagefile.Manager.
type Pool struct {
	files *pagefile.Manager

	capacity int
	nBuckets int

	data  [][pagefile.PageSize]byte
	bind  []binding
	valid []bool
	dirty []bool

	hash *linklist.LinkList // capacity elements, nBuckets lists
	lru  *linklist.LinkList // capacity elements, 1 list

	// Stats: cache-hit/read/write counters (spec.md §8's testable
	// buffer-pool properties are checked against these in tests).
	Hits, Misses, Reads, Writes int64
}

// New creates a Pool with the given frame capacity over files.
func New(files *pagefile.Manager, capacity int) *Pool {
	if capacity < 1 {
		panic("bufpool: capacity must be >= 1")
	}
	nBuckets := capacity
	p := &Pool{
		files:    files,
		capacity: capacity,
		nBuckets: nBuckets,
		data:     make([][pagefile.PageSize]byte, capacity),
		bind:     make([]binding, capacity),
		valid:    make([]bool, capacity),
		dirty:    make([]bool, capacity),
		hash:     linklist.New(capacity, nBuckets),
		lru:      linklist.New(capacity, 1),
	}
	// Every frame starts unassigned and sits on the LRU list so find()
	// always has a victim candidate, even before the pool fills up.
	for f := 0; f < capacity; f++ {
		p.lru.Insert(lruList, f)
	}
	return p
}

func hashBucket(fid, pid, mod int) int {
	k1, k2 := int64(fid), int64(pid)
	s := k1 + k2
	h := (s*(s+1))/2 + k2
	h %= int64(mod)
	if h < 0 {
		h += int64(mod)
	}
	return int(h)
}

func (p *Pool) findCached(fid, pid int) int {
	b := hashBucket(fid, pid, p.nBuckets)
	for e := p.hash.GetFirst(b); e != -1; e = nextOrStop(p.hash, e) {
		if p.bind[e].fid == fid && p.bind[e].pid == pid {
			return e
		}
	}
	return -1
}

// nextOrStop walks the chain within a hash bucket, returning -1 once it
// wraps back to the sentinel.
func nextOrStop(ll *linklist.LinkList, elem int) int {
	n := ll.Next(elem)
	if ll.IsHead(n) {
		return -1
	}
	return n
}

// GetPage returns the bytes of (fid, pid), loading it on a miss and
// evicting the least-recently-used frame if the pool is full.
func (p *Pool) GetPage(fid, pid int) (*[pagefile.PageSize]byte, int) {
	if f := p.findCached(fid, pid); f != -1 {
		p.Hits++
		p.lru.MoveToTail(lruList, f)
		return &p.data[f], f
	}
	p.Misses++

	victim := p.lru.GetFirst(lruList)
	if victim == -1 {
		panic("bufpool: no frame available (capacity misconfigured)")
	}
	p.evictForReuse(victim)

	p.bind[victim] = binding{fid, pid}
	p.valid[victim] = true
	p.dirty[victim] = false
	p.files.ReadPage(fid, pid, p.data[victim][:])
	p.Reads++

	bucket := hashBucket(fid, pid, p.nBuckets)
	p.hash.Insert(bucket, victim)
	p.lru.MoveToTail(lruList, victim)

	return &p.data[victim], victim
}

// evictForReuse writes back frame if dirty and detaches it from the
// hash table, leaving it ready to be rebound.
func (p *Pool) evictForReuse(frame int) {
	if !p.valid[frame] {
		return
	}
	if p.dirty[frame] {
		p.files.WritePage(p.bind[frame].fid, p.bind[frame].pid, p.data[frame][:])
		p.Writes++
		p.dirty[frame] = false
	}
	p.hash.Del(frame)
	p.valid[frame] = false
}

// MarkDirty flags frame as modified and touches its LRU position.
func (p *Pool) MarkDirty(frame int) {
	p.dirty[frame] = true
	p.lru.MoveToTail(lruList, frame)
}

// WriteBack flushes frame to disk if dirty and releases it from the
// cache. The frame moves to the head of the LRU list (most evictable)
// so the next GetPage miss reuses it immediately.
func (p *Pool) WriteBack(frame int) {
	p.evictForReuse(frame)
	p.lru.Del(frame)
	p.lru.InsertFirst(lruList, frame)
}

// WriteBackFile writes back and releases every cached page of fid in
// pageSet.
func (p *Pool) WriteBackFile(fid int, pageSet []int) {
	for _, pid := range pageSet {
		if f := p.findCached(fid, pid); f != -1 {
			p.WriteBack(f)
		}
	}
}

// Close writes back and releases every cached frame.
func (p *Pool) Close() {
	for f := 0; f < p.capacity; f++ {
		if p.valid[f] {
			p.WriteBack(f)
		}
	}
}
