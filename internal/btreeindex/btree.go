package btreeindex

import (
	"bytes"
	"sort"

	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/relerr"
	"github.com/relcore/engine/internal/table"
)

// DefaultFanout is the reference node capacity K (spec.md §4.9: "fan-out
// K per node (configurable, stored in the catalog)").
const DefaultFanout = 32

// Tree is a clustered or secondary B-tree over composite keys, with
// its nodes and buckets persisted through a table.Handle and addressed
// by allocator slot pointers (spec.md §4.9). A Tree is not safe for
// concurrent use — the engine's single-threaded execution model is
// what makes that acceptable (spec.md "Concurrency & Resource Model").
type Tree struct {
	th     *table.Handle
	root   alloc.SlotPtr
	fanout int
}

// NewTree binds a Tree to an existing (possibly null/empty) root
// pointer, as recorded in the table's catalog.
func NewTree(th *table.Handle, root alloc.SlotPtr, fanout int) *Tree {
	if fanout <= 1 {
		fanout = DefaultFanout
	}
	return &Tree{th: th, root: root, fanout: fanout}
}

// Root returns the current root pointer; callers persist this back
// into the table's catalog whenever it changes (spec.md §4.9: "the
// root pointer is rewritten in the Table Header whenever the tree
// height changes").
func (t *Tree) Root() alloc.SlotPtr { return t.root }

func (t *Tree) readNode(ptr alloc.SlotPtr) node {
	n, err := decodeNode(t.th.GetBytes(ptr))
	if err != nil {
		panic(err)
	}
	return n
}

// frame is one level of the descent stack: the internal node visited
// and the index of the child taken, so split/merge can walk back up
// without a parent pointer stored in the node itself (spec.md "Design
// Notes": re-architected via a descent stack).
type frame struct {
	ptr alloc.SlotPtr
	idx int
}

func childIndex(keys [][]byte, key []byte) int {
	return sort.Search(len(keys), func(i int) bool { return mustCompareKeys(keys[i], key) > 0 })
}

// descend walks from the root to the leaf that would contain key,
// returning that leaf, its pointer, and the stack of ancestor frames.
// ok is false if the tree is empty.
func (t *Tree) descend(key []byte) (leafPtr alloc.SlotPtr, leaf node, stack []frame, ok bool) {
	if t.root.IsNull() {
		return alloc.Null, node{}, nil, false
	}
	cur := t.root
	for {
		n := t.readNode(cur)
		if n.IsLeaf {
			return cur, n, stack, true
		}
		idx := childIndex(n.Keys, key)
		stack = append(stack, frame{ptr: cur, idx: idx})
		cur = n.Children[idx]
	}
}

// Get performs a point lookup, returning every record pointer sharing
// key (spec.md §4.9 "Point lookup").
func (t *Tree) Get(key []byte) ([]alloc.SlotPtr, bool) {
	_, leaf, _, ok := t.descend(key)
	if !ok {
		return nil, false
	}
	i := sort.Search(len(leaf.Keys), func(k int) bool { return mustCompareKeys(leaf.Keys[k], key) >= 0 })
	if i >= len(leaf.Keys) || !bytes.Equal(leaf.Keys[i], key) {
		return nil, false
	}
	return t.collectBucket(leaf.Buckets[i]), true
}

// All walks every leaf left to right via the NextLeaf chain, collecting
// every record pointer in the tree regardless of key value — the
// engine's statement dispatcher uses this to serve a full table scan
// over the clustered index (spec.md §4.9's leaf chain is built for
// exactly this kind of ordered walk).
func (t *Tree) All() []alloc.SlotPtr {
	if t.root.IsNull() {
		return nil
	}
	n := t.readNode(t.root)
	for !n.IsLeaf {
		n = t.readNode(n.Children[0])
	}
	var out []alloc.SlotPtr
	for {
		for _, b := range n.Buckets {
			out = append(out, t.collectBucket(b)...)
		}
		if n.NextLeaf.IsNull() {
			return out
		}
		n = t.readNode(n.NextLeaf)
	}
}

func (t *Tree) collectBucket(head alloc.SlotPtr) []alloc.SlotPtr {
	var out []alloc.SlotPtr
	cur := head
	for !cur.IsNull() {
		seg, err := decodeBucket(t.th.GetBytes(cur))
		if err != nil {
			panic(err)
		}
		out = append(out, seg.Records...)
		cur = seg.Next
	}
	return out
}

// Scan walks leaves in ascending key order starting at the first key
// >= lowKey, collecting bucket contents until a key compares greater
// than or equal to highKey (or, if inclusiveHigh, strictly greater than
// highKey) — spec.md §4.9 "Range scan".
func (t *Tree) Scan(lowKey, highKey []byte, inclusiveHigh bool) []alloc.SlotPtr {
	if t.root.IsNull() {
		return nil
	}
	leafPtr, leaf, _, ok := t.descend(lowKey)
	if !ok {
		return nil
	}
	var out []alloc.SlotPtr
	i := sort.Search(len(leaf.Keys), func(k int) bool { return mustCompareKeys(leaf.Keys[k], lowKey) >= 0 })
	for {
		for ; i < len(leaf.Keys); i++ {
			cmp := mustCompareKeys(leaf.Keys[i], highKey)
			if cmp > 0 || (cmp == 0 && !inclusiveHigh) {
				return out
			}
			out = append(out, t.collectBucket(leaf.Buckets[i])...)
		}
		if leaf.NextLeaf.IsNull() {
			return out
		}
		leafPtr = leaf.NextLeaf
		leaf = t.readNode(leafPtr)
		i = 0
	}
}

// Insert adds recPtr under key. When unique is true (clustered
// primary-key trees) a pre-existing key is a Constraint error
// (spec.md §4.9 "Insertion": append to an existing bucket, else insert
// a new sorted entry with a single-element bucket).
func (t *Tree) Insert(key []byte, recPtr alloc.SlotPtr, unique bool) error {
	if t.root.IsNull() {
		seg := bucketSeg{Records: []alloc.SlotPtr{recPtr}}
		segPtr := t.th.InsertBytes(encodeBucket(seg))
		leaf := node{IsLeaf: true, Keys: [][]byte{key}, Buckets: []alloc.SlotPtr{segPtr}}
		t.root = t.th.InsertBytes(encodeNode(leaf))
		return nil
	}

	leafPtr, leaf, stack, _ := t.descend(key)
	i := sort.Search(len(leaf.Keys), func(k int) bool { return mustCompareKeys(leaf.Keys[k], key) >= 0 })
	if i < len(leaf.Keys) && bytes.Equal(leaf.Keys[i], key) {
		if unique {
			return relerr.New(relerr.Constraint, "btreeindex.Insert", "duplicate key on unique index")
		}
		t.appendToBucket(leaf.Buckets[i], recPtr)
		return nil
	}

	segPtr := t.th.InsertBytes(encodeBucket(bucketSeg{Records: []alloc.SlotPtr{recPtr}}))
	leaf.Keys = insertKeyAt(leaf.Keys, i, key)
	leaf.Buckets = insertPtrAt(leaf.Buckets, i, segPtr)
	return t.writeAndPropagate(leafPtr, leaf, stack)
}

func (t *Tree) appendToBucket(head alloc.SlotPtr, recPtr alloc.SlotPtr) {
	cur := head
	for {
		seg, err := decodeBucket(t.th.GetBytes(cur))
		if err != nil {
			panic(err)
		}
		if len(seg.Records) < bucketCapacity {
			seg.Records = append(seg.Records, recPtr)
			t.th.UpdateBytesInPlace(cur, encodeBucket(seg))
			return
		}
		if seg.Next.IsNull() {
			newPtr := t.th.InsertBytes(encodeBucket(bucketSeg{Records: []alloc.SlotPtr{recPtr}}))
			seg.Next = newPtr
			t.th.UpdateBytesInPlace(cur, encodeBucket(seg))
			return
		}
		cur = seg.Next
	}
}

func insertKeyAt(keys [][]byte, i int, key []byte) [][]byte {
	keys = append(keys, nil)
	copy(keys[i+1:], keys[i:])
	keys[i] = key
	return keys
}

func insertPtrAt(ptrs []alloc.SlotPtr, i int, p alloc.SlotPtr) []alloc.SlotPtr {
	ptrs = append(ptrs, alloc.Null)
	copy(ptrs[i+1:], ptrs[i:])
	ptrs[i] = p
	return ptrs
}

// writeAndPropagate re-serializes n (whose key count changed), splits
// it if it now exceeds the fanout, and pushes any resulting pointer
// change up the descent stack.
func (t *Tree) writeAndPropagate(ptr alloc.SlotPtr, n node, stack []frame) error {
	if len(n.Keys) > t.fanout {
		return t.split(ptr, n, stack)
	}
	newPtr := t.th.UpdateBytes(ptr, encodeNode(n))
	return t.propagate(ptr, newPtr, stack)
}

// propagate updates the ancestor chain after a node at ptr was
// rewritten to newPtr (a no-op if the pointer did not change). A moved
// leaf also has its predecessor leaf's NextLeaf repointed.
func (t *Tree) propagate(ptr, newPtr alloc.SlotPtr, stack []frame) error {
	if ptr == newPtr {
		return nil
	}
	if t.readNode(newPtr).IsLeaf {
		t.relinkPredecessorLeaf(stack, newPtr)
	}
	if len(stack) == 0 {
		t.root = newPtr
		return nil
	}
	top := stack[len(stack)-1]
	parent := t.readNode(top.ptr)
	parent.Children[top.idx] = newPtr
	newParentPtr := t.th.UpdateBytes(top.ptr, encodeNode(parent))
	return t.propagate(top.ptr, newParentPtr, stack[:len(stack)-1])
}

func (t *Tree) split(ptr alloc.SlotPtr, n node, stack []frame) error {
	mid := len(n.Keys) / 2
	if n.IsLeaf {
		right := node{IsLeaf: true, Keys: n.Keys[mid:], Buckets: n.Buckets[mid:], NextLeaf: n.NextLeaf}
		rightPtr := t.th.InsertBytes(encodeNode(right))
		left := node{IsLeaf: true, Keys: n.Keys[:mid], Buckets: n.Buckets[:mid], NextLeaf: rightPtr}
		leftPtr := t.th.UpdateBytes(ptr, encodeNode(left))
		if leftPtr != ptr {
			t.relinkPredecessorLeaf(stack, leftPtr)
		}
		return t.insertIntoParent(leftPtr, right.Keys[0], rightPtr, stack)
	}
	promote := n.Keys[mid]
	right := node{IsLeaf: false, Keys: n.Keys[mid+1:], Children: n.Children[mid+1:]}
	rightPtr := t.th.InsertBytes(encodeNode(right))
	left := node{IsLeaf: false, Keys: n.Keys[:mid], Children: n.Children[:mid+1]}
	leftPtr := t.th.UpdateBytes(ptr, encodeNode(left))
	return t.insertIntoParent(leftPtr, promote, rightPtr, stack)
}

// insertIntoParent links leftPtr/rightPtr under separator key sepKey
// into the parent found at the top of stack, creating a new root if
// the split node had none.
func (t *Tree) insertIntoParent(leftPtr alloc.SlotPtr, sepKey []byte, rightPtr alloc.SlotPtr, stack []frame) error {
	if len(stack) == 0 {
		newRoot := node{IsLeaf: false, Keys: [][]byte{sepKey}, Children: []alloc.SlotPtr{leftPtr, rightPtr}}
		t.root = t.th.InsertBytes(encodeNode(newRoot))
		return nil
	}
	top := stack[len(stack)-1]
	parent := t.readNode(top.ptr)
	parent.Children[top.idx] = leftPtr
	parent.Keys = insertKeyAt(parent.Keys, top.idx, sepKey)
	parent.Children = insertPtrAt(parent.Children, top.idx+1, rightPtr)
	return t.writeAndPropagate(top.ptr, parent, stack[:len(stack)-1])
}

// Delete removes recPtr from key's bucket. If the bucket empties, the
// key entry itself is removed from its leaf; if that leaf becomes
// empty it is merged away (spec.md §4.9 "Deletion").
func (t *Tree) Delete(key []byte, recPtr alloc.SlotPtr) error {
	leafPtr, leaf, stack, ok := t.descend(key)
	if !ok {
		return relerr.New(relerr.Constraint, "btreeindex.Delete", "index is empty")
	}
	i := sort.Search(len(leaf.Keys), func(k int) bool { return mustCompareKeys(leaf.Keys[k], key) >= 0 })
	if i >= len(leaf.Keys) || !bytes.Equal(leaf.Keys[i], key) {
		return relerr.New(relerr.Constraint, "btreeindex.Delete", "key not found")
	}
	removed, wholeEmpty := t.removeFromBucketChain(leaf.Buckets[i], recPtr)
	if !removed {
		return relerr.New(relerr.Constraint, "btreeindex.Delete", "record pointer not found in bucket")
	}
	if !wholeEmpty {
		return nil
	}
	leaf.Keys = append(leaf.Keys[:i], leaf.Keys[i+1:]...)
	leaf.Buckets = append(leaf.Buckets[:i], leaf.Buckets[i+1:]...)
	if len(leaf.Keys) == 0 && len(stack) > 0 {
		return t.mergeEmptyNode(leafPtr, leaf, stack)
	}
	newPtr := t.th.UpdateBytes(leafPtr, encodeNode(leaf))
	return t.propagate(leafPtr, newPtr, stack)
}

func (t *Tree) removeFromBucketChain(head alloc.SlotPtr, recPtr alloc.SlotPtr) (removed, wholeEmpty bool) {
	cur := head
	isHead := true
	var prevPtr alloc.SlotPtr
	for !cur.IsNull() {
		seg, err := decodeBucket(t.th.GetBytes(cur))
		if err != nil {
			panic(err)
		}
		idx := -1
		for j, r := range seg.Records {
			if r == recPtr {
				idx = j
				break
			}
		}
		if idx == -1 {
			prevPtr = cur
			cur = seg.Next
			isHead = false
			continue
		}

		seg.Records = append(seg.Records[:idx], seg.Records[idx+1:]...)
		if len(seg.Records) > 0 {
			t.th.UpdateBytesInPlace(cur, encodeBucket(seg))
			return true, false
		}
		if seg.Next.IsNull() {
			if isHead {
				t.th.UpdateBytesInPlace(cur, encodeBucket(seg))
				return true, true
			}
			prevSeg, _ := decodeBucket(t.th.GetBytes(prevPtr))
			prevSeg.Next = alloc.Null
			t.th.UpdateBytesInPlace(prevPtr, encodeBucket(prevSeg))
			t.th.DeleteBytes(cur)
			return true, false
		}
		// Pull the next segment's content forward so the bucket's own
		// pointer (possibly referenced by the leaf) stays valid.
		nextSeg, err := decodeBucket(t.th.GetBytes(seg.Next))
		if err != nil {
			panic(err)
		}
		nextPtr := seg.Next
		t.th.UpdateBytesInPlace(cur, encodeBucket(nextSeg))
		t.th.DeleteBytes(nextPtr)
		return true, false
	}
	return false, false
}

// rightmostLeaf descends from ptr via each node's last child, returning
// the rightmost leaf reachable from that subtree.
func (t *Tree) rightmostLeaf(ptr alloc.SlotPtr) (alloc.SlotPtr, node) {
	n := t.readNode(ptr)
	for !n.IsLeaf {
		ptr = n.Children[len(n.Children)-1]
		n = t.readNode(ptr)
	}
	return ptr, n
}

// relinkPredecessorLeaf repoints the NextLeaf of the leaf immediately
// before the one being deleted to newNext. The leaf being deleted is
// the leftmost child all the way up some prefix of stack (every frame
// with idx 0), so its predecessor lives in the left-sibling subtree of
// the first ancestor where the descent took a non-zero child index —
// its rightmost leaf. Only the NextLeaf field changes, so the rewrite
// is always the same encoded length and goes through
// UpdateBytesInPlace: the predecessor leaf's own pointer never moves,
// so no ancestor's child pointer needs to change either.
func (t *Tree) relinkPredecessorLeaf(stack []frame, newNext alloc.SlotPtr) {
	for j := len(stack) - 1; j >= 0; j-- {
		if stack[j].idx == 0 {
			continue
		}
		parent := t.readNode(stack[j].ptr)
		predPtr, pred := t.rightmostLeaf(parent.Children[stack[j].idx-1])
		pred.NextLeaf = newNext
		t.th.UpdateBytesInPlace(predPtr, encodeNode(pred))
		return
	}
	// No ancestor took a non-zero child index: n is the tree's first
	// leaf, so nothing points into it.
}

// mergeEmptyNode unlinks the empty leaf n from its parent, deleting n.
// A non-root parent left with a single child is itself replaced by
// that child in the grandparent.
func (t *Tree) mergeEmptyNode(ptr alloc.SlotPtr, n node, stack []frame) error {
	top := stack[len(stack)-1]
	parent := t.readNode(top.ptr)

	if n.IsLeaf {
		if top.idx > 0 {
			leftSibPtr, leftSib := t.rightmostLeaf(parent.Children[top.idx-1])
			leftSib.NextLeaf = n.NextLeaf
			t.th.UpdateBytesInPlace(leftSibPtr, encodeNode(leftSib))
		} else {
			t.relinkPredecessorLeaf(stack, n.NextLeaf)
		}
	}
	t.th.DeleteBytes(ptr)

	sepIdx := top.idx
	if sepIdx > 0 {
		sepIdx--
	}
	if sepIdx < len(parent.Keys) {
		parent.Keys = append(parent.Keys[:sepIdx], parent.Keys[sepIdx+1:]...)
	}
	parent.Children = append(parent.Children[:top.idx], parent.Children[top.idx+1:]...)

	grandStack := stack[:len(stack)-1]
	if len(grandStack) == 0 {
		if len(parent.Children) == 1 {
			t.root = parent.Children[0]
			return nil
		}
		newRootPtr := t.th.UpdateBytes(top.ptr, encodeNode(parent))
		t.root = newRootPtr
		return nil
	}
	if len(parent.Keys) == 0 {
		g := grandStack[len(grandStack)-1]
		grand := t.readNode(g.ptr)
		grand.Children[g.idx] = parent.Children[0]
		t.th.DeleteBytes(top.ptr)
		newGrandPtr := t.th.UpdateBytes(g.ptr, encodeNode(grand))
		return t.propagate(g.ptr, newGrandPtr, grandStack[:len(grandStack)-1])
	}
	newParentPtr := t.th.UpdateBytes(top.ptr, encodeNode(parent))
	return t.propagate(top.ptr, newParentPtr, grandStack)
}
