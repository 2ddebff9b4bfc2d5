// Package linklist implements the flat-array intrusive doubly-linked
// list structure used by the buffer pool's LRU chain and hash-table
// chaining (spec.md §4.3): L disjoint circular lists share one index
// space, [0,N) for elements and [N,N+L) for list sentinels.
package linklist

import "fmt"

const null = -1

// LinkList holds N elements and L list sentinels in one flat index
// space. Index i in [0,N) is an element; index N+list is the sentinel
// (head/tail marker) of list `list`.
type LinkList struct {
	prev []int
	next []int
	n    int
	l    int
}

// New creates a LinkList over n elements and l lists. Every list starts
// empty and every element starts detached (not a member of any list).
func New(n, l int) *LinkList {
	if n < 0 || l <= 0 {
		panic(fmt.Sprintf("linklist: invalid n=%d l=%d", n, l))
	}
	ll := &LinkList{
		prev: make([]int, n+l),
		next: make([]int, n+l),
		n:    n,
		l:    l,
	}
	for list := 0; list < l; list++ {
		s := ll.sentinel(list)
		ll.prev[s] = s
		ll.next[s] = s
	}
	for i := 0; i < n; i++ {
		ll.prev[i] = null
		ll.next[i] = null
	}
	return ll
}

func (ll *LinkList) sentinel(list int) int { return ll.n + list }

func (ll *LinkList) checkElem(elem int) {
	if elem < 0 || elem >= ll.n {
		panic(fmt.Sprintf("linklist: element %d out of range [0,%d)", elem, ll.n))
	}
}

func (ll *LinkList) checkList(list int) {
	if list < 0 || list >= ll.l {
		panic(fmt.Sprintf("linklist: list %d out of range [0,%d)", list, ll.l))
	}
}

// IsHead reports whether idx is a list sentinel rather than a real
// element (used when walking a list with Next until it comes back to
// the sentinel).
func (ll *LinkList) IsHead(idx int) bool {
	return idx >= ll.n
}

// InsertFirst links elem at the head of `list`. elem must currently be
// detached.
func (ll *LinkList) InsertFirst(list, elem int) {
	ll.checkList(list)
	ll.checkElem(elem)
	s := ll.sentinel(list)
	ll.linkAfter(s, elem)
}

// Insert links elem at the tail of `list`. elem must currently be
// detached.
func (ll *LinkList) Insert(list, elem int) {
	ll.checkList(list)
	ll.checkElem(elem)
	s := ll.sentinel(list)
	ll.linkAfter(ll.prev[s], elem)
}

// linkAfter splices elem into the ring immediately after `after`.
func (ll *LinkList) linkAfter(after, elem int) {
	nxt := ll.next[after]
	ll.next[after] = elem
	ll.prev[elem] = after
	ll.next[elem] = nxt
	ll.prev[nxt] = elem
}

// Del removes elem from whatever list it currently belongs to and
// marks it detached.
func (ll *LinkList) Del(elem int) {
	ll.checkElem(elem)
	p, nx := ll.prev[elem], ll.next[elem]
	if p == null && nx == null {
		return // already detached
	}
	ll.next[p] = nx
	ll.prev[nx] = p
	ll.prev[elem] = null
	ll.next[elem] = null
}

// GetFirst returns the first element of `list`, or -1 if the list is
// empty.
func (ll *LinkList) GetFirst(list int) int {
	ll.checkList(list)
	s := ll.sentinel(list)
	first := ll.next[s]
	if first == s {
		return null
	}
	return first
}

// GetLast returns the last element of `list`, or -1 if empty.
func (ll *LinkList) GetLast(list int) int {
	ll.checkList(list)
	s := ll.sentinel(list)
	last := ll.prev[s]
	if last == s {
		return null
	}
	return last
}

// Next returns the next element after idx within its list; the
// sentinel is returned (and IsHead reports true for it) once iteration
// wraps back to the start.
func (ll *LinkList) Next(idx int) int {
	if idx < 0 || idx >= ll.n+ll.l {
		panic(fmt.Sprintf("linklist: index %d out of range", idx))
	}
	return ll.next[idx]
}

// MoveToTail detaches elem and reinserts it at the tail of `list`
// (used by the buffer pool's LRU to mark a frame as most-recently-used).
func (ll *LinkList) MoveToTail(list, elem int) {
	ll.Del(elem)
	ll.Insert(list, elem)
}
