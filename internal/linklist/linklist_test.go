package linklist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndOrder(t *testing.T) {
	ll := New(5, 1)
	ll.Insert(0, 0)
	ll.Insert(0, 1)
	ll.Insert(0, 2)

	var order []int
	for e := ll.GetFirst(0); !ll.IsHead(e); e = ll.Next(e) {
		order = append(order, e)
	}
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestInsertFirst(t *testing.T) {
	ll := New(5, 1)
	ll.Insert(0, 0)
	ll.InsertFirst(0, 1)
	require.Equal(t, 1, ll.GetFirst(0))
	require.Equal(t, 0, ll.GetLast(0))
}

func TestDelMiddle(t *testing.T) {
	ll := New(5, 1)
	ll.Insert(0, 0)
	ll.Insert(0, 1)
	ll.Insert(0, 2)
	ll.Del(1)

	var order []int
	for e := ll.GetFirst(0); !ll.IsHead(e); e = ll.Next(e) {
		order = append(order, e)
	}
	require.Equal(t, []int{0, 2}, order)
}

func TestMoveToTail(t *testing.T) {
	ll := New(3, 1)
	ll.Insert(0, 0)
	ll.Insert(0, 1)
	ll.Insert(0, 2)
	ll.MoveToTail(0, 0)

	var order []int
	for e := ll.GetFirst(0); !ll.IsHead(e); e = ll.Next(e) {
		order = append(order, e)
	}
	require.Equal(t, []int{1, 2, 0}, order)
}

func TestDisjointLists(t *testing.T) {
	ll := New(4, 2)
	ll.Insert(0, 0)
	ll.Insert(0, 1)
	ll.Insert(1, 2)
	ll.Insert(1, 3)

	require.Equal(t, 0, ll.GetFirst(0))
	require.Equal(t, 2, ll.GetFirst(1))
}

func TestEmptyListGetFirst(t *testing.T) {
	ll := New(3, 1)
	require.Equal(t, -1, ll.GetFirst(0))
}
