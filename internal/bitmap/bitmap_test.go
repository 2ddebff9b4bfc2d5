package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindLeftOneAllFree(t *testing.T) {
	b := New(128, true)
	require.Equal(t, 0, b.FindLeftOne())
}

func TestSetBitThenFindSkipsUsed(t *testing.T) {
	b := New(128, true)
	for i := 0; i < 5; i++ {
		b.SetBit(i, 0)
	}
	require.Equal(t, 5, b.FindLeftOne())
}

func TestSetBitAcrossWordBoundary(t *testing.T) {
	b := New(256, true)
	for i := 0; i < 64; i++ {
		b.SetBit(i, 0)
	}
	require.Equal(t, 64, b.FindLeftOne())
}

func TestSetBitClearRestoresFree(t *testing.T) {
	b := New(128, true)
	b.SetBit(0, 0)
	b.SetBit(1, 0)
	require.Equal(t, 2, b.FindLeftOne())
	b.SetBit(0, 1)
	require.Equal(t, 0, b.FindLeftOne())
}

func TestFindLeftOneAcrossMultipleLevels(t *testing.T) {
	// 4096 indices forces three levels of words (128 -> 4 -> 1).
	b := New(4096, false)
	free := 3333
	b.SetBit(free, 1)
	require.Equal(t, free, b.FindLeftOne())
}

func TestFindLeftOnePanicsWhenFull(t *testing.T) {
	b := New(32, false)
	require.Panics(t, func() { b.FindLeftOne() })
}
