package heap_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockheap/segalloc"
	"github.com/blockheap/segalloc/heap"
	"github.com/blockheap/segalloc/mem"
)

func newTestHeap(t *testing.T, options ...mem.ArenaOption) *heap.Allocator {
	t.Helper()

	arena, err := mem.NewArena(options...)
	require.NoError(t, err)

	allocator := heap.NewAllocator(arena)
	require.NoError(t, allocator.Init())

	return allocator
}

func TestInitLaysOutOneFreeChunk(t *testing.T) {
	allocator := newTestHeap(t)

	require.True(t, allocator.CheckHeap(0))
	require.True(t, allocator.IsEmpty())
	require.Equal(t, 1, allocator.FreeBlockCount())
	require.Equal(t, 4096, allocator.SumFreeSize())

	var stats segalloc.DetailedStatistics
	stats.Clear()
	allocator.AddDetailedStatistics(&stats)

	require.Equal(t, segalloc.DetailedStatistics{
		Statistics: segalloc.Statistics{
			HeapCount:       1,
			AllocationCount: 0,
			HeapBytes:       4096,
			AllocationBytes: 0,
		},
		FreeRangeCount:    1,
		AllocationSizeMin: math.MaxInt,
		AllocationSizeMax: 0,
		FreeRangeSizeMin:  4096,
		FreeRangeSizeMax:  4096,
	}, stats)
}

func TestAllocateFreeSmallest(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Allocate(1)
	require.NotEqual(t, heap.NullPointer, p)
	require.Zero(t, int(p)%16)
	require.Equal(t, 16, allocator.BlockSize(p))
	require.True(t, allocator.CheckHeap(0))

	requested, ok := allocator.RequestedSize(p)
	require.True(t, ok)
	require.Equal(t, 1, requested)

	allocator.Free(p)
	require.True(t, allocator.CheckHeap(0))
	require.True(t, allocator.IsEmpty())
}

func TestAllocateZeroReturnsNull(t *testing.T) {
	allocator := newTestHeap(t)

	require.Equal(t, heap.NullPointer, allocator.Allocate(0))
	require.True(t, allocator.CheckHeap(0))
}

func TestFreeNullIsANoOp(t *testing.T) {
	allocator := newTestHeap(t)

	allocator.Free(heap.NullPointer)
	require.True(t, allocator.CheckHeap(0))
}

func TestAdjacentFreesCoalesce(t *testing.T) {
	allocator := newTestHeap(t)

	p1 := allocator.Allocate(32)
	p2 := allocator.Allocate(32)
	require.NotEqual(t, heap.NullPointer, p1)
	require.NotEqual(t, heap.NullPointer, p2)

	allocator.Free(p1)
	allocator.Free(p2)

	require.True(t, allocator.CheckHeap(0))
	require.Equal(t, 1, allocator.FreeBlockCount())
	require.GreaterOrEqual(t, allocator.SumFreeSize(), 64)
}

func TestCoalesceAllFourCases(t *testing.T) {
	allocator := newTestHeap(t)

	// Pin four neighbouring blocks, with an allocated guard on each side of
	// the group so the surrounding free space stays out of the picture.
	var ps [6]heap.Pointer
	for i := range ps {
		ps[i] = allocator.Allocate(32)
		require.NotEqual(t, heap.NullPointer, ps[i])
	}

	baseline := allocator.FreeBlockCount()

	// Neither neighbour free.
	allocator.Free(ps[2])
	require.Equal(t, baseline+1, allocator.FreeBlockCount())
	require.True(t, allocator.CheckHeap(0))

	// Previous neighbour free.
	allocator.Free(ps[3])
	require.Equal(t, baseline+1, allocator.FreeBlockCount())
	require.True(t, allocator.CheckHeap(0))

	// Next neighbour free.
	allocator.Free(ps[1])
	require.Equal(t, baseline+1, allocator.FreeBlockCount())
	require.True(t, allocator.CheckHeap(0))

	// Both neighbours free: ps[4] is released with the merged run below it
	// and ps[5] (already merged into the trailing free space) above it.
	allocator.Free(ps[5])
	require.Equal(t, baseline+1, allocator.FreeBlockCount())
	allocator.Free(ps[4])
	require.Equal(t, 1, allocator.FreeBlockCount())
	require.Equal(t, 1, allocator.AllocationCount())
	require.True(t, allocator.CheckHeap(0))
}

func TestSeventeenBytePayloadsRoundToRegularBlocks(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Allocate(17)
	q := allocator.Allocate(17)
	require.Equal(t, 32, allocator.BlockSize(p))
	require.Equal(t, 32, allocator.BlockSize(q))

	allocator.Free(p)
	allocator.Free(q)
	require.True(t, allocator.CheckHeap(0))
}

func TestAllocateReusesFreedBlocks(t *testing.T) {
	allocator := newTestHeap(t)

	var ps [64]heap.Pointer
	for i := range ps {
		ps[i] = allocator.Allocate(64)
		require.NotEqual(t, heap.NullPointer, ps[i])
	}
	for i := 0; i < len(ps); i += 2 {
		allocator.Free(ps[i])
	}

	sizeBefore := allocator.Memory().HeapSize()

	p := allocator.Allocate(48)
	require.NotEqual(t, heap.NullPointer, p)
	require.Equal(t, sizeBefore, allocator.Memory().HeapSize())
	require.True(t, allocator.CheckHeap(0))
}

func TestReallocatePreservesContent(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Allocate(8)
	require.NotEqual(t, heap.NullPointer, p)
	copy(allocator.Bytes(p, 8), "01234567")

	q := allocator.Reallocate(p, 64)
	require.NotEqual(t, heap.NullPointer, q)
	require.Equal(t, []byte("01234567"), allocator.Bytes(q, 8))
	require.True(t, allocator.CheckHeap(0))
}

func TestReallocateNullAllocates(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Reallocate(heap.NullPointer, 100)
	require.NotEqual(t, heap.NullPointer, p)
	require.Equal(t, 1, allocator.AllocationCount())
}

func TestReallocateToZeroFrees(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Allocate(100)
	require.Equal(t, heap.NullPointer, allocator.Reallocate(p, 0))
	require.True(t, allocator.IsEmpty())
	require.True(t, allocator.CheckHeap(0))
}

func TestReallocateFailureLeavesOldBlockAlone(t *testing.T) {
	allocator := newTestHeap(t, mem.WithLimit(16+4096))

	p := allocator.Allocate(8)
	require.NotEqual(t, heap.NullPointer, p)
	copy(allocator.Bytes(p, 8), "payload!")

	require.Equal(t, heap.NullPointer, allocator.Reallocate(p, 1<<20))
	require.Equal(t, []byte("payload!"), allocator.Bytes(p, 8))
	require.Equal(t, 1, allocator.AllocationCount())
	require.True(t, allocator.CheckHeap(0))
}

func TestZeroedAllocateZeroesRecycledMemory(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Allocate(160)
	payload := allocator.Bytes(p, 160)
	for i := range payload {
		payload[i] = 0xA5
	}
	allocator.Free(p)

	q := allocator.ZeroedAllocate(10, 16)
	require.NotEqual(t, heap.NullPointer, q)
	for i, b := range allocator.Bytes(q, 160) {
		require.Zerof(t, b, "byte %d is not zero", i)
	}
	require.True(t, allocator.CheckHeap(0))
}

func TestZeroedAllocateRejectsBadArguments(t *testing.T) {
	allocator := newTestHeap(t)

	require.Equal(t, heap.NullPointer, allocator.ZeroedAllocate(0, 8))
	require.Equal(t, heap.NullPointer, allocator.ZeroedAllocate(math.MaxInt/2, 4))
	require.True(t, allocator.CheckHeap(0))
}

func TestAllocateOutOfMemory(t *testing.T) {
	allocator := newTestHeap(t, mem.WithLimit(16+4096))

	sizeBefore := allocator.Memory().HeapSize()
	freeBefore := allocator.SumFreeSize()

	require.Equal(t, heap.NullPointer, allocator.Allocate(8000))

	require.Equal(t, sizeBefore, allocator.Memory().HeapSize())
	require.Equal(t, freeBefore, allocator.SumFreeSize())
	require.True(t, allocator.CheckHeap(0))

	// The heap that is there keeps working.
	p := allocator.Allocate(64)
	require.NotEqual(t, heap.NullPointer, p)
}

func TestInitFailsWhenTheArenaIsTooSmall(t *testing.T) {
	arena, err := mem.NewArena(mem.WithLimit(8))
	require.NoError(t, err)
	require.Error(t, heap.NewAllocator(arena).Init())

	arena, err = mem.NewArena(mem.WithLimit(16))
	require.NoError(t, err)
	require.Error(t, heap.NewAllocator(arena).Init())
}

func TestStatisticsTrackAllocations(t *testing.T) {
	allocator := newTestHeap(t)

	p := allocator.Allocate(100)
	require.NotEqual(t, heap.NullPointer, p)

	var stats segalloc.DetailedStatistics
	stats.Clear()
	allocator.AddDetailedStatistics(&stats)

	require.Equal(t, segalloc.DetailedStatistics{
		Statistics: segalloc.Statistics{
			HeapCount:       1,
			AllocationCount: 1,
			HeapBytes:       4096,
			AllocationBytes: 112,
		},
		FreeRangeCount:    1,
		AllocationSizeMin: 112,
		AllocationSizeMax: 112,
		FreeRangeSizeMin:  3984,
		FreeRangeSizeMax:  3984,
	}, stats)

	var basic segalloc.Statistics
	basic.Clear()
	allocator.AddStatistics(&basic)
	require.Equal(t, stats.Statistics, basic)
}

func TestClearFreesEverything(t *testing.T) {
	allocator := newTestHeap(t)

	for i := 0; i < 20; i++ {
		require.NotEqual(t, heap.NullPointer, allocator.Allocate(100))
	}

	allocator.Clear()

	require.True(t, allocator.IsEmpty())
	require.Equal(t, 1, allocator.FreeBlockCount())
	require.Equal(t, allocator.Memory().HeapSize()-16, allocator.SumFreeSize())
	require.True(t, allocator.CheckHeap(0))

	p := allocator.Allocate(64)
	require.NotEqual(t, heap.NullPointer, p)
}
