package segalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockheap/segalloc"
)

func TestDetailedStatisticsTrackExtrema(t *testing.T) {
	var stats segalloc.DetailedStatistics
	stats.Clear()

	stats.AddAllocation(100)
	stats.AddAllocation(300)
	stats.AddFreeRange(50)

	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 400, stats.AllocationBytes)
	require.Equal(t, 100, stats.AllocationSizeMin)
	require.Equal(t, 300, stats.AllocationSizeMax)
	require.Equal(t, 1, stats.FreeRangeCount)
	require.Equal(t, 50, stats.FreeRangeSizeMin)
	require.Equal(t, 50, stats.FreeRangeSizeMax)
}

func TestDetailedStatisticsMerge(t *testing.T) {
	var a, b segalloc.DetailedStatistics
	a.Clear()
	b.Clear()

	a.HeapCount = 1
	a.HeapBytes = 4096
	a.AddAllocation(128)
	b.HeapCount = 1
	b.HeapBytes = 8192
	b.AddAllocation(64)
	b.AddFreeRange(1024)

	a.AddDetailedStatistics(&b)

	require.Equal(t, segalloc.DetailedStatistics{
		Statistics: segalloc.Statistics{
			HeapCount:       2,
			AllocationCount: 2,
			HeapBytes:       12288,
			AllocationBytes: 192,
		},
		FreeRangeCount:    1,
		AllocationSizeMin: 64,
		AllocationSizeMax: 128,
		FreeRangeSizeMin:  1024,
		FreeRangeSizeMax:  1024,
	}, a)
}
