package heap

import (
	"golang.org/x/exp/slog"

	"github.com/blockheap/segalloc"
)

// AddStatistics sums this heap's usage numbers into stats using only the
// allocator's counters; the heap itself is not walked.
func (a *Allocator) AddStatistics(stats *segalloc.Statistics) {
	managed := a.mem.HeapSize() - 2*wordSize

	stats.HeapCount++
	stats.AllocationCount += a.allocCount
	stats.HeapBytes += managed
	stats.AllocationBytes += managed - a.freeBytes
}

// AddDetailedStatistics walks every block and sums sizes and extrema into
// stats.
func (a *Allocator) AddDetailedStatistics(stats *segalloc.DetailedStatistics) {
	stats.HeapCount++
	stats.HeapBytes += a.mem.HeapSize() - 2*wordSize

	_ = a.VisitAllBlocks(func(offset, size int, allocated bool) error {
		if allocated {
			stats.AddAllocation(size)
		} else {
			stats.AddFreeRange(size)
		}
		return nil
	})
}

// DebugLogAllAllocations calls logFunc once per live allocation, passing the
// block offset, the block size, and the size the client originally requested
// (or -1 when the payload is not in the live registry).
func (a *Allocator) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset, size, requested int)) {
	_ = a.VisitAllBlocks(func(offset, size int, allocated bool) error {
		if !allocated {
			return nil
		}

		requested, ok := a.live.Get(payloadOf(offset))
		if !ok {
			requested = -1
		}
		logFunc(logger, offset, size, requested)
		return nil
	})
}
