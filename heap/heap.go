package heap

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/blockheap/segalloc"
	"github.com/blockheap/segalloc/mem"
)

// Option adjusts Allocator construction.
type Option func(a *Allocator)

// WithLogger routes heap-check diagnostics and debug logging through the
// provided logger instead of slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

// Allocator is a segregated-fit heap over a grow-only arena. Blocks carry
// their metadata in-band: a packed header word, a footer on free non-mini
// blocks, and free-list links in the payload area of free blocks. The
// allocator itself holds only the bucket heads, counters, and a registry of
// live payloads.
//
// An Allocator is not safe for concurrent use.
type Allocator struct {
	mem    mem.Memory
	logger *slog.Logger

	heapStart int
	seglist   [numClasses]int

	allocCount     int
	freeBlockCount int
	freeBytes      int

	live *swiss.Map[Pointer, int]
}

var _ segalloc.Validatable = &Allocator{}

// NewAllocator creates an allocator over the provided memory system. Init
// must be called before any allocation.
func NewAllocator(memory mem.Memory, options ...Option) *Allocator {
	a := &Allocator{
		mem:    memory,
		logger: slog.Default(),
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// Init lays down the prologue and epilogue sentinels on a fresh arena, clears
// the free index, and grows the heap by one chunk. It fails if the host
// memory system refuses either request, and must only be re-run against a
// fresh arena.
func (a *Allocator) Init() error {
	start, err := a.mem.Sbrk(2 * wordSize)
	if err != nil {
		return cerrors.Wrap(err, "could not reserve room for the heap sentinels")
	}

	a.setWordAt(start, pack(0, true, false, false))
	a.setWordAt(start+wordSize, pack(0, true, true, false))

	// The first real block will be written over the epilogue when the heap
	// grows.
	a.heapStart = start + wordSize

	for i := range a.seglist {
		a.seglist[i] = nullBlock
	}
	a.allocCount = 0
	a.freeBlockCount = 0
	a.freeBytes = 0
	a.live = swiss.NewMap[Pointer, int](42)

	if _, err := a.extendHeap(chunkSize); err != nil {
		return cerrors.Wrap(err, "could not grow the fresh heap by its first chunk")
	}

	return nil
}

// adjustedSize converts a requested payload size into a conformant block
// size: payloads of up to one word fit a mini block, and everything else is a
// header word plus the payload, rounded up to the alignment quantum.
func adjustedSize(size int) int {
	if size <= wordSize {
		return miniBlockSize
	}
	return segalloc.RoundUp(size+wordSize, dWordSize)
}

// Allocate returns a pointer to a payload of at least size bytes, aligned to
// a double word, or NullPointer when size is zero or the arena cannot grow.
func (a *Allocator) Allocate(size int) Pointer {
	segalloc.DebugValidate(a)

	if size <= 0 {
		return NullPointer
	}

	asize := adjustedSize(size)
	if asize < miniBlockSize {
		// size + overhead overflowed
		return NullPointer
	}

	b := a.findFit(asize)
	if b == nullBlock {
		var err error
		b, err = a.extendHeap(segalloc.Max(asize, chunkSize))
		if err != nil {
			return NullPointer
		}
	}

	// Mark the block allocated first; its size and links are intact, so it
	// can still be unhooked from its bucket afterward.
	blockSize := a.blockSize(b)
	a.writeBlock(b, blockSize, true, a.blockPrevAlloc(b), a.blockPrevMini(b))
	a.removeFree(b)

	if remainder := a.splitBlock(b, asize); remainder != nullBlock {
		a.insertFree(remainder)
	}

	a.allocCount++
	p := payloadOf(b)
	a.live.Put(p, size)

	segalloc.DebugValidate(a)
	return p
}

// Free releases the payload at p. Passing NullPointer is a no-op. The block
// is merged with any free neighbours before rejoining the free index.
func (a *Allocator) Free(p Pointer) {
	segalloc.DebugValidate(a)

	if p == NullPointer {
		return
	}

	b := blockOf(p)
	a.writeBlock(b, a.blockSize(b), false, a.blockPrevAlloc(b), a.blockPrevMini(b))

	b = a.coalesce(b)
	a.insertFree(b)

	a.allocCount--
	a.live.Delete(p)

	segalloc.DebugValidate(a)
}

// Reallocate resizes the allocation at p to size bytes by allocating fresh
// space, copying the smaller of the new size and the old payload capacity,
// and freeing the old block. A zero size frees p; a null p allocates. When
// the new allocation fails, the old block is untouched and NullPointer is
// returned. No in-place growth is attempted.
func (a *Allocator) Reallocate(p Pointer, size int) Pointer {
	if size <= 0 {
		a.Free(p)
		return NullPointer
	}

	if p == NullPointer {
		return a.Allocate(size)
	}

	newP := a.Allocate(size)
	if newP == NullPointer {
		return NullPointer
	}

	copySize := segalloc.Min(size, a.payloadCapacity(blockOf(p)))
	copy(a.Bytes(newP, copySize), a.Bytes(p, copySize))

	a.Free(p)
	return newP
}

// ZeroedAllocate allocates count*size bytes and zeroes them. A zero count or
// a multiplicative overflow yields NullPointer.
func (a *Allocator) ZeroedAllocate(count, size int) Pointer {
	if count <= 0 || size < 0 {
		return NullPointer
	}

	total := count * size
	if size != 0 && total/count != size {
		return NullPointer
	}

	p := a.Allocate(total)
	if p == NullPointer {
		return NullPointer
	}

	// The block may be carrying stale bytes from an earlier life.
	payload := a.Bytes(p, total)
	for i := range payload {
		payload[i] = 0
	}

	return p
}

// Clear instantly frees every allocation, rewriting the arena as a single
// free block spanning prologue to epilogue. The arena itself keeps its size.
func (a *Allocator) Clear() {
	for i := range a.seglist {
		a.seglist[i] = nullBlock
	}
	a.allocCount = 0
	a.freeBlockCount = 0
	a.freeBytes = 0
	a.live = swiss.NewMap[Pointer, int](42)

	epilogue := a.epilogue()
	a.writeEpilogue(epilogue)
	a.writeBlock(a.heapStart, epilogue-a.heapStart, false, true, false)
	a.insertFree(a.heapStart)
}

// Bytes returns a view of n payload bytes at p. The view is invalidated by
// the next operation that grows the heap; the Pointer itself stays valid.
func (a *Allocator) Bytes(p Pointer, n int) []byte {
	return a.mem.Bytes()[int(p) : int(p)+n]
}

// PayloadCapacity returns the number of usable payload bytes behind p, which
// is at least the size that was requested.
func (a *Allocator) PayloadCapacity(p Pointer) int {
	return a.payloadCapacity(blockOf(p))
}

// BlockSize returns the full block size behind p, header included.
func (a *Allocator) BlockSize(p Pointer) int {
	return a.blockSize(blockOf(p))
}

// RequestedSize returns the size originally requested for the live
// allocation at p, and whether p is a live allocation at all.
func (a *Allocator) RequestedSize(p Pointer) (int, bool) {
	return a.live.Get(p)
}

// AllocationCount returns the number of live allocations.
func (a *Allocator) AllocationCount() int {
	return a.allocCount
}

// FreeBlockCount returns the number of blocks in the free index.
func (a *Allocator) FreeBlockCount() int {
	return a.freeBlockCount
}

// SumFreeSize returns the number of bytes held in free blocks.
func (a *Allocator) SumFreeSize() int {
	return a.freeBytes
}

// IsEmpty returns true when the heap has no live allocations.
func (a *Allocator) IsEmpty() bool {
	return a.allocCount == 0
}

// Memory returns the host memory system the allocator runs against.
func (a *Allocator) Memory() mem.Memory {
	return a.mem
}

// VisitAllBlocks calls visit once per block between prologue and epilogue, in
// heap order.
func (a *Allocator) VisitAllBlocks(visit func(offset, size int, allocated bool) error) error {
	epilogue := a.epilogue()
	for b := a.heapStart; b != epilogue; b = a.findNext(b) {
		if err := visit(b, a.blockSize(b), a.blockAlloc(b)); err != nil {
			return err
		}
	}
	return nil
}
