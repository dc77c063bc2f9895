package heap

import (
	"github.com/blockheap/segalloc"
)

// splitBlock carves a free remainder off the tail of the allocated block b,
// leaving b holding exactly asize bytes. Returns the remainder, or nullBlock
// when the residue would be smaller than a minimum block and b is left whole.
func (a *Allocator) splitBlock(b, asize int) int {
	size := a.blockSize(b)
	prevAlloc := a.blockPrevAlloc(b)
	prevMini := a.blockPrevMini(b)

	if size-asize < minBlockSize {
		return nullBlock
	}

	remainder := b + asize
	a.writeBlock(remainder, size-asize, false, true, asize == miniBlockSize)
	a.writeBlock(b, asize, true, prevAlloc, prevMini)

	return remainder
}

// findFit selects a free block for an adjusted request of asize bytes using a
// bounded best fit: within each class, up to fitScanBudget blocks that are
// large enough are compared and the smallest wins, with ties going to the one
// seen first. A mini request is served straight from the head of bucket 0
// when it has one, since every mini block is an exact fit.
func (a *Allocator) findFit(asize int) int {
	class := classOf(asize)
	if class == 0 && a.seglist[0] != nullBlock {
		return a.seglist[0]
	}

	for ; class < numClasses; class++ {
		best := nullBlock
		budget := fitScanBudget

		for b := a.seglist[class]; b != nullBlock && budget > 0; b = a.nextFree(b) {
			if asize <= a.blockSize(b) {
				if best == nullBlock || a.blockSize(b) < a.blockSize(best) {
					best = b
				}
				budget--
			}
		}

		if best != nullBlock {
			return best
		}
	}

	return nullBlock
}

// extendHeap grows the arena by at least size bytes and installs the new
// region as a free block where the old epilogue used to sit, coalescing with
// the previous heap tail when that tail is free. The resulting block is
// inserted into the free index and returned. On growth failure nothing is
// mutated and the error from the host memory system is returned.
func (a *Allocator) extendHeap(size int) (int, error) {
	epilogue := a.epilogue()
	prevAlloc := a.blockPrevAlloc(epilogue)
	prevMini := a.blockPrevMini(epilogue)

	size = segalloc.RoundUp(size, dWordSize)
	if _, err := a.mem.Sbrk(size); err != nil {
		return nullBlock, err
	}

	// The old epilogue word becomes the new block's header.
	b := epilogue
	a.writeEpilogue(b + size)
	a.writeBlock(b, size, false, prevAlloc, prevMini)

	b = a.coalesce(b)
	a.insertFree(b)

	return b, nil
}
