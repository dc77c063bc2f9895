package heap

// coalesce merges a newly freed block with whichever of its heap neighbours
// are free, removing the absorbed neighbours from the free index. b must
// already be marked free with its trailing bits pushed into the successor.
// The merged block is returned without being inserted anywhere; the prologue
// and epilogue sentinels are allocated, so the heap edges need no special
// casing beyond the prev-alloc bit itself.
func (a *Allocator) coalesce(b int) int {
	next := a.findNext(b)

	size := a.blockSize(b)
	nextSize := a.blockSize(next)
	prevAlloc := a.blockPrevAlloc(b)
	prevMini := a.blockPrevMini(b)
	nextFreeBlock := !a.blockAlloc(next)

	if prevAlloc && !nextFreeBlock {
		return b
	}

	if prevAlloc {
		// next only
		a.removeFree(next)
		a.writeBlock(b, size+nextSize, false, prevAlloc, prevMini)
		return b
	}

	prev := a.findPrev(b)
	prevSize := a.blockSize(prev)
	prevPrevAlloc := a.blockPrevAlloc(prev)
	prevPrevMini := a.blockPrevMini(prev)

	if nextFreeBlock {
		// both sides
		a.removeFree(prev)
		a.removeFree(next)
		a.writeBlock(prev, prevSize+size+nextSize, false, prevPrevAlloc, prevPrevMini)
	} else {
		// prev only
		a.removeFree(prev)
		a.writeBlock(prev, prevSize+size, false, prevPrevAlloc, prevPrevMini)
	}

	return prev
}
