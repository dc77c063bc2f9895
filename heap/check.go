package heap

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Validate walks the whole heap and the whole free index and returns an error
// describing the first broken invariant it finds. When the allocator is
// functioning correctly this cannot fail; it exists to catch implementation
// and client-misuse bugs close to where they happen.
func (a *Allocator) Validate() error {
	if a.heapStart == nullBlock {
		return cerrors.New("the allocator has not been initialized")
	}

	prologue := a.heapStart - wordSize
	prologueWord := a.wordAt(prologue)
	if prologue < a.mem.HeapLo() || extractSize(prologueWord) != 0 || !extractAlloc(prologueWord) {
		return cerrors.Errorf("the prologue at offset %d is damaged: size %d, allocated %t",
			prologue, extractSize(prologueWord), extractAlloc(prologueWord))
	}

	epilogue := a.epilogue()
	epilogueWord := a.wordAt(epilogue)
	if epilogue != a.mem.HeapHi()-wordSize+1 || extractSize(epilogueWord) != 0 || !extractAlloc(epilogueWord) {
		return cerrors.Errorf("the epilogue at offset %d is damaged: size %d, allocated %t",
			epilogue, extractSize(epilogueWord), extractAlloc(epilogueWord))
	}

	var sumSizes, allocCount, freeCount, freeBytes int

	// The prologue is allocated and not mini.
	prevAlloc := true
	prevMini := false

	for b := a.heapStart; b != epilogue; b = a.findNext(b) {
		h := a.header(b)
		size := extractSize(h)
		alloc := extractAlloc(h)

		if size < miniBlockSize || size%dWordSize != 0 {
			return cerrors.Errorf("block at offset %d has illegal size %d", b, size)
		}
		if b < a.heapStart || b+size > epilogue {
			return cerrors.Errorf("block at offset %d with size %d falls outside the heap", b, size)
		}
		if b%wordSize != 0 || int(payloadOf(b))%dWordSize != 0 {
			return cerrors.Errorf("block at offset %d has a misaligned payload", b)
		}
		if extractPrevAlloc(h) != prevAlloc {
			return cerrors.Errorf("block at offset %d has prev-alloc %t, but its predecessor's state is %t",
				b, extractPrevAlloc(h), prevAlloc)
		}
		if extractPrevMini(h) != prevMini {
			return cerrors.Errorf("block at offset %d has prev-mini %t, but its predecessor's mini-ness is %t",
				b, extractPrevMini(h), prevMini)
		}

		if alloc {
			allocCount++
		} else {
			if !prevAlloc {
				return cerrors.Errorf("free block at offset %d follows another free block, which should have been coalesced", b)
			}
			if size > miniBlockSize {
				footer := a.wordAt(b + size - wordSize)
				if footer != h {
					return cerrors.Errorf("free block at offset %d disagrees with its footer: header %#x, footer %#x",
						b, uint64(h), uint64(footer))
				}
			}
			freeCount++
			freeBytes += size
		}

		sumSizes += size
		prevAlloc = alloc
		prevMini = size == miniBlockSize
	}

	if extractPrevAlloc(epilogueWord) != prevAlloc || extractPrevMini(epilogueWord) != prevMini {
		return cerrors.Errorf("the epilogue's predecessor bits (%t, %t) do not match the heap tail (%t, %t)",
			extractPrevAlloc(epilogueWord), extractPrevMini(epilogueWord), prevAlloc, prevMini)
	}

	if managed := a.mem.HeapSize() - 2*wordSize; sumSizes != managed {
		return cerrors.Errorf("blocks between the sentinels add up to %d bytes, but the arena holds %d", sumSizes, managed)
	}
	if allocCount != a.allocCount {
		return cerrors.Errorf("the allocation count is %d, but the heap holds %d allocated blocks", a.allocCount, allocCount)
	}
	if freeCount != a.freeBlockCount {
		return cerrors.Errorf("the free block count is %d, but the heap holds %d free blocks", a.freeBlockCount, freeCount)
	}
	if freeBytes != a.freeBytes {
		return cerrors.Errorf("the free byte count is %d, but the heap's free blocks add up to %d", a.freeBytes, freeBytes)
	}

	if err := a.validateLiveRegistry(epilogue, allocCount); err != nil {
		return err
	}

	return a.validateFreeLists(epilogue, freeCount)
}

func (a *Allocator) validateLiveRegistry(epilogue, allocCount int) error {
	if a.live.Count() != allocCount {
		return cerrors.Errorf("the live registry holds %d entries, but the heap holds %d allocated blocks",
			a.live.Count(), allocCount)
	}

	var iterErr error
	a.live.Iter(func(p Pointer, requested int) bool {
		b := blockOf(p)
		if b < a.heapStart || b >= epilogue {
			iterErr = cerrors.Errorf("registered payload at offset %d falls outside the heap", p)
			return true
		}

		h := a.header(b)
		if !extractAlloc(h) {
			iterErr = cerrors.Errorf("registered payload at offset %d belongs to a free block", p)
			return true
		}
		if requested > extractSize(h)-wordSize {
			iterErr = cerrors.Errorf("registered payload at offset %d requested %d bytes, but its block only holds %d",
				p, requested, extractSize(h)-wordSize)
			return true
		}

		return false
	})

	return iterErr
}

func (a *Allocator) validateFreeLists(epilogue, heapFreeCount int) error {
	listCount := 0

	for b := a.seglist[0]; b != nullBlock; b = a.nextFree(b) {
		if b < a.heapStart || b >= epilogue {
			return cerrors.Errorf("mini bucket member at offset %d falls outside the heap", b)
		}
		if a.blockAlloc(b) {
			return cerrors.Errorf("mini bucket member at offset %d is not free", b)
		}
		if a.blockSize(b) != miniBlockSize {
			return cerrors.Errorf("mini bucket member at offset %d has size %d", b, a.blockSize(b))
		}
		listCount++
	}

	for class := 1; class < numClasses; class++ {
		head := a.seglist[class]
		if head != nullBlock && a.prevFree(head) != nullBlock {
			return cerrors.Errorf("the head of class %d at offset %d has a previous block", class, head)
		}

		count := 0
		tail := nullBlock

		for b := head; b != nullBlock; b = a.nextFree(b) {
			if b < a.heapStart || b >= epilogue {
				return cerrors.Errorf("class %d member at offset %d falls outside the heap", class, b)
			}
			if a.blockAlloc(b) {
				return cerrors.Errorf("class %d member at offset %d is not free", class, b)
			}
			if classOf(a.blockSize(b)) != class {
				return cerrors.Errorf("block at offset %d with size %d is filed under class %d, but belongs in class %d",
					b, a.blockSize(b), class, classOf(a.blockSize(b)))
			}

			next := a.nextFree(b)
			if next != nullBlock && a.prevFree(next) != b {
				return cerrors.Errorf("block at offset %d lists the block at offset %d as its next block, but the reverse reference is broken",
					b, next)
			}

			count++
			tail = b
		}

		for b := tail; b != nullBlock; b = a.prevFree(b) {
			count--
		}
		if count != 0 {
			return cerrors.Errorf("forward and backward traversals of class %d enumerate different block counts", class)
		}

		for b := head; b != nullBlock; b = a.nextFree(b) {
			listCount++
		}
	}

	if listCount != heapFreeCount {
		return cerrors.Errorf("the free index holds %d blocks, but the heap holds %d free blocks", listCount, heapFreeCount)
	}

	return nil
}

// CheckHeap runs Validate and reports the result as a boolean, logging any
// violation along with the caller's line number. It exists for test
// instrumentation that wants a yes/no answer instead of an error chain.
func (a *Allocator) CheckHeap(line int) bool {
	err := a.Validate()
	if err != nil {
		a.logger.Error("heap check failed", slog.Int("line", line), slog.Any("error", err))
		return false
	}
	return true
}
