package heap

import "fmt"

// classOf maps a block size to its segregated-list bucket. Bucket 0 holds mini
// blocks only; bucket k for k >= 1 holds sizes in (2^(k+3), 2^(k+4)], with the
// last bucket unbounded.
func classOf(size int) int {
	if size <= miniBlockSize {
		return 0
	}

	threshold := 2 * miniBlockSize
	for class := 1; class < numClasses-1; class++ {
		if size <= threshold {
			return class
		}
		threshold <<= 1
	}

	return numClasses - 1
}

// Free-list links live in the payload area of free blocks: the next link in
// the first payload word, and, for regular blocks only, the prev link in the
// second. Mini blocks have a single payload word and are singly linked.

func (a *Allocator) nextFree(b int) int {
	return int(a.wordAt(b + wordSize))
}

func (a *Allocator) setNextFree(b, next int) {
	a.setWordAt(b+wordSize, word(next))
}

func (a *Allocator) prevFree(b int) int {
	return int(a.wordAt(b + dWordSize))
}

func (a *Allocator) setPrevFree(b, prev int) {
	a.setWordAt(b+dWordSize, word(prev))
}

// insertFree prepends b to the bucket for its size. b must be free, not
// present in any bucket, and have its final size already written.
func (a *Allocator) insertFree(b int) {
	size := a.blockSize(b)
	class := classOf(size)
	head := a.seglist[class]

	a.setNextFree(b, head)
	if size > miniBlockSize {
		a.setPrevFree(b, nullBlock)
		if head != nullBlock {
			a.setPrevFree(head, b)
		}
	}

	a.seglist[class] = b
	a.freeBlockCount++
	a.freeBytes += size
}

// removeFree unlinks b from the bucket for its size. The mini bucket is singly
// linked, so removal walks from the head to find b's predecessor.
func (a *Allocator) removeFree(b int) {
	size := a.blockSize(b)
	class := classOf(size)
	head := a.seglist[class]

	if head == nullBlock {
		panic(fmt.Sprintf("block at offset %d maps to size class %d, but that class is empty", b, class))
	}

	if size == miniBlockSize {
		if head == b {
			a.seglist[class] = a.nextFree(b)
		} else {
			prev := head
			for prev != nullBlock && a.nextFree(prev) != b {
				prev = a.nextFree(prev)
			}
			if prev == nullBlock {
				panic(fmt.Sprintf("mini block at offset %d is not in the mini bucket", b))
			}
			a.setNextFree(prev, a.nextFree(b))
		}
	} else {
		next := a.nextFree(b)
		prev := a.prevFree(b)

		if prev != nullBlock {
			a.setNextFree(prev, next)
		} else {
			if head != b {
				panic(fmt.Sprintf("block at offset %d has no prev link but is not the head of class %d", b, class))
			}
			a.seglist[class] = next
		}
		if next != nullBlock {
			a.setPrevFree(next, prev)
		}
	}

	a.freeBlockCount--
	a.freeBytes -= size
}
