package heap

import "encoding/binary"

// Pointer identifies an allocated payload by its byte offset within the arena.
// The zero value is the null pointer: offset 0 always holds the prologue
// footer, so no payload can ever live there.
type Pointer int

// NullPointer is returned by allocation methods on failure and accepted as a
// no-op by Free.
const NullPointer Pointer = 0

// nullBlock plays the same role for block references, which are header
// offsets. The first real header sits one word past the prologue footer, so
// offset 0 never names a block.
const nullBlock = 0

func payloadOf(b int) Pointer {
	return Pointer(b + wordSize)
}

func blockOf(p Pointer) int {
	return int(p) - wordSize
}

func (a *Allocator) wordAt(offset int) word {
	return word(binary.LittleEndian.Uint64(a.mem.Bytes()[offset:]))
}

func (a *Allocator) setWordAt(offset int, w word) {
	binary.LittleEndian.PutUint64(a.mem.Bytes()[offset:], uint64(w))
}

func (a *Allocator) header(b int) word {
	return a.wordAt(b)
}

func (a *Allocator) blockSize(b int) int {
	return extractSize(a.header(b))
}

func (a *Allocator) blockAlloc(b int) bool {
	return extractAlloc(a.header(b))
}

func (a *Allocator) blockPrevAlloc(b int) bool {
	return extractPrevAlloc(a.header(b))
}

func (a *Allocator) blockPrevMini(b int) bool {
	return extractPrevMini(a.header(b))
}

// payloadCapacity is the number of payload bytes the block can hold: the block
// size minus its header word. Allocated blocks carry no footer.
func (a *Allocator) payloadCapacity(b int) int {
	return a.blockSize(b) - wordSize
}

// epilogue returns the offset of the current epilogue header, which always
// occupies the last word of the arena.
func (a *Allocator) epilogue() int {
	return a.mem.HeapSize() - wordSize
}

// findNext returns the block immediately above b on the heap. Not defined on
// the epilogue.
func (a *Allocator) findNext(b int) int {
	return b + a.blockSize(b)
}

// findPrev returns the block immediately below b on the heap. A mini
// predecessor is found through b's prev-mini bit, since mini blocks carry no
// footer; any other predecessor is recovered from its footer word. Returns
// nullBlock when the word below is the prologue.
func (a *Allocator) findPrev(b int) int {
	if a.blockPrevMini(b) {
		return b - miniBlockSize
	}

	footer := a.wordAt(b - wordSize)
	if extractSize(footer) == 0 {
		return nullBlock
	}

	return b - extractSize(footer)
}

// writeTrailingBits rewrites b's prev-alloc and prev-mini bits, leaving its
// size and allocation state alone. If b is a free non-mini block its footer is
// refreshed as well, keeping header and footer bit-identical.
func (a *Allocator) writeTrailingBits(b int, prevAlloc, prevMini bool) {
	h := a.header(b)
	size := extractSize(h)
	alloc := extractAlloc(h)

	packed := pack(size, alloc, prevAlloc, prevMini)
	a.setWordAt(b, packed)
	if !alloc && size > miniBlockSize {
		a.setWordAt(b+size-wordSize, packed)
	}
}

// writeBlock installs a block of the given size and state at b and pushes b's
// allocation state and mini-ness into the successor's header. Every routine
// that changes a block's allocation status goes through here, which is what
// keeps invariant 4 standing.
func (a *Allocator) writeBlock(b, size int, alloc, prevAlloc, prevMini bool) {
	packed := pack(size, alloc, prevAlloc, prevMini)
	mini := size == miniBlockSize

	a.setWordAt(b, packed)
	if !alloc && !mini {
		a.setWordAt(b+size-wordSize, packed)
	}

	a.writeTrailingBits(b+size, alloc, mini)
}

// writeEpilogue installs a fresh epilogue header at b. The predecessor bits
// are filled in afterward by the writeBlock call that installs the block
// below it.
func (a *Allocator) writeEpilogue(b int) {
	a.setWordAt(b, pack(0, true, false, false))
}
