package mem

// Memory models the host memory system the allocator runs against: a single
// contiguous byte region addressed by offsets from HeapLo, which can only be
// grown at its high end.
type Memory interface {
	// Sbrk advances the arena break by incr bytes and returns the offset the
	// break held before the call. The break never moves backward; negative
	// increments must be refused.
	Sbrk(incr int) (int, error)
	// Bytes returns the current arena contents. The returned slice is only
	// valid until the next Sbrk call; offsets, by contrast, are stable.
	Bytes() []byte
	// HeapLo returns the offset of the first byte of the arena.
	HeapLo() int
	// HeapHi returns the offset of the last valid byte of the arena.
	HeapHi() int
	// HeapSize returns the current arena size in bytes.
	HeapSize() int
	// PageSize returns the host page size in bytes.
	PageSize() int
}
