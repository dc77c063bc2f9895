package mem

import (
	"math"
	"os"

	cerrors "github.com/cockroachdb/errors"

	"github.com/blockheap/segalloc"
)

// ArenaOption is passed to NewArena to adjust arena behavior.
type ArenaOption func(a *Arena)

// WithLimit caps the arena at limit bytes in total. Sbrk calls that would move
// the break past the limit fail without changing the arena.
func WithLimit(limit int) ArenaOption {
	return func(a *Arena) {
		a.limit = limit
	}
}

// WithPageSize overrides the page size the arena reports. The value must be a
// power of two.
func WithPageSize(pageSize int) ArenaOption {
	return func(a *Arena) {
		a.pageSize = pageSize
	}
}

// Arena is a slice-backed Memory implementation. It is the moral equivalent of
// an sbrk heap: growth extends the slice with zeroed bytes and the break only
// ever advances.
type Arena struct {
	buf      []byte
	limit    int
	pageSize int
}

var _ Memory = &Arena{}

// NewArena creates an empty arena. By default the arena is unbounded and
// reports the operating system page size.
func NewArena(options ...ArenaOption) (*Arena, error) {
	arena := &Arena{
		limit:    math.MaxInt,
		pageSize: os.Getpagesize(),
	}

	for _, option := range options {
		option(arena)
	}

	err := segalloc.CheckPow2(uint(arena.pageSize), "arena page size")
	if err != nil {
		return nil, err
	}

	return arena, nil
}

func (a *Arena) Sbrk(incr int) (int, error) {
	if incr < 0 {
		return 0, cerrors.Wrapf(segalloc.ShrinkError, "requested increment is %d", incr)
	}

	oldBreak := len(a.buf)
	if oldBreak+incr > a.limit {
		return 0, cerrors.Wrapf(segalloc.OutOfMemoryError,
			"break at %d cannot advance %d bytes past the %d-byte limit", oldBreak, incr, a.limit)
	}

	a.buf = append(a.buf, make([]byte, incr)...)
	return oldBreak, nil
}

func (a *Arena) Bytes() []byte {
	return a.buf
}

func (a *Arena) HeapLo() int {
	return 0
}

func (a *Arena) HeapHi() int {
	return len(a.buf) - 1
}

func (a *Arena) HeapSize() int {
	return len(a.buf)
}

func (a *Arena) PageSize() int {
	return a.pageSize
}
