package segalloc

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is the error returned when the host memory system refuses to grow the arena any further
var OutOfMemoryError error = errors.New("arena cannot grow any further")

// ShrinkError is the error returned when a negative increment is passed to Memory.Sbrk- the arena break
// only moves forward
var ShrinkError error = errors.New("the arena break cannot move backward")
