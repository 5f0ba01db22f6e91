package memutils

import "github.com/pkg/errors"

var (
	// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	PowerOfTwoError error = errors.New("number must be a power of two")
	// ErrOutOfMemory is returned when no free block in the arena is large enough for a request. It is
	// recoverable: the arena is left untouched and the caller may release memory and try again.
	ErrOutOfMemory error = errors.New("no free block large enough for the request")
	// ErrInvalidSize is returned when an allocation or layout size cannot be represented in the arena
	ErrInvalidSize error = errors.New("invalid allocation size")
	// ErrInvalidHandle is returned when a handle was never issued by the heap, or was issued before the
	// most recent reset
	ErrInvalidHandle error = errors.New("handle does not map to a block in this heap")
	// ErrDoubleRelease is returned when a handle is released after its block has already been released
	ErrDoubleRelease error = errors.New("block has already been released")
)
