package vmalloc

import "errors"

var (
	// ErrHeapInit wraps the reason the heap region could not be built. The
	// next use of the heap tries again.
	ErrHeapInit = errors.New("vmalloc: heap initialization failed")

	// ErrHeapReady is returned when the heap is reconfigured after its first use.
	ErrHeapReady = errors.New("vmalloc: heap already initialized")

	// ErrHeapClose is returned when closing the heap region.
	ErrHeapClose = errors.New("vmalloc: heap region cannot be closed")

	// ErrBadAddr is returned for an address the region did not hand out.
	ErrBadAddr = errors.New("vmalloc: address not allocated from region")

	// ErrBadAlign is returned for an alignment that is not a power of two.
	ErrBadAlign = errors.New("vmalloc: alignment must be a power of two")

	// ErrNoSpace is returned when a block cannot be resized without moving
	// and Move was not given.
	ErrNoSpace = errors.New("vmalloc: no space to resize in place")

	// ErrTooLarge is returned for a size that cannot be represented once
	// rounded and aligned.
	ErrTooLarge = errors.New("vmalloc: request too large")

	// ErrClosed is returned by a region after Close.
	ErrClosed = errors.New("vmalloc: region closed")
)
