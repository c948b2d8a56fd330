// Package osmem provides the host primitives raw memory is obtained from.
//
// Every platform implements Host. The remaining interfaces are capabilities:
// a platform implements only those it actually has, and the memory package
// builds its backend table by asserting for them.
package osmem

import (
	"errors"
	"os"
	"syscall"
)

// Host is the part of the platform every backend depends on.
type Host interface {
	// PageSize is the base page granularity of the host.
	PageSize() uintptr

	// Fatal writes msg straight to the process error channel and terminates.
	// It does not return on a real host.
	Fatal(msg string)
}

// Mapper maps and unmaps anonymous private memory.
type Mapper interface {
	// MapAnon maps size bytes of zeroed read/write memory. A non-zero hint is
	// where the mapping should go; with fixed set the hint is mandatory.
	MapAnon(hint, size uintptr, fixed bool) (uintptr, error)

	// Unmap removes the pages in [addr, addr+size).
	Unmap(addr, size uintptr) error
}

// HugeAdviser asks the host to back a mapping with huge pages.
type HugeAdviser interface {
	AdviseHuge(addr, size uintptr) error
}

// SegmentProber reports whether [addr, addr+size) is unused and can be
// mapped at a fixed address.
type SegmentProber interface {
	SegmentFree(addr, size uintptr) bool
}

// Breaker controls the real program break.
type Breaker interface {
	// Break returns the current program break.
	Break() (uintptr, error)

	// SetBreak moves the program break to addr and returns the new break.
	SetBreak(addr uintptr) (uintptr, error)
}

// Committer commits and releases memory through the platform's own
// reserve/commit primitive.
type Committer interface {
	Commit(size uintptr) (uintptr, error)
	Decommit(addr, size uintptr) error
}

// NativeAllocator is a generic malloc/free pair.
type NativeAllocator interface {
	Malloc(size uintptr) (uintptr, error)
	Free(addr uintptr) error
}

// System is the host the process is running on.
type System struct {
	pageSize uintptr
	native   nativeHeap
}

// New returns the running platform's host.
func New() *System {
	return &System{pageSize: pageSize()}
}

// PageSize returns the base page size of the host.
func (s *System) PageSize() uintptr { return s.pageSize }

// Fatal writes msg to the error channel without buffering and exits.
func (s *System) Fatal(msg string) {
	writeStderr(msg)
	os.Exit(2)
}

// retry runs f until it returns something other than EINTR.
func retry[T any](f func() (T, error)) (T, error) {
	for {
		v, err := f()
		if !errors.Is(err, syscall.EINTR) {
			return v, err
		}
	}
}

// retryErr is retry for calls that only return an error.
func retryErr(f func() error) error {
	_, err := retry(func() (struct{}, error) { return struct{}{}, f() })
	return err
}
