//go:build linux

package osmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	_ HugeAdviser   = (*System)(nil)
	_ SegmentProber = (*System)(nil)
	_ Breaker       = (*System)(nil)
)

// AdviseHuge hints that the span should be backed by transparent huge pages.
func (s *System) AdviseHuge(addr, size uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return retryErr(func() error {
		return unix.Madvise(b, unix.MADV_HUGEPAGE)
	})
}

// SegmentFree reports whether no page in [addr, addr+size) is mapped.
// mincore fails with ENOMEM on unmapped pages, so every page must fail.
func (s *System) SegmentFree(addr, size uintptr) bool {
	if addr%s.pageSize != 0 || size == 0 {
		return false
	}
	var vec [1]byte
	for off := uintptr(0); off < size; off += s.pageSize {
		if mincore(addr+off, s.pageSize, &vec[0]) != unix.ENOMEM {
			return false
		}
	}
	return true
}

// Break returns the current program break.
func (s *System) Break() (uintptr, error) {
	r, _, errno := unix.RawSyscall(unix.SYS_BRK, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("osmem: brk: %w", errno)
	}
	return r, nil
}

// SetBreak moves the program break. The kernel reports failure by returning
// the unchanged break, which is turned into ENOMEM here.
func (s *System) SetBreak(addr uintptr) (uintptr, error) {
	r, _, errno := unix.RawSyscall(unix.SYS_BRK, addr, 0, 0)
	if errno != 0 {
		return r, fmt.Errorf("osmem: brk %#x: %w", addr, errno)
	}
	if r != addr {
		return r, fmt.Errorf("osmem: brk %#x: %w", addr, unix.ENOMEM)
	}
	return r, nil
}

// mincore issues the raw syscall; x/sys/unix has no wrapper for it on linux.
func mincore(addr, size uintptr, vec *byte) unix.Errno {
	_, _, errno := unix.Syscall(unix.SYS_MINCORE, addr, size, uintptr(unsafe.Pointer(vec)))
	return errno
}
