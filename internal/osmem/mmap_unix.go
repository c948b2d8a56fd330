//go:build linux || darwin || freebsd

package osmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	_ Mapper          = (*System)(nil)
	_ NativeAllocator = (*System)(nil)
)

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

// MapAnon maps size bytes of anonymous private memory, at hint if possible.
func (s *System) MapAnon(hint, size uintptr, fixed bool) (uintptr, error) {
	flags := unix.MAP_ANON | unix.MAP_PRIVATE
	if fixed {
		flags |= unix.MAP_FIXED
	}
	p, err := retry(func() (unsafe.Pointer, error) {
		return unix.MmapPtr(-1, 0, unsafe.Pointer(hint), size, unix.PROT_READ|unix.PROT_WRITE, flags)
	})
	if err != nil {
		return 0, fmt.Errorf("osmem: mmap %d bytes: %w", size, err)
	}
	return uintptr(p), nil
}

// Unmap unmaps [addr, addr+size).
func (s *System) Unmap(addr, size uintptr) error {
	err := retryErr(func() error {
		return unix.MunmapPtr(unsafe.Pointer(addr), size)
	})
	if err != nil {
		return fmt.Errorf("osmem: munmap %#x+%d: %w", addr, size, err)
	}
	return nil
}

func writeStderr(msg string) {
	_, _ = unix.Write(2, []byte(msg))
}
