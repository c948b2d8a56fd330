//go:build windows

package osmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

var (
	_ Committer       = (*System)(nil)
	_ NativeAllocator = (*System)(nil)
)

func pageSize() uintptr {
	return uintptr(windows.Getpagesize())
}

// Commit reserves and commits size bytes of read/write memory.
func (s *System) Commit(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("osmem: VirtualAlloc %d bytes: %w", size, err)
	}
	return addr, nil
}

// Decommit releases a span obtained from Commit. MEM_RELEASE always frees
// the whole reservation, so size is unused.
func (s *System) Decommit(addr, _ uintptr) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("osmem: VirtualFree %#x: %w", addr, err)
	}
	return nil
}

func writeStderr(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}
