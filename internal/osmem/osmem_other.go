//go:build !linux && !darwin && !freebsd && !windows

package osmem

import (
	"os"
	"sync"
	"unsafe"
)

var _ NativeAllocator = (*System)(nil)

func pageSize() uintptr {
	return uintptr(os.Getpagesize())
}

// nativeHeap keeps Go-allocated blocks reachable for as long as they are
// handed out by address.
type nativeHeap struct {
	mu     sync.Mutex
	blocks map[uintptr][]byte
}

// Malloc allocates size bytes from the Go heap.
func (s *System) Malloc(size uintptr) (uintptr, error) {
	s.native.mu.Lock()
	defer s.native.mu.Unlock()

	if s.native.blocks == nil {
		s.native.blocks = make(map[uintptr][]byte)
	}
	b := make([]byte, size)
	addr := uintptr(unsafe.Pointer(&b[0]))
	s.native.blocks[addr] = b
	return addr, nil
}

// Free drops the reference to a block returned by Malloc.
func (s *System) Free(addr uintptr) error {
	s.native.mu.Lock()
	defer s.native.mu.Unlock()

	delete(s.native.blocks, addr)
	return nil
}

func writeStderr(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}
