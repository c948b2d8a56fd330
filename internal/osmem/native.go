//go:build linux || darwin || freebsd || windows

package osmem

import (
	"fmt"
	"sync"

	"modernc.org/memory"
)

// nativeHeap serializes a modernc allocator, which is not safe for
// concurrent use on its own.
type nativeHeap struct {
	mu sync.Mutex
	a  memory.Allocator
}

// Malloc allocates size bytes from the native allocator.
func (s *System) Malloc(size uintptr) (uintptr, error) {
	s.native.mu.Lock()
	defer s.native.mu.Unlock()

	p, err := s.native.a.UintptrMalloc(int(size))
	if err != nil {
		return 0, fmt.Errorf("osmem: malloc %d bytes: %w", size, err)
	}
	return p, nil
}

// Free returns addr to the native allocator.
func (s *System) Free(addr uintptr) error {
	s.native.mu.Lock()
	defer s.native.mu.Unlock()

	return s.native.a.UintptrFree(addr)
}
