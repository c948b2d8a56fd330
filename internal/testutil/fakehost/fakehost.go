// Package fakehost is an in-process osmem host for tests.
//
// Addresses handed out point into an arena the host owns, so callers may
// read and write them. Where the platform allows it the arena is an
// anonymous mapping rather than Go memory. The lower half of the arena is the program break area and the
// upper half is where mappings land when no usable hint is given.
package fakehost

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/joshuapare/vmheap/internal/osmem"
)

var (
	_ osmem.Host            = (*Host)(nil)
	_ osmem.Mapper          = (*Host)(nil)
	_ osmem.HugeAdviser     = (*Host)(nil)
	_ osmem.SegmentProber   = (*Host)(nil)
	_ osmem.Breaker         = (*Host)(nil)
	_ osmem.Committer       = (*Host)(nil)
	_ osmem.NativeAllocator = (*Host)(nil)
)

// ErrInjected is returned by every primitive whose failure was requested.
var ErrInjected = errors.New("fakehost: injected failure")

// ErrNoMem mirrors the host running out of address space.
var ErrNoMem = errors.New("fakehost: out of memory")

// Fatal is the panic value raised by Host.Fatal.
type Fatal struct {
	Msg string
}

func (f Fatal) Error() string { return f.Msg }

// Span is an address range the host was asked about.
type Span struct {
	Addr, Size uintptr
}

// Failures selects primitives that fail on the next calls.
type Failures struct {
	Map    bool
	Break  bool
	Commit bool
	Native bool
}

// Host simulates an address space.
type Host struct {
	mu sync.Mutex

	arena    []byte
	base     uintptr
	mid      uintptr
	limit    uintptr
	pageSize uintptr

	brk    uintptr
	pages  map[uintptr]bool
	native map[uintptr][]byte

	fail    Failures
	advised []Span
	fatals  []string
	maps    int
}

// Option configures a Host.
type Option func(*Host)

// WithPageSize sets the simulated page size.
func WithPageSize(n uintptr) Option {
	return func(h *Host) { h.pageSize = n }
}

// New returns a host over an arena of size bytes (rounded to pages).
func New(size uintptr, opts ...Option) *Host {
	h := &Host{
		pageSize: 4096,
		pages:    make(map[uintptr]bool),
		native:   make(map[uintptr][]byte),
	}
	for _, o := range opts {
		o(h)
	}
	size = (size + 2*h.pageSize - 1) &^ (2*h.pageSize - 1)
	h.arena = newArena(size + h.pageSize)
	start := uintptr(unsafe.Pointer(&h.arena[0]))
	h.base = (start + h.pageSize - 1) &^ (h.pageSize - 1)
	h.limit = h.base + size
	h.mid = h.base + size/2
	h.brk = h.base
	return h
}

// PageSize returns the simulated page size.
func (h *Host) PageSize() uintptr { return h.pageSize }

// Base returns the lowest address in the arena.
func (h *Host) Base() uintptr { return h.base }

// Mid returns the first address of the mapping half of the arena.
func (h *Host) Mid() uintptr { return h.mid }

// Limit returns the end of the arena.
func (h *Host) Limit() uintptr { return h.limit }

// Fatal records msg and panics with Fatal so the caller never continues.
func (h *Host) Fatal(msg string) {
	h.mu.Lock()
	h.fatals = append(h.fatals, msg)
	h.mu.Unlock()
	panic(Fatal{Msg: msg})
}

// Fatals returns every message passed to Fatal.
func (h *Host) Fatals() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fatals...)
}

// Fail sets which primitives fail from now on.
func (h *Host) Fail(f Failures) {
	h.mu.Lock()
	h.fail = f
	h.mu.Unlock()
}

// Advised returns every span passed to AdviseHuge.
func (h *Host) Advised() []Span {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Span(nil), h.advised...)
}

// Maps returns how many successful MapAnon calls were made.
func (h *Host) Maps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maps
}

// Mapped reports whether every page of the span is mapped.
func (h *Host) Mapped(addr, size uintptr) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := addr; p < addr+size; p += h.pageSize {
		if !h.pages[p] {
			return false
		}
	}
	return size > 0
}

// MapAnon maps zeroed pages at hint when the span is free and above the
// break, otherwise first-fit from the mapping half unless fixed is set.
func (h *Host) MapAnon(hint, size uintptr, fixed bool) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fail.Map {
		return 0, ErrInjected
	}
	size = h.round(size)
	addr := uintptr(0)
	switch {
	case hint != 0 && h.free(hint, size):
		addr = hint
	case fixed:
		return 0, fmt.Errorf("fakehost: fixed map %#x+%d: %w", hint, size, ErrNoMem)
	default:
		for p := h.mid; p+size <= h.limit; p += h.pageSize {
			if h.free(p, size) {
				addr = p
				break
			}
		}
		if addr == 0 {
			return 0, ErrNoMem
		}
	}
	for p := addr; p < addr+size; p += h.pageSize {
		h.pages[p] = true
	}
	clear(h.bytes(addr, size))
	h.maps++
	return addr, nil
}

// Unmap unmaps every page of the span; pages that were not mapped are ignored.
func (h *Host) Unmap(addr, size uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if addr%h.pageSize != 0 || addr < h.base || addr+size > h.limit {
		return fmt.Errorf("fakehost: unmap %#x+%d: invalid span", addr, size)
	}
	for p := addr; p < addr+h.round(size); p += h.pageSize {
		delete(h.pages, p)
	}
	return nil
}

// AdviseHuge records the advice.
func (h *Host) AdviseHuge(addr, size uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advised = append(h.advised, Span{Addr: addr, Size: size})
	return nil
}

// SegmentFree reports whether the span could be mapped at a fixed address.
func (h *Host) SegmentFree(addr, size uintptr) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.free(addr, h.round(size))
}

// Occupy maps a span on behalf of some other user of the address space.
func (h *Host) Occupy(addr, size uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := addr; p < addr+h.round(size); p += h.pageSize {
		h.pages[p] = true
	}
}

// Break returns the simulated program break.
func (h *Host) Break() (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.brk, nil
}

// SetBreak moves the break within the lower half of the arena.
func (h *Host) SetBreak(addr uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fail.Break {
		return h.brk, ErrInjected
	}
	if addr < h.base || addr > h.mid {
		return h.brk, ErrNoMem
	}
	if addr > h.brk {
		clear(h.bytes(h.brk, addr-h.brk))
	}
	h.brk = addr
	return addr, nil
}

// Interfere moves the break by n bytes as if foreign code called sbrk.
func (h *Host) Interfere(n uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.brk += n
}

// Commit hands out zeroed pages like a reserve-and-commit primitive.
func (h *Host) Commit(size uintptr) (uintptr, error) {
	h.mu.Lock()
	failed := h.fail.Commit
	h.mu.Unlock()
	if failed {
		return 0, ErrInjected
	}
	return h.MapAnon(0, size, false)
}

// Decommit releases a span obtained from Commit.
func (h *Host) Decommit(addr, size uintptr) error {
	return h.Unmap(addr, size)
}

// Malloc allocates from the Go heap and keeps the block reachable.
func (h *Host) Malloc(size uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fail.Native {
		return 0, ErrInjected
	}
	if size == 0 {
		size = 1
	}
	b := newArena(size)
	addr := uintptr(unsafe.Pointer(&b[0]))
	h.native[addr] = b
	return addr, nil
}

// Free drops a block returned by Malloc.
func (h *Host) Free(addr uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.native[addr]
	if !ok {
		return fmt.Errorf("fakehost: free of unknown block %#x", addr)
	}
	delete(h.native, addr)
	return freeArena(b)
}

// Live returns the number of outstanding Malloc blocks.
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.native)
}

// Close gives the arena and every outstanding Malloc block back. Nothing the
// host handed out may be used afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	for addr, b := range h.native {
		err = multierr.Append(err, freeArena(b))
		delete(h.native, addr)
	}
	if h.arena != nil {
		err = multierr.Append(err, freeArena(h.arena))
		h.arena = nil
	}
	return err
}

func (h *Host) round(n uintptr) uintptr {
	return (n + h.pageSize - 1) &^ (h.pageSize - 1)
}

// free reports whether [addr, addr+size) lies above the break, inside the
// arena and has no mapped page. Callers hold mu.
func (h *Host) free(addr, size uintptr) bool {
	if addr%h.pageSize != 0 || addr < h.brk || size == 0 || addr+size > h.limit || addr+size < addr {
		return false
	}
	for p := addr; p < addr+size; p += h.pageSize {
		if h.pages[p] {
			return false
		}
	}
	return true
}

func (h *Host) bytes(addr, size uintptr) []byte {
	off := addr - uintptr(unsafe.Pointer(&h.arena[0]))
	return h.arena[off : off+size]
}
