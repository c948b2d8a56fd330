package vmalloc

import (
	"sync"

	"github.com/joshuapare/vmheap/memory"
)

var _ memory.Reporter = (*Region)(nil)

// Region is an allocator region: a method table and the discipline its
// segments come from.
type Region struct {
	// boot is set on the heap region only.
	boot *bootstrap

	method Method
	meth   Methods
	disc   *memory.Discipline

	mu   sync.Mutex
	file string
	line int
	fn   string
}

// Open creates a region that obtains memory through disc. A nil method
// means Bump.
func Open(disc *memory.Discipline, method Method) (*Region, error) {
	if method == nil {
		method = Bump
	}
	r := &Region{method: method, disc: disc}
	meth, err := method.Open(disc, r)
	if err != nil {
		return nil, err
	}
	r.meth = meth
	return r, nil
}

// ready builds the heap region on first use. It does nothing for ordinary
// regions or once the heap is built.
func (r *Region) ready() error {
	if r.boot == nil {
		return nil
	}
	return r.boot.init()
}

// Alloc returns a block of at least size bytes.
func (r *Region) Alloc(size uintptr, flags Flags) (uintptr, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.meth.Alloc(size, flags)
}

// Resize changes the size of the block at addr and returns its address,
// which only differs from addr when Move is set.
func (r *Region) Resize(addr, size uintptr, flags Flags) (uintptr, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.meth.Resize(addr, size, flags)
}

// Free returns the block at addr to the region.
func (r *Region) Free(addr uintptr, flags Flags) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.meth.Free(addr, flags)
}

// Align returns a block of at least size bytes aligned to align, which must
// be a power of two.
func (r *Region) Align(size, align uintptr, flags Flags) (uintptr, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	return r.meth.Align(size, align, flags)
}

// Stat fills st with the region's usage, including its summary message.
func (r *Region) Stat(st *memory.Stat, flags Flags) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := r.meth.Stat(st, flags); err != nil {
		return err
	}
	st.Summarize()
	return nil
}

// Usage is called by the discipline while the region's own operation is in
// progress, so it takes no lock.
func (r *Region) Usage() (memory.Stat, error) {
	var st memory.Stat
	if r.meth == nil {
		return st, ErrHeapInit
	}
	if err := r.meth.Stat(&st, Local); err != nil {
		return st, err
	}
	st.Summarize()
	return st, nil
}

// Close gives all of the region's memory back. The heap region cannot be
// closed.
func (r *Region) Close() error {
	if r.boot != nil {
		return ErrHeapClose
	}
	return r.meth.Close()
}

// Method returns the method the region was opened with.
func (r *Region) Method() Method { return r.method }

// Discipline returns the discipline the region obtains memory through.
func (r *Region) Discipline() *memory.Discipline { return r.disc }

// Mark records where the region was last used.
func (r *Region) Mark(file string, line int, fn string) {
	r.mu.Lock()
	r.file, r.line, r.fn = file, line, fn
	r.mu.Unlock()
}

// Attribution returns what Mark last recorded.
func (r *Region) Attribution() (file string, line int, fn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file, r.line, r.fn
}
