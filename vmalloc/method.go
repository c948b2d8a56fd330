package vmalloc

import "github.com/joshuapare/vmheap/memory"

// Methods is a region's method table.
type Methods interface {
	// Alloc returns a block of at least size bytes.
	Alloc(size uintptr, flags Flags) (uintptr, error)

	// Resize changes the size of the block at addr. With Move set the block
	// may be relocated; the new address is returned either way.
	Resize(addr, size uintptr, flags Flags) (uintptr, error)

	// Free returns the block at addr to the region.
	Free(addr uintptr, flags Flags) error

	// Align returns a block of at least size bytes aligned to align.
	Align(size, align uintptr, flags Flags) (uintptr, error)

	// Stat fills st with the region's usage.
	Stat(st *memory.Stat, flags Flags) error

	// Close gives every segment back to the discipline.
	Close() error
}

// Method creates method tables.
type Method interface {
	Name() string

	// Open returns a method table that obtains segments from disc on behalf
	// of owner.
	Open(disc *memory.Discipline, owner memory.Reporter) (Methods, error)
}
