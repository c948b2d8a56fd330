// Package vmalloc provides allocator regions over a memory.Discipline and
// the process heap region.
//
// A Region pairs a method table, which decides how blocks are laid out, with
// the discipline it obtains segments from. Open builds ordinary regions. The
// heap region returned by Heap exists from program start but is only built
// on first use, exactly once, even when many goroutines touch it at the
// same moment:
//
//	addr, err := vmalloc.Heap().Alloc(128, 0)
//	...
//	err = vmalloc.Heap().Free(addr, 0)
//
// Configure and SetHeapMethod change how the heap is built and must be
// called before its first use.
package vmalloc
