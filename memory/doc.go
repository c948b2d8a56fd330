// Package memory obtains raw address space from the operating system for
// region allocators.
//
// A System holds a table of backends built from what the host can do, in a
// fixed preference order:
//
//	safebrk  program break emulated over anonymous mappings
//	anon     one anonymous mapping per request
//	sbrk     the real program break
//	win32    the platform's commit/decommit primitive
//	native   a malloc/free fallback
//
// Options.Assert enables backends. The first backend to satisfy a request
// becomes sticky: every later request goes straight to it and its failures
// are returned to the caller. When no backend can satisfy a request the
// process is terminated through the host's fatal channel.
//
// Regions never call a System directly. They hold a Discipline, whose Memory
// method is the only acquisition entry point:
//
//	addr, err := disc.Memory(owner, 0, 0, n)        // acquire n bytes
//	addr, err = disc.Memory(owner, addr, n, 2*n)     // grow in place
//	_, err = disc.Memory(owner, addr, 2*n, 0)        // release
package memory
