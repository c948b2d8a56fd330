//go:build linux || darwin || freebsd

package fakehost

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// newArena maps memory outside the Go heap, so addresses in it can be turned
// back into pointers without upsetting checkptr.
func newArena(size uintptr) []byte {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		panic(fmt.Sprintf("fakehost: map arena of %d bytes: %v", size, err))
	}
	return b
}

func freeArena(b []byte) error {
	return unix.Munmap(b)
}
