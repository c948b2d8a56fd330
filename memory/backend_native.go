package memory

import "github.com/joshuapare/vmheap/internal/osmem"

// nativeAlloc is the last resort: a plain malloc/free pair.
// Its committed count is kept in whole pages like every other backend.
type nativeAlloc struct {
	alloc    osmem.NativeAllocator
	pageSize uintptr
	b        *Backend
}

func newNativeAlloc(a osmem.NativeAllocator, pageSize uintptr) *Backend {
	na := &nativeAlloc{alloc: a, pageSize: pageSize}
	na.b = &Backend{name: NameNative, flag: Native, get: na.get}
	return na.b
}

func (na *nativeAlloc) get(caddr, csize, nsize uintptr) (uintptr, error) {
	switch {
	case csize == 0:
		addr, err := na.alloc.Malloc(nsize)
		if err != nil {
			return 0, err
		}
		na.b.account(0, roundUp(nsize, na.pageSize))
		return addr, nil
	case nsize == 0:
		if err := na.alloc.Free(caddr); err != nil {
			return 0, err
		}
		na.b.account(roundUp(csize, na.pageSize), 0)
		return caddr, nil
	}
	return 0, ErrUnsupported
}
