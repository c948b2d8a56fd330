package memory

import "github.com/joshuapare/vmheap/internal/osmem"

// hugeThreshold is how many base pages a mapping needs before huge pages
// are requested for it.
const hugeThreshold = 8

// anonMap hands out one anonymous mapping per acquisition.
type anonMap struct {
	sys    *System
	mapper osmem.Mapper
	huge   osmem.HugeAdviser
	b      *Backend
}

func newAnonMap(s *System, m osmem.Mapper) *Backend {
	am := &anonMap{sys: s, mapper: m}
	am.huge, _ = s.host.(osmem.HugeAdviser)
	am.b = &Backend{name: NameAnon, flag: Anon, get: am.get}
	return am.b
}

func (am *anonMap) get(caddr, csize, nsize uintptr) (uintptr, error) {
	switch {
	case csize == 0:
		size := roundUp(nsize, am.sys.pageSize)
		if size < nsize {
			return 0, ErrBadRequest
		}
		addr, err := am.mapper.MapAnon(0, size, false)
		if err != nil {
			return 0, err
		}
		if am.huge != nil && size >= hugeThreshold*am.sys.pageSize {
			// Advice is a hint; the mapping is usable either way.
			_ = am.huge.AdviseHuge(addr, size)
		}
		am.b.account(0, size)
		return addr, nil
	case nsize == 0:
		if err := am.mapper.Unmap(caddr, csize); err != nil {
			return 0, err
		}
		am.b.account(roundUp(csize, am.sys.pageSize), 0)
		return caddr, nil
	}
	return 0, ErrUnsupported
}
