package memory

import "github.com/joshuapare/vmheap/internal/osmem"

// commitMem uses the platform's commit/decommit primitive. It has no Assert
// bit: where the host offers it, it is always tried.
type commitMem struct {
	committer osmem.Committer
	pageSize  uintptr
	b         *Backend
}

func newCommitMem(c osmem.Committer, pageSize uintptr) *Backend {
	cm := &commitMem{committer: c, pageSize: pageSize}
	cm.b = &Backend{name: NameWin32, get: cm.get}
	return cm.b
}

func (cm *commitMem) get(caddr, csize, nsize uintptr) (uintptr, error) {
	switch {
	case csize == 0:
		addr, err := cm.committer.Commit(nsize)
		if err != nil {
			return 0, err
		}
		cm.b.account(0, roundUp(nsize, cm.pageSize))
		return addr, nil
	case nsize == 0:
		if err := cm.committer.Decommit(caddr, csize); err != nil {
			return 0, err
		}
		cm.b.account(roundUp(csize, cm.pageSize), 0)
		return caddr, nil
	}
	return 0, ErrUnsupported
}
