package memory

// Discipline is what a region holds to obtain memory.
type Discipline struct {
	// Round is the granularity a region grows by. Zero means the page size.
	Round uintptr

	// FD and Offset are reserved for a file-backed backend. FD is -1 when
	// unused.
	FD     int
	Offset int64

	sys *System
}

// NewDiscipline returns a discipline that routes requests through s.
func NewDiscipline(s *System) *Discipline {
	return &Discipline{FD: -1, sys: s}
}

// Memory acquires, grows or releases address space:
//
//	csize == 0, nsize > 0   acquire nsize bytes, returning their address
//	csize > 0,  nsize == 0  release [caddr, caddr+csize), returning caddr
//	csize > 0,  nsize > 0   grow the span in place, returning caddr
//
// On failure the address is zero.
func (d *Discipline) Memory(owner Reporter, caddr, csize, nsize uintptr) (uintptr, error) {
	return d.sys.Get(owner, caddr, csize, nsize)
}

// System returns the System the discipline routes to.
func (d *Discipline) System() *System { return d.sys }

// Granularity returns Round, or the page size when Round is zero, rounded
// up to a whole number of pages.
func (d *Discipline) Granularity() uintptr {
	ps := d.sys.PageSize()
	if d.Round == 0 {
		return ps
	}
	return roundUp(d.Round, ps)
}
