package memory

import (
	"fmt"

	"github.com/joshuapare/vmheap/internal/osmem"
)

// safeBreak emulates a program break with anonymous mappings placed at the
// growth cursor. Unlike the real break it cannot be disturbed by foreign
// code, which only ever makes a mapping land somewhere else.
type safeBreak struct {
	sys    *System
	mapper osmem.Mapper
	prober osmem.SegmentProber
	b      *Backend
}

func newSafeBreak(s *System, m osmem.Mapper) *Backend {
	sb := &safeBreak{sys: s, mapper: m}
	sb.prober, _ = s.host.(osmem.SegmentProber)
	sb.b = &Backend{name: NameSafeBreak, flag: Safe, get: sb.get}
	return sb.b
}

func (sb *safeBreak) get(caddr, csize, nsize uintptr) (uintptr, error) {
	ps := sb.sys.pageSize
	nsize, done, err := breakSizes(caddr, csize, nsize, ps)
	if err != nil || done {
		return caddr, err
	}

	c := &sb.sys.cursor
	c.mu.Lock()
	defer c.mu.Unlock()

	if nsize == 0 {
		if err := sb.mapper.Unmap(caddr, csize); err != nil {
			return 0, err
		}
		sb.b.account(csize, 0)
		return caddr, nil
	}

	if err := c.init(sb.sys.host, sb.sys.Options(), sb.sys.logger); err != nil {
		return 0, err
	}
	delta := nsize - csize
	at := c.next
	if csize > 0 && caddr+csize != at {
		return 0, ErrDiscontiguous
	}
	if at+delta > c.max || at+delta < at {
		return 0, ErrSpanExhausted
	}

	var addr uintptr
	if sb.prober != nil && sb.sys.Assert().Has(CheckSeg) {
		// Search forward on a copy of the cursor; it only moves once a
		// mapping is in place.
		for !sb.prober.SegmentFree(at, delta) {
			if csize > 0 {
				return 0, ErrDiscontiguous
			}
			at += delta
			if at+delta > c.max || at+delta < at {
				return 0, ErrSpanExhausted
			}
		}
		addr, err = sb.mapper.MapAnon(at, delta, true)
	} else {
		addr, err = sb.mapper.MapAnon(at, delta, false)
	}
	if err != nil {
		return 0, err
	}

	if csize > 0 {
		if addr != caddr+csize {
			_ = sb.mapper.Unmap(addr, delta)
			return 0, fmt.Errorf("memory: safebrk grow %#x got %#x: %w", caddr+csize, addr, ErrDiscontiguous)
		}
		c.advance(addr + delta)
		sb.b.account(csize, nsize)
		return caddr, nil
	}
	c.advance(addr + delta)
	sb.b.account(0, nsize)
	return addr, nil
}
