package memory

import (
	"fmt"

	"github.com/joshuapare/vmheap/internal/osmem"
)

// programBreak grows and shrinks the real program break. Code outside this
// package may move the break too, so every growth checks it still ends where
// the span being grown ends.
type programBreak struct {
	sys *System
	brk osmem.Breaker
	b   *Backend
}

func newProgramBreak(s *System, brk osmem.Breaker) *Backend {
	pb := &programBreak{sys: s, brk: brk}
	pb.b = &Backend{name: NameBreak, flag: Break, get: pb.get}
	return pb.b
}

func (pb *programBreak) get(caddr, csize, nsize uintptr) (uintptr, error) {
	ps := pb.sys.pageSize
	nsize, done, err := breakSizes(caddr, csize, nsize, ps)
	if err != nil || done {
		return caddr, err
	}

	c := &pb.sys.cursor
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := pb.brk.Break()
	if err != nil {
		return 0, err
	}

	if nsize == 0 {
		if cur != caddr+csize {
			return 0, fmt.Errorf("memory: sbrk release %#x+%d below break %#x: %w", caddr, csize, cur, ErrNotTop)
		}
		if _, err := pb.brk.SetBreak(caddr); err != nil {
			return 0, err
		}
		pb.b.account(csize, 0)
		return caddr, nil
	}

	start := roundUp(cur, ps)
	if csize > 0 {
		if cur != caddr+csize {
			return 0, fmt.Errorf("memory: sbrk grow %#x+%d, break at %#x: %w", caddr, csize, cur, ErrDiscontiguous)
		}
		start = cur
	}
	end := start + nsize - csize
	if end < start {
		return 0, ErrBadRequest
	}

	got, err := pb.brk.SetBreak(end)
	if err != nil {
		return 0, err
	}
	if got != end {
		// Only undo what is still ours.
		if now, err := pb.brk.Break(); err == nil && now == got && got > cur {
			_, _ = pb.brk.SetBreak(cur)
		}
		return 0, fmt.Errorf("memory: sbrk to %#x got %#x: %w", end, got, ErrDiscontiguous)
	}

	if csize > 0 {
		pb.b.account(csize, nsize)
		return caddr, nil
	}
	pb.b.account(0, nsize)
	return start, nil
}
