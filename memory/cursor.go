package memory

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/joshuapare/vmheap/internal/osmem"
)

// cursor is the growth cursor shared by the break-family backends. Its lock
// serializes every break-family attempt, so nothing called while holding it
// may call back into a System.
type cursor struct {
	mu sync.Mutex

	ready bool
	base  uintptr
	next  uintptr
	max   uintptr
}

// init sets the bounds the first time the emulated break is used. Callers
// hold mu.
func (c *cursor) init(host osmem.Host, opts Options, logger log.Logger) error {
	if c.ready {
		return nil
	}
	ps := host.PageSize()
	base := uintptr(opts.Base)
	if base == 0 {
		if b, ok := host.(osmem.Breaker); ok {
			if cur, err := b.Break(); err == nil {
				base = cur
			}
		}
	}
	if base == 0 {
		m, ok := host.(osmem.Mapper)
		if !ok {
			return fmt.Errorf("memory: no base for emulated break: %w", ErrUnsupported)
		}
		probe, err := m.MapAnon(0, ps, false)
		if err != nil {
			return fmt.Errorf("memory: probe emulated break base: %w", err)
		}
		if err := m.Unmap(probe, ps); err != nil {
			level.Warn(logger).Log("msg", "unmap emulated break base mapping", "addr", fmt.Sprintf("%#x", probe), "err", err)
		}
		base = probe
	}
	base = roundUp(base, ps)

	limit := base + uintptr(opts.MaxSpan.Bytes())
	if limit < base {
		limit = ^uintptr(0) &^ (ps - 1)
	}
	c.base, c.next, c.max = base, base, limit
	c.ready = true
	return nil
}

// advance moves the cursor to end, never backwards. Callers hold mu.
func (c *cursor) advance(end uintptr) {
	if end > c.next {
		c.next = end
	}
}

// position returns the cursor state.
func (c *cursor) position() (base, next, max uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base, c.next, c.max
}
