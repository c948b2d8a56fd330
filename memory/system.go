package memory

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/joshuapare/vmheap/internal/osmem"
)

// System dispatches acquisition requests to the host's backends.
type System struct {
	host     osmem.Host
	pageSize uintptr
	logger   log.Logger
	metrics  *Metrics

	mu     sync.RWMutex
	opts   Options
	assert atomic.Uint32

	cursor cursor
	table  []*Backend
	sticky atomic.Pointer[Backend]
}

// Option configures a System.
type Option func(*System)

// WithLogger sets where diagnostics go. The default discards them.
func WithLogger(l log.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithMetrics sets the metrics backend activity is recorded in.
func WithMetrics(m *Metrics) Option {
	return func(s *System) { s.metrics = m }
}

// WithOptions replaces DefaultOptions.
func WithOptions(o Options) Option {
	return func(s *System) { s.setOptions(o) }
}

// NewSystem builds the backend table from what host can do.
func NewSystem(host osmem.Host, opts ...Option) *System {
	s := &System{
		host:     host,
		pageSize: host.PageSize(),
		logger:   log.NewNopLogger(),
	}
	s.setOptions(DefaultOptions())
	for _, o := range opts {
		o(s)
	}

	if m, ok := host.(osmem.Mapper); ok {
		s.table = append(s.table, newSafeBreak(s, m), newAnonMap(s, m))
	}
	if b, ok := host.(osmem.Breaker); ok {
		s.table = append(s.table, newProgramBreak(s, b))
	}
	if c, ok := host.(osmem.Committer); ok {
		s.table = append(s.table, newCommitMem(c, s.pageSize))
	}
	if n, ok := host.(osmem.NativeAllocator); ok {
		s.table = append(s.table, newNativeAlloc(n, s.pageSize))
	}
	return s
}

func (s *System) setOptions(o Options) {
	s.mu.Lock()
	s.opts = o
	s.mu.Unlock()
	s.assert.Store(uint32(o.Assert))
}

// Apply validates and installs o. Options only affect the emulated break
// until its first use.
func (s *System) Apply(o Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.setOptions(o)
	return nil
}

// Options returns the current options.
func (s *System) Options() Options {
	s.mu.RLock()
	o := s.opts
	s.mu.RUnlock()
	o.Assert = s.Assert()
	return o
}

// Assert returns the current assert bits.
func (s *System) Assert() Assert { return Assert(s.assert.Load()) }

// SetAssert replaces the assert bits and returns the previous ones.
func (s *System) SetAssert(a Assert) Assert {
	return Assert(s.assert.Swap(uint32(a)))
}

// PageSize returns the host page size.
func (s *System) PageSize() uintptr { return s.pageSize }

// Host returns the host the System was built on.
func (s *System) Host() osmem.Host { return s.host }

// Backends returns the backend table in preference order.
func (s *System) Backends() []*Backend {
	return append([]*Backend(nil), s.table...)
}

// Backend returns the named backend, or nil when the host lacks it.
func (s *System) Backend(name string) *Backend {
	for _, b := range s.table {
		if b.name == name {
			return b
		}
	}
	return nil
}

// Selected returns the sticky backend, or nil before the first success.
func (s *System) Selected() *Backend { return s.sticky.Load() }

// Get serves one request. After the first success every request goes to
// the backend that served it and its errors are returned as is. Before
// that, enabled backends are tried in order, and when all of them fail the
// host's fatal channel is used.
func (s *System) Get(owner Reporter, caddr, csize, nsize uintptr) (uintptr, error) {
	if !validRequest(caddr, csize, nsize) {
		return 0, ErrBadRequest
	}
	if b := s.sticky.Load(); b != nil {
		return s.call(owner, b, caddr, csize, nsize)
	}

	a := s.Assert()
	for _, b := range s.table {
		if !b.Enabled(a) {
			continue
		}
		addr, err := s.call(owner, b, caddr, csize, nsize)
		if err != nil {
			if a.Has(Verbose) {
				level.Debug(s.logger).Log("msg", "backend failed", "backend", b.name, "err", err)
			}
			continue
		}
		if s.sticky.CompareAndSwap(nil, b) {
			s.metrics.selectBackend(b)
			if a.Has(Verbose) {
				level.Debug(s.logger).Log("msg", "getmemory", "backend", b.name)
			}
			return addr, nil
		}

		winner := s.sticky.Load()
		if winner == b || csize != 0 {
			return addr, nil
		}
		// Another goroutine installed a different backend first. Give back
		// what we got so every live span belongs to the winner.
		if _, err := s.call(nil, b, addr, roundUp(nsize, s.pageSize), 0); err != nil {
			level.Warn(s.logger).Log("msg", "release after lost selection", "backend", b.name, "err", err)
		}
		return s.call(owner, winner, caddr, csize, nsize)
	}

	s.host.Fatal(fatalMessage)
	return 0, ErrExhausted
}

// call runs one backend and does the accounting every success needs.
func (s *System) call(owner Reporter, b *Backend, caddr, csize, nsize uintptr) (uintptr, error) {
	addr, err := b.get(caddr, csize, nsize)
	s.metrics.observe(b, csize, nsize, err)
	if err != nil {
		return 0, fmt.Errorf("memory: %s: %w", b.name, err)
	}
	s.usage(owner, addr, nsize)
	return addr, nil
}

// Probe acquires size bytes through the named backend and releases them,
// bypassing the sticky selection. It returns the address that was used.
func (s *System) Probe(name string, size uintptr) (uintptr, error) {
	b := s.Backend(name)
	if b == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	if size == 0 {
		return 0, ErrBadRequest
	}
	addr, err := s.call(nil, b, 0, 0, size)
	if err != nil {
		return 0, err
	}
	if _, err := s.call(nil, b, addr, roundUp(size, s.pageSize), 0); err != nil {
		return addr, err
	}
	return addr, nil
}
