package vmalloc

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/vmheap/internal/osmem"
	"github.com/joshuapare/vmheap/memory"
)

// heap is the process heap region and what it is built from.
type heap struct {
	region *Region
	boot   bootstrap
	sys    *memory.System
	logger log.Logger

	mu     sync.Mutex
	opts   memory.Options
	method Method
}

func newHeap(host osmem.Host, logger log.Logger, m *memory.Metrics) *heap {
	h := &heap{
		sys:    memory.NewSystem(host, memory.WithLogger(logger), memory.WithMetrics(m)),
		logger: logger,
		opts:   memory.DefaultOptions(),
		method: Bump,
	}
	h.region = &Region{boot: &h.boot}
	h.boot.build = h.build
	return h
}

// build runs once, on whichever goroutine first uses the heap.
func (h *heap) build() error {
	h.mu.Lock()
	opts, method := h.opts, h.method
	h.mu.Unlock()

	if err := h.sys.Apply(opts); err != nil {
		return err
	}
	disc := memory.NewDiscipline(h.sys)
	disc.Round = uintptr(opts.SegSize.Bytes())

	// The heap cannot report usage before its method table exists.
	saved := h.sys.SetAssert(opts.Assert &^ memory.Usage)
	meth, err := method.Open(disc, h.region)
	h.sys.SetAssert(saved)
	if err != nil {
		return err
	}

	h.region.method = method
	h.region.disc = disc
	h.region.meth = meth

	if opts.Assert.Has(memory.Verbose) {
		level.Debug(h.logger).Log("msg", "heap ready", "method", method.Name(),
			"pagesize", h.sys.PageSize(), "segsize", disc.Granularity(), "assert", opts.Assert)
	}
	return nil
}

func (h *heap) configure(o memory.Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.boot.status.Load() != statusUnset {
		return ErrHeapReady
	}
	h.opts = o
	return nil
}

func (h *heap) setMethod(m Method) error {
	if m == nil {
		m = Bump
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.boot.status.Load() != statusUnset {
		return ErrHeapReady
	}
	h.method = m
	return nil
}

var processHeap = newHeap(osmem.New(), memory.NewStderrLogger(), memory.NewMetrics(prometheus.DefaultRegisterer))

// Heap returns the process heap region. It is built on first use.
func Heap() *Region { return processHeap.region }

// Configure sets the options the heap is built with. It fails with
// ErrHeapReady once the heap is in use.
func Configure(o memory.Options) error { return processHeap.configure(o) }

// SetHeapMethod sets the method the heap is built with. It fails with
// ErrHeapReady once the heap is in use.
func SetHeapMethod(m Method) error { return processHeap.setMethod(m) }

// HeapBusy reports whether the heap is being built right now.
func HeapBusy() bool { return processHeap.boot.busy() }

// HeapReady reports whether the heap has been built.
func HeapReady() bool { return processHeap.boot.done() }

// HeapSystem returns the System the heap obtains its memory from.
func HeapSystem() *memory.System { return processHeap.sys }
