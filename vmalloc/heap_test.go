package vmalloc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/vmheap/internal/testutil/fakehost"
	"github.com/joshuapare/vmheap/memory"
)

// countingMethod counts Open calls and can fail the first few. Its Open
// acquires one segment up front so usage reporting during construction can
// be observed.
type countingMethod struct {
	opens atomic.Int32
	fail  int32
}

func (m *countingMethod) Name() string { return "counting" }

func (m *countingMethod) Open(disc *memory.Discipline, owner memory.Reporter) (Methods, error) {
	if m.opens.Inc() <= m.fail {
		return nil, errors.New("open failed")
	}
	addr, err := disc.Memory(owner, 0, 0, disc.Granularity())
	if err != nil {
		return nil, err
	}
	if _, err := disc.Memory(owner, addr, disc.Granularity(), 0); err != nil {
		return nil, err
	}
	return Bump.Open(disc, owner)
}

func newTestHeap(t *testing.T, buf *bytes.Buffer) *heap {
	t.Helper()
	logger := log.NewNopLogger()
	if buf != nil {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(buf))
	}
	host := fakehost.New(16 << 20)
	t.Cleanup(func() { require.NoError(t, host.Close()) })
	return newHeap(host, logger, nil)
}

func testOptions(a memory.Assert) memory.Options {
	o := memory.DefaultOptions()
	o.Assert = a
	o.SegSize = 64 * datasize.KB
	return o
}

func TestHeapLazyInit(t *testing.T) {
	h := newTestHeap(t, nil)
	require.NoError(t, h.configure(testOptions(memory.Safe)))
	require.False(t, h.boot.done())
	require.Nil(t, h.sys.Selected())

	addr, err := h.region.Alloc(100, 0)
	require.NoError(t, err)
	require.NotZero(t, addr)
	require.True(t, h.boot.done())
	require.Equal(t, memory.NameSafeBreak, h.sys.Selected().Name())

	st := stat(t, h.region)
	assert.Equal(t, uintptr(64<<10), st.Extent)
	assert.Equal(t, uintptr(64<<10), h.region.Discipline().Round)
	assert.Equal(t, Bump, h.region.Method())

	require.ErrorIs(t, h.configure(testOptions(memory.Anon)), ErrHeapReady)
	require.ErrorIs(t, h.setMethod(Bump), ErrHeapReady)
	require.ErrorIs(t, h.region.Close(), ErrHeapClose)
	require.NoError(t, h.region.Free(addr, 0))
}

func TestHeapConcurrentFirstUse(t *testing.T) {
	h := newTestHeap(t, nil)
	m := &countingMethod{}
	require.NoError(t, h.configure(testOptions(memory.Safe)))
	require.NoError(t, h.setMethod(m))

	const k = 32
	var g errgroup.Group
	for range k {
		g.Go(func() error {
			addr, err := h.region.Alloc(64, 0)
			if err != nil {
				return err
			}
			return h.region.Free(addr, 0)
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), m.opens.Load())
	require.Same(t, m, h.region.Method())
}

func TestHeapRetriesFailedInit(t *testing.T) {
	h := newTestHeap(t, nil)
	m := &countingMethod{fail: 1}
	require.NoError(t, h.configure(testOptions(memory.Safe)))
	require.NoError(t, h.setMethod(m))

	_, err := h.region.Alloc(64, 0)
	require.ErrorIs(t, err, ErrHeapInit)
	require.False(t, h.boot.done())

	// Still configurable after a failed attempt.
	require.NoError(t, h.configure(testOptions(memory.Anon)))

	_, err = h.region.Alloc(64, 0)
	require.NoError(t, err)
	require.Equal(t, int32(2), m.opens.Load())
	require.Equal(t, memory.NameAnon, h.sys.Selected().Name())
}

func TestHeapSuppressesUsageDuringInit(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHeap(t, &buf)
	require.NoError(t, h.configure(testOptions(memory.Safe|memory.Usage|memory.Verbose)))
	require.NoError(t, h.setMethod(&countingMethod{}))

	_, err := h.region.Alloc(64, 0)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "msg=getmemory backend=safebrk")
	require.Contains(t, out, `msg="heap ready" method=counting pagesize=4096 segsize=65536 assert=safe,usage,verbose`)
	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("msg=usage")), out)
	require.Contains(t, out, "mode=bump")
	require.Equal(t, memory.Safe|memory.Usage|memory.Verbose, h.sys.Assert())
}

func TestHeapConfigureValidates(t *testing.T) {
	h := newTestHeap(t, nil)
	o := testOptions(memory.Safe)
	o.SegSize = 0
	require.Error(t, h.configure(o))
}
