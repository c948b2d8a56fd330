package vmalloc

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/vmheap/internal/testutil/fakehost"
	"github.com/joshuapare/vmheap/memory"
)

func TestBumpAllocFree(t *testing.T) {
	r, _, _ := newTestRegion(t, memory.Safe)

	a1, err := r.Alloc(100, 0)
	require.NoError(t, err)
	a2, err := r.Alloc(10, 0)
	require.NoError(t, err)
	require.Equal(t, a1+112, a2)
	require.Zero(t, a1%blockAlign)

	st := stat(t, r)
	assert.Equal(t, 1, st.NSeg)
	assert.Equal(t, uintptr(page), st.Extent)
	assert.Equal(t, 2, st.NBusy)
	assert.Equal(t, uintptr(128), st.SBusy)
	assert.Equal(t, uintptr(112), st.MBusy)
	assert.Equal(t, 1, st.NFree)
	assert.Equal(t, uintptr(page-128), st.SFree)
	assert.Equal(t, "bump", st.Mode)
	assert.Contains(t, st.Mesg, "mode=bump")

	// Freeing the last block moves the bump pointer back.
	require.NoError(t, r.Free(a2, 0))
	a3, err := r.Alloc(16, 0)
	require.NoError(t, err)
	require.Equal(t, a2, a3)

	require.NoError(t, r.Free(a1, 0))
	st = stat(t, r)
	assert.Equal(t, 1, st.NBusy)
	assert.Equal(t, 2, st.NFree)
	require.ErrorIs(t, r.Free(a1, 0), ErrBadAddr)

	require.NoError(t, r.Free(a3, 0))
	st = stat(t, r)
	assert.Zero(t, st.NBusy)
	assert.Equal(t, 1, st.NFree)
	assert.Equal(t, uintptr(page), st.SFree)
}

func TestBumpGrowsSegmentInPlace(t *testing.T) {
	r, sys, _ := newTestRegion(t, memory.Safe)

	a1, err := r.Alloc(3000, 0)
	require.NoError(t, err)
	a2, err := r.Alloc(3000, 0)
	require.NoError(t, err)
	require.Equal(t, a1+3008, a2)

	st := stat(t, r)
	assert.Equal(t, 1, st.NSeg)
	assert.Equal(t, uintptr(2*page), st.Extent)
	assert.Equal(t, uintptr(2*page), sys.Selected().Committed())
}

func TestBumpReleasesEmptySegments(t *testing.T) {
	r, sys, _ := newTestRegion(t, memory.Anon)

	a1, err := r.Alloc(3000, 0)
	require.NoError(t, err)
	a2, err := r.Alloc(3000, 0)
	require.NoError(t, err)
	require.Equal(t, 2, stat(t, r).NSeg)

	// The current segment is kept even when empty.
	require.NoError(t, r.Free(a2, 0))
	require.Equal(t, 2, stat(t, r).NSeg)

	require.NoError(t, r.Free(a1, 0))
	st := stat(t, r)
	assert.Equal(t, 1, st.NSeg)
	assert.Equal(t, uintptr(page), st.Extent)
	assert.Equal(t, uintptr(page), sys.Backend(memory.NameAnon).Committed())
}

func TestBumpResize(t *testing.T) {
	r, _, _ := newTestRegion(t, memory.Safe)

	a, err := r.Alloc(100, 0)
	require.NoError(t, err)
	fill(bytesAt(a, 112), 0xab)
	fill(bytesAt(a+112, 96), 0xcd)

	got, err := r.Resize(a, 200, Zero)
	require.NoError(t, err)
	require.Equal(t, a, got)
	require.Equal(t, make([]byte, 96), bytesAt(a+112, 96))

	b, err := r.Alloc(16, 0)
	require.NoError(t, err)
	require.Equal(t, a+208, b)

	_, err = r.Resize(a, 400, 0)
	require.ErrorIs(t, err, ErrNoSpace)

	moved, err := r.Resize(a, 400, Move|Copy|Zero)
	require.NoError(t, err)
	require.Equal(t, b+16, moved)
	require.Equal(t, bytes.Repeat([]byte{0xab}, 112), bytesAt(moved, 112))
	require.Equal(t, make([]byte, 400-208), bytesAt(moved+208, 400-208))

	_, err = r.Resize(a, 10, 0)
	require.ErrorIs(t, err, ErrBadAddr)

	// Shrinking a block that is not last keeps it where it is.
	got, err = r.Resize(b, 8, 0)
	require.NoError(t, err)
	require.Equal(t, b, got)

	// The last block shrinks in place and gives the space back.
	got, err = r.Resize(moved, 16, 0)
	require.NoError(t, err)
	require.Equal(t, moved, got)
	next, err := r.Alloc(16, 0)
	require.NoError(t, err)
	require.Equal(t, moved+16, next)
}

func TestBumpRejectsHugeSizes(t *testing.T) {
	r, _, _ := newTestRegion(t, memory.Safe)

	for _, size := range []uintptr{^uintptr(0), ^uintptr(0) - 3, ^uintptr(0) - blockAlign} {
		addr, err := r.Alloc(size, 0)
		require.ErrorIs(t, err, ErrTooLarge, "size %#x", size)
		require.Zero(t, addr)
	}

	_, err := r.Align(^uintptr(0)-blockAlign, 1<<20, 0)
	require.Error(t, err)

	a, err := r.Alloc(64, 0)
	require.NoError(t, err)

	got, err := r.Resize(a, ^uintptr(0)-3, 0)
	require.ErrorIs(t, err, ErrTooLarge)
	require.Zero(t, got)

	// Big enough to survive rounding but too big to place anywhere.
	got, err = r.Resize(a, ^uintptr(0)-2*blockAlign, Move)
	require.Error(t, err)
	require.Zero(t, got)

	st := stat(t, r)
	assert.Equal(t, 1, st.NBusy)
	assert.Equal(t, uintptr(64), st.SBusy)
}

func TestBumpAlign(t *testing.T) {
	r, _, _ := newTestRegion(t, memory.Anon)

	_, err := r.Alloc(1, 0)
	require.NoError(t, err)

	addr, err := r.Align(100, 256, 0)
	require.NoError(t, err)
	require.Zero(t, addr%256)

	addr, err = r.Align(10, 8, 0)
	require.NoError(t, err)
	require.Zero(t, addr%blockAlign)

	addr, err = r.Align(10, 2*page, 0)
	require.NoError(t, err)
	require.Zero(t, addr%(2*page))

	_, err = r.Align(10, 3, 0)
	require.ErrorIs(t, err, ErrBadAlign)
	_, err = r.Align(10, 0, 0)
	require.ErrorIs(t, err, ErrBadAlign)
}

func TestBumpClose(t *testing.T) {
	r, sys, _ := newTestRegion(t, memory.Anon)
	for range 3 {
		_, err := r.Alloc(3000, 0)
		require.NoError(t, err)
	}
	require.Equal(t, uintptr(3*page), sys.Selected().Committed())

	require.NoError(t, r.Close())
	require.Zero(t, sys.Selected().Committed())

	_, err := r.Alloc(1, 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, r.Close(), ErrClosed)
}

func TestBumpCloseReportsReleaseErrors(t *testing.T) {
	r, _, h := newTestRegion(t, memory.Break)
	_, err := r.Alloc(100, 0)
	require.NoError(t, err)

	h.Interfere(page)
	require.ErrorIs(t, r.Close(), memory.ErrNotTop)
}

func TestRegionUsageDuringGrowth(t *testing.T) {
	var buf bytes.Buffer
	h := fakehost.New(4 << 20)
	t.Cleanup(func() { require.NoError(t, h.Close()) })
	o := memory.DefaultOptions()
	o.Assert = memory.Safe | memory.Usage
	sys := memory.NewSystem(h, memory.WithOptions(o), memory.WithLogger(log.NewLogfmtLogger(log.NewSyncWriter(&buf))))
	r, err := Open(memory.NewDiscipline(sys), Bump)
	require.NoError(t, err)

	// Both calls reach the discipline while the region lock is held.
	_, err = r.Alloc(3000, 0)
	require.NoError(t, err)
	_, err = r.Alloc(3000, 0)
	require.NoError(t, err)

	out := buf.String()
	require.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("msg=usage")), out)
	require.Contains(t, out, "mode=bump segs=1 extent=4,096")
}

func TestRegionMark(t *testing.T) {
	r, _, _ := newTestRegion(t, memory.Safe)
	r.Mark("main.go", 42, "main.run")
	file, line, fn := r.Attribution()
	assert.Equal(t, "main.go", file)
	assert.Equal(t, 42, line)
	assert.Equal(t, "main.run", fn)
	assert.Equal(t, Bump, r.Method())
	assert.NotNil(t, r.Discipline())
}

func TestRegionConcurrentAlloc(t *testing.T) {
	r, _, _ := newTestRegion(t, memory.Safe)

	const workers, each = 8, 64
	got := make([][]uintptr, workers)
	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for range each {
				addr, err := r.Alloc(48, 0)
				if err != nil {
					return err
				}
				got[w] = append(got[w], addr)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[uintptr]bool)
	for _, addrs := range got {
		for _, a := range addrs {
			require.False(t, seen[a])
			seen[a] = true
			require.NoError(t, r.Free(a, 0))
		}
	}
	require.Zero(t, stat(t, r).NBusy)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
