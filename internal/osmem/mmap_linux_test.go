//go:build linux

package osmem

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMincoreErrno(t *testing.T) {
	s := New()
	page := s.PageSize()

	addr, err := s.MapAnon(0, page, false)
	require.NoError(t, err)

	var vec [1]byte
	require.Equal(t, unix.Errno(0), mincore(addr, page, &vec[0]))

	require.NoError(t, s.Unmap(addr, page))
	require.Equal(t, unix.ENOMEM, mincore(addr, page, &vec[0]))
}

func TestSegmentFree(t *testing.T) {
	s := New()
	page := s.PageSize()

	addr, err := s.MapAnon(0, 2*page, false)
	require.NoError(t, err)
	require.False(t, s.SegmentFree(addr, 2*page), "mapped pages are not free")

	require.NoError(t, s.Unmap(addr+page, page))
	require.False(t, s.SegmentFree(addr, 2*page), "one mapped page is enough to refuse")
	require.True(t, s.SegmentFree(addr+page, page))

	require.NoError(t, s.Unmap(addr, page))
	require.True(t, s.SegmentFree(addr, 2*page))

	require.False(t, s.SegmentFree(addr+1, page), "unaligned probes are refused")
}

func TestAdviseHuge(t *testing.T) {
	s := New()
	size := 8 * s.PageSize()

	addr, err := s.MapAnon(0, size, false)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Unmap(addr, size)) }()

	if err := s.AdviseHuge(addr, size); err != nil {
		// Kernels built without THP reject the advice.
		t.Skipf("MADV_HUGEPAGE unsupported: %v", err)
	}
}

func TestBreak(t *testing.T) {
	s := New()

	cur, err := s.Break()
	require.NoError(t, err)
	require.NotZero(t, cur)

	again, err := s.Break()
	require.NoError(t, err)
	require.Equal(t, cur, again, "reading the break must not move it")
}
