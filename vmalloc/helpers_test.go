package vmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/vmheap/internal/testutil/fakehost"
	"github.com/joshuapare/vmheap/memory"
)

const page = 4096

// newTestRegion opens a bump region over a fake host with the given
// backends enabled.
func newTestRegion(t testing.TB, a memory.Assert) (*Region, *memory.System, *fakehost.Host) {
	t.Helper()
	h := fakehost.New(8 << 20)
	t.Cleanup(func() { require.NoError(t, h.Close()) })
	o := memory.DefaultOptions()
	o.Assert = a
	sys := memory.NewSystem(h, memory.WithOptions(o))
	r, err := Open(memory.NewDiscipline(sys), nil)
	require.NoError(t, err)
	return r, sys, h
}

func stat(t *testing.T, r *Region) memory.Stat {
	t.Helper()
	var st memory.Stat
	require.NoError(t, r.Stat(&st, 0))
	return st
}
