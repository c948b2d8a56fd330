package memory

import (
	"flag"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAssertNames(t *testing.T) {
	var a Assert
	require.NoError(t, a.Set("safe, Anon,checkseg"))
	assert.Equal(t, Safe|Anon|CheckSeg, a)
	assert.Equal(t, "safe,anon,checkseg", a.String())
	assert.True(t, a.Has(Safe|Anon))
	assert.False(t, a.Has(Safe|Break))

	require.NoError(t, a.Set(""))
	assert.Equal(t, Assert(0), a)

	err := a.Set("safe,turbo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")
}

func TestOptionsFlags(t *testing.T) {
	o := DefaultOptions()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"-vmalloc.assert=break,verbose",
		"-vmalloc.segment-size=2MB",
		"-vmalloc.base-address=1048576",
	}))
	assert.Equal(t, Break|Verbose, o.Assert)
	assert.Equal(t, 2*datasize.MB, o.SegSize)
	assert.Equal(t, 64*datasize.GB, o.MaxSpan)
	assert.Equal(t, uint64(1<<20), o.Base)
	require.NoError(t, o.Validate())
}

func TestOptionsYAML(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, yaml.Unmarshal([]byte("assert: safe,usage\nsegment_size: 4MB\n"), &o))
	assert.Equal(t, Safe|Usage, o.Assert)
	assert.Equal(t, 4*datasize.MB, o.SegSize)
	assert.Equal(t, 64*datasize.GB, o.MaxSpan)

	out, err := yaml.Marshal(&o)
	require.NoError(t, err)
	assert.Contains(t, string(out), "assert: safe,usage")

	var back Options
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, o, back)
}

func TestOptionsValidate(t *testing.T) {
	o := DefaultOptions()
	o.SegSize = 0
	require.Error(t, o.Validate())

	o = DefaultOptions()
	o.MaxSpan = o.SegSize / 2
	require.Error(t, o.Validate())

	o = DefaultOptions()
	o.Base = ^uint64(0) - 4096
	require.Error(t, o.Validate())
}
