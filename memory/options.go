package memory

import (
	"flag"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
)

// Assert is the bitmask that enables backends and diagnostics.
type Assert uint32

const (
	// Safe enables the emulated program break over anonymous mappings.
	Safe Assert = 1 << iota
	// Anon enables one anonymous mapping per request.
	Anon
	// Break enables the real program break.
	Break
	// Native enables the native allocator fallback.
	Native
	// Usage logs a region usage snapshot after each acquire or release.
	Usage
	// Verbose logs backend selection and heap parameters.
	Verbose
	// CheckSeg makes the emulated break probe for a free segment and map it
	// at a fixed address.
	CheckSeg
)

var assertNames = []struct {
	bit  Assert
	name string
}{
	{Safe, "safe"},
	{Anon, "anon"},
	{Break, "break"},
	{Native, "native"},
	{Usage, "usage"},
	{Verbose, "verbose"},
	{CheckSeg, "checkseg"},
}

// Has reports whether every bit of b is set.
func (a Assert) Has(b Assert) bool { return a&b == b }

// String lists the set bits by name, comma separated.
func (a Assert) String() string {
	var names []string
	for _, n := range assertNames {
		if a&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// Set parses a comma separated list of names. It implements flag.Value.
func (a *Assert) Set(s string) error {
	var v Assert
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(strings.ToLower(field))
		if field == "" {
			continue
		}
		found := false
		for _, n := range assertNames {
			if n.name == field {
				v |= n.bit
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("memory: unknown assert flag %q", field)
		}
	}
	*a = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Assert) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Assert) UnmarshalText(b []byte) error { return a.Set(string(b)) }

// Options configures a System.
type Options struct {
	Assert Assert `yaml:"assert"`

	// SegSize is the rounding granularity regions grow by.
	SegSize datasize.ByteSize `yaml:"segment_size"`

	// MaxSpan bounds how far the emulated break may grow from its base.
	MaxSpan datasize.ByteSize `yaml:"max_span"`

	// Base is where the emulated break starts. Zero picks the current
	// program break, or a probe mapping where there is none.
	Base uint64 `yaml:"base_address"`
}

// DefaultOptions enables every backend with diagnostics off.
func DefaultOptions() Options {
	return Options{
		Assert:  Safe | Anon | Break | Native,
		SegSize: 1 * datasize.MB,
		MaxSpan: 64 * datasize.GB,
	}
}

// RegisterFlags registers the options under the "vmalloc." prefix.
func (o *Options) RegisterFlags(f *flag.FlagSet) {
	o.RegisterFlagsWithPrefix("vmalloc.", f)
}

// RegisterFlagsWithPrefix registers the options with every flag name prefixed.
func (o *Options) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Var(&o.Assert, prefix+"assert", "Comma separated backends and diagnostics: safe,anon,break,native,usage,verbose,checkseg.")
	f.TextVar(&o.SegSize, prefix+"segment-size", o.SegSize, "Granularity regions grow their address space by.")
	f.TextVar(&o.MaxSpan, prefix+"max-span", o.MaxSpan, "Maximum span of the emulated program break.")
	f.Uint64Var(&o.Base, prefix+"base-address", o.Base, "Start address of the emulated program break, 0 to pick one.")
}

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	if o.SegSize == 0 {
		return fmt.Errorf("memory: segment size must be positive")
	}
	if o.MaxSpan < o.SegSize {
		return fmt.Errorf("memory: max span %s smaller than segment size %s", o.MaxSpan.HR(), o.SegSize.HR())
	}
	if o.Base != 0 && o.Base+o.MaxSpan.Bytes() < o.Base {
		return fmt.Errorf("memory: base address %#x plus max span overflows", o.Base)
	}
	return nil
}
