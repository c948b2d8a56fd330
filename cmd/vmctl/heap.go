package main

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/joshuapare/vmheap/memory"
	"github.com/joshuapare/vmheap/vmalloc"
)

var (
	heapCount int
	heapSize  string
	heapKeep  int
)

func init() {
	cmd := newHeapCmd()
	cmd.Flags().IntVar(&heapCount, "count", 1000, "Number of blocks to allocate")
	cmd.Flags().StringVar(&heapSize, "size", "256B", "Size of each block")
	cmd.Flags().IntVar(&heapKeep, "keep", 2, "Keep every n-th block, free the rest")
	rootCmd.AddCommand(cmd)
}

func newHeapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heap",
		Short: "Run an allocation workload against the process heap",
		Long: `The heap command builds the process heap region with the configured
options, allocates blocks from it, frees some of them and reports the
heap's usage and the backend it ended up on.

Example:
  vmctl heap
  vmctl heap --count 100000 --size 1KB --keep 3
  vmctl heap --vmalloc.assert=anon,usage -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeap()
		},
	}
	return cmd
}

type heapReport struct {
	Backend   string       `json:"backend"`
	Committed uint64       `json:"committed"`
	Stat      memory.Stat  `json:"stat"`
	Options   heapSettings `json:"options"`
}

type heapSettings struct {
	Assert  string `json:"assert"`
	SegSize uint64 `json:"segment_size"`
}

func runHeap() error {
	size, err := datasize.ParseString(heapSize)
	if err != nil {
		return fmt.Errorf("invalid --size %q: %w", heapSize, err)
	}
	if heapCount < 0 || heapKeep < 1 {
		return fmt.Errorf("--count must be non-negative and --keep positive")
	}

	gatherer = prometheus.DefaultGatherer
	if err := vmalloc.Configure(opts); err != nil {
		return fmt.Errorf("failed to configure heap: %w", err)
	}

	heap := vmalloc.Heap()
	heap.Mark("vmctl", 0, "runHeap")

	addrs := make([]uintptr, 0, heapCount)
	for i := 0; i < heapCount; i++ {
		addr, err := heap.Alloc(uintptr(size.Bytes()), 0)
		if err != nil {
			return fmt.Errorf("allocation %d failed: %w", i, err)
		}
		addrs = append(addrs, addr)
	}
	printVerbose("Allocated %s blocks of %s\n", humanize.Comma(int64(heapCount)), humanize.IBytes(size.Bytes()))

	freed := 0
	for i, addr := range addrs {
		if i%heapKeep == 0 {
			continue
		}
		if err := heap.Free(addr, 0); err != nil {
			return fmt.Errorf("free of %#x failed: %w", addr, err)
		}
		freed++
	}
	printVerbose("Freed %s blocks\n", humanize.Comma(int64(freed)))

	var st memory.Stat
	if err := heap.Stat(&st, 0); err != nil {
		return fmt.Errorf("failed to stat heap: %w", err)
	}

	report := heapReport{
		Stat: st,
		Options: heapSettings{
			Assert:  opts.Assert.String(),
			SegSize: opts.SegSize.Bytes(),
		},
	}
	if b := vmalloc.HeapSystem().Selected(); b != nil {
		report.Backend = b.Name()
		report.Committed = uint64(b.Committed())
	}

	if jsonOut {
		return printJSON(report)
	}
	printInfo("Backend:   %s\n", report.Backend)
	printInfo("Committed: %s\n", humanize.IBytes(report.Committed))
	printInfo("Segments:  %d (%s)\n", st.NSeg, humanize.IBytes(uint64(st.Extent)))
	printInfo("Busy:      %s blocks, %s, largest %s\n",
		humanize.Comma(int64(st.NBusy)), humanize.IBytes(uint64(st.SBusy)), humanize.IBytes(uint64(st.MBusy)))
	printInfo("Free:      %s blocks, %s, largest %s\n",
		humanize.Comma(int64(st.NFree)), humanize.IBytes(uint64(st.SFree)), humanize.IBytes(uint64(st.MFree)))
	printVerbose("Summary:   %s\n", st.Mesg)
	return nil
}
