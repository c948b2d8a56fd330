package memory

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Stat is a snapshot of a region's usage.
type Stat struct {
	NBusy  int     // busy blocks
	NFree  int     // free blocks
	SBusy  uintptr // bytes in busy blocks
	SFree  uintptr // bytes in free blocks
	MBusy  uintptr // largest busy block
	MFree  uintptr // largest free block
	NSeg   int     // segments held from the discipline
	Extent uintptr // bytes held from the discipline
	Mode   string  // method name
	Mesg   string  // one line summary, set by Summarize
}

var statPrinter = message.NewPrinter(language.English)

// Summarize fills Mesg from the other fields and returns it.
func (s *Stat) Summarize() string {
	s.Mesg = statPrinter.Sprintf("mode=%s segs=%d extent=%d busy=(%d,%d,%d) free=(%d,%d,%d)",
		s.Mode, s.NSeg, s.Extent,
		s.NBusy, s.SBusy, s.MBusy,
		s.NFree, s.SFree, s.MFree)
	return s.Mesg
}
