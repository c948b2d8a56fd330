package memory

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Reporter is the owner of a request. It is asked for a usage snapshot when
// the Usage assert bit is set, from inside the request, so it must not take
// any lock it holds while calling Memory.
type Reporter interface {
	Usage() (Stat, error)
}

// usage logs the owner's snapshot after a successful request. It never
// affects the result.
func (s *System) usage(owner Reporter, addr, size uintptr) {
	if owner == nil || !s.Assert().Has(Usage) {
		return
	}
	mesg := "init"
	if st, err := owner.Usage(); err == nil {
		mesg = st.Mesg
		if mesg == "" {
			mesg = st.Summarize()
		}
	}
	level.Debug(s.logger).Log("msg", "usage", "addr", fmt.Sprintf("%#x", addr), "size", size, "stat", mesg)
}

// NewStderrLogger returns a logfmt logger writing to standard error.
func NewStderrLogger() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
