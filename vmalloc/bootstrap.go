package vmalloc

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/grafana/dskit/backoff"
	"go.uber.org/atomic"
)

const (
	statusUnset uint32 = iota
	statusBusy
	statusDone
)

// spinRounds is how often a waiter yields before it starts sleeping.
const spinRounds = 16

var waitBackoff = backoff.Config{
	MinBackoff: time.Microsecond,
	MaxBackoff: time.Millisecond,
}

// bootstrap runs build exactly once successfully. Whoever moves the status
// from unset to busy builds; everyone else waits until it is done, or until
// it is unset again after a failure and they may try themselves.
type bootstrap struct {
	status atomic.Uint32
	build  func() error
}

func (b *bootstrap) init() error {
	for {
		switch b.status.Load() {
		case statusDone:
			return nil
		case statusUnset:
			if !b.status.CompareAndSwap(statusUnset, statusBusy) {
				continue
			}
			if err := b.build(); err != nil {
				b.status.Store(statusUnset)
				return fmt.Errorf("%w: %w", ErrHeapInit, err)
			}
			// Everything build wrote is visible to whoever sees done.
			b.status.Store(statusDone)
			return nil
		default:
			b.wait()
		}
	}
}

// wait returns once the status is no longer busy.
func (b *bootstrap) wait() {
	for range spinRounds {
		runtime.Gosched()
		if b.status.Load() != statusBusy {
			return
		}
	}
	bo := backoff.New(context.Background(), waitBackoff)
	for bo.Ongoing() && b.status.Load() == statusBusy {
		bo.Wait()
	}
}

func (b *bootstrap) busy() bool { return b.status.Load() == statusBusy }

func (b *bootstrap) done() bool { return b.status.Load() == statusDone }
