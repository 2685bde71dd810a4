package server

import (
	"context"
	"time"

	"github.com/shadowcpy/hashtable/internal/resqueue"
)

// Watchdog periodically checks whether the response queue has room to
// publish into. It has no per-client visibility — joined clients live in
// other processes and the server holds no handle to their read cursors
// — so it cannot name which client has stalled. What it can observe is
// the shared space semaphore: if it reads zero across StallThreshold
// consecutive polls, every slot is pinned waiting on some joined
// reader, which is the server-side symptom of a client that attached
// and stopped draining. It only logs; it never force-closes a slot or
// touches remaining_readers.
type Watchdog struct {
	resq           *resqueue.Queue
	logger         Logger
	interval       time.Duration
	stallThreshold int
}

// NewWatchdog builds a Watchdog that polls resq every interval and warns
// after stallThreshold consecutive polls observe a full response queue.
func NewWatchdog(resq *resqueue.Queue, logger Logger, interval time.Duration, stallThreshold int) *Watchdog {
	return &Watchdog{resq: resq, logger: logger, interval: interval, stallThreshold: stallThreshold}
}

// Run polls until ctx is done. Intended to be started with `go`.
func (wd *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(wd.interval)
	defer ticker.Stop()

	stalled := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if wd.resq.SpaceValue() == 0 {
				stalled++
			} else {
				stalled = 0
			}
			if stalled == wd.stallThreshold {
				wd.logger.Warnf("watchdog: response queue has been full for %d consecutive checks (%s); a joined client may not be draining responses", stalled, time.Duration(stalled)*wd.interval)
			}
		}
	}
}
