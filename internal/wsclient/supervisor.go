package wsclient

import (
	"context"
	"log"
	"time"
)

// stepBackoff maps a consecutive-error count to the delay before the next
// reconnect attempt, per §4.3's fixed thresholds. It is deliberately not an
// exponential backoff: the spec calls for flat steps, not doubling, so
// cenkalti/backoff (which only models the latter) is not a fit here.
func stepBackoff(errorCount int) time.Duration {
	switch {
	case errorCount <= 3:
		return 0
	case errorCount <= 10:
		return 1 * time.Second
	case errorCount <= 20:
		return 5 * time.Second
	default:
		return 10 * time.Second
	}
}

// healthySessionDuration is the session lifetime beyond which the
// consecutive-error counter is reset before it is incremented (§4.3).
const healthySessionDuration = 30 * time.Second

// nextErrorCount implements §4.3's reconnect bookkeeping: "increment
// consecutive_errors. If the just-finished attempt lasted more than 30s,
// reset consecutive_errors to 0 *before* incrementing." A failing attempt
// right after a healthy session therefore still lands at 1, not 0.
func nextErrorCount(current int, lived time.Duration) int {
	if lived > healthySessionDuration {
		current = 0
	}
	return current + 1
}

// SessionFactory builds a fresh Session for one connection attempt.
type SessionFactory func() *Session

// Supervisor reconnects a session indefinitely, applying stepBackoff between
// attempts and feeding every inbound frame from every generation of session
// onto a single out channel.
type Supervisor struct {
	newSession SessionFactory
	logger     *log.Logger

	errorCount int
}

// NewSupervisor constructs a Supervisor. logger may be nil, in which case
// reconnect events are not logged.
func NewSupervisor(newSession SessionFactory, logger *log.Logger) *Supervisor {
	return &Supervisor{newSession: newSession, logger: logger}
}

// Run drives the reconnect loop until ctx is canceled. It never returns a
// non-nil error for ordinary reconnects; it only returns when ctx is done.
func (sv *Supervisor) Run(ctx context.Context, out chan<- InboundFrame) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := stepBackoff(sv.errorCount)
		if delay > 0 {
			sv.logf("reconnecting in %s after %d consecutive errors", delay, sv.errorCount)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		session := sv.newSession()
		started := time.Now()
		err := session.Run(ctx, out)
		lived := time.Since(started)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		sv.errorCount = nextErrorCount(sv.errorCount, lived)

		if err != nil {
			sv.logf("session ended after %s: %v", lived, err)
		}
	}
}

func (sv *Supervisor) logf(format string, args ...any) {
	if sv.logger != nil {
		sv.logger.Printf(format, args...)
	}
}
