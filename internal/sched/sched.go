package sched

import (
	"context"
	"time"
)

// Handle is a cancellable reference to a scheduled task.
type Handle interface {
	// Stop cancels the task. It reports whether the call prevented the
	// task from running; false means the task already ran or was stopped.
	Stop() bool
}

// Scheduler abstracts time-based scheduling so device controllers never
// touch the time package directly. Auto-close timers, retry delays,
// transit delays, and reconnect waits all go through a Scheduler, which
// lets tests drive them with virtual time via Manual.
type Scheduler interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the given duration or until the context is
	// cancelled, in which case it returns the context error.
	Sleep(ctx context.Context, d time.Duration) error

	// AfterFunc schedules fn to run after d. The returned Handle cancels
	// the task if it has not fired yet.
	AfterFunc(d time.Duration, fn func()) Handle
}

// Real is the wall-clock Scheduler used in production.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() *Real {
	return &Real{}
}

// Now returns the current wall-clock time in UTC.
func (*Real) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is cancelled.
func (*Real) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AfterFunc schedules fn on a wall-clock timer.
func (*Real) AfterFunc(d time.Duration, fn func()) Handle {
	return realHandle{timer: time.AfterFunc(d, fn)}
}

type realHandle struct {
	timer *time.Timer
}

func (h realHandle) Stop() bool {
	return h.timer.Stop()
}
