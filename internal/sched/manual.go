package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven entirely by Advance calls. Tests use it to
// fire auto-close timers, retry delays, and poll waits deterministically
// without real sleeping.
//
// All methods are safe for concurrent use.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tasks   []*manualTask
	waiters []*manualWaiter
}

type manualTask struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

type manualWaiter struct {
	at   time.Time
	done chan struct{}
}

// NewManual creates a Manual scheduler starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep blocks until virtual time advances past the deadline or the
// context is cancelled.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	m.mu.Lock()
	w := &manualWaiter{at: m.now.Add(d), done: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return nil
	}
}

// AfterFunc schedules fn at now+d in virtual time.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTask{at: m.now.Add(d), fn: fn}
	m.tasks = append(m.tasks, t)
	return manualHandle{m: m, t: t}
}

// Advance moves virtual time forward by d, firing due tasks in deadline
// order and releasing due sleepers. Task functions run synchronously on
// the calling goroutine, after the clock has moved, matching the ordering
// guarantees of time.AfterFunc closely enough for controller tests.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		t := m.nextDueTaskLocked(target)
		if t == nil {
			break
		}
		if t.at.After(m.now) {
			m.now = t.at
		}
		t.fired = true
		m.releaseWaitersLocked()
		fn := t.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.releaseWaitersLocked()
	m.mu.Unlock()
}

// nextDueTaskLocked returns the earliest unfired task at or before target.
func (m *Manual) nextDueTaskLocked(target time.Time) *manualTask {
	var due []*manualTask
	for _, t := range m.tasks {
		if !t.fired && !t.stopped && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	return due[0]
}

// releaseWaitersLocked unblocks sleepers whose deadline has passed.
func (m *Manual) releaseWaitersLocked() {
	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.at.After(m.now) {
			close(w.done)
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
}

// PendingTasks returns how many scheduled tasks have neither fired nor
// been stopped. Useful for asserting a cancelled auto-close never fires.
func (m *Manual) PendingTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, t := range m.tasks {
		if !t.fired && !t.stopped {
			count++
		}
	}
	return count
}

type manualHandle struct {
	m *Manual
	t *manualTask
}

func (h manualHandle) Stop() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if h.t.fired || h.t.stopped {
		return false
	}
	h.t.stopped = true
	return true
}
