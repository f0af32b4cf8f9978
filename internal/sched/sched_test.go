package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualAfterFuncFiresOnAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var fired atomic.Int32
	m.AfterFunc(5*time.Second, func() { fired.Add(1) })

	m.Advance(4 * time.Second)
	if fired.Load() != 0 {
		t.Fatal("task fired before its deadline")
	}

	m.Advance(1 * time.Second)
	if fired.Load() != 1 {
		t.Fatalf("task fired %d times, want 1", fired.Load())
	}

	// Advancing further must not re-fire.
	m.Advance(10 * time.Second)
	if fired.Load() != 1 {
		t.Fatalf("task fired %d times after extra advance, want 1", fired.Load())
	}
}

func TestManualStopPreventsFiring(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var fired atomic.Int32
	h := m.AfterFunc(time.Second, func() { fired.Add(1) })

	if !h.Stop() {
		t.Fatal("Stop() before fire should return true")
	}
	if h.Stop() {
		t.Error("second Stop() should return false")
	}

	m.Advance(time.Minute)
	if fired.Load() != 0 {
		t.Error("stopped task fired")
	}
	if m.PendingTasks() != 0 {
		t.Errorf("PendingTasks() = %d, want 0", m.PendingTasks())
	}
}

func TestManualTasksFireInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []int
	m.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	m.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	m.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	m.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("tasks fired in order %v, want [1 2 3]", order)
	}
}

func TestManualSleepReleasedByAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	done := make(chan error, 1)
	go func() {
		done <- m.Sleep(context.Background(), 2*time.Second)
	}()

	// Give the sleeper time to register, then advance past its deadline.
	time.Sleep(10 * time.Millisecond)
	m.Advance(2 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Sleep() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep() not released by Advance()")
	}
}

func TestManualSleepCancelledByContext(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- m.Sleep(ctx, time.Hour)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("cancelled Sleep() should return context error")
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep() not released by context cancellation")
	}
}

func TestRealSleepRespectsContext(t *testing.T) {
	s := NewReal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Sleep(ctx, time.Hour); err == nil {
		t.Error("Sleep() with cancelled context should return error")
	}
}

func TestRealAfterFuncStop(t *testing.T) {
	s := NewReal()
	var fired atomic.Int32
	h := s.AfterFunc(time.Hour, func() { fired.Add(1) })
	if !h.Stop() {
		t.Error("Stop() on pending timer should return true")
	}
	if fired.Load() != 0 {
		t.Error("stopped timer fired")
	}
}
