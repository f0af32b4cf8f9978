package barrier

import (
	"context"
	"testing"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func barrierDevice(id, lane string, protocol device.Protocol) *device.Device {
	d := &device.Device{
		ID:       id,
		Name:     "barrier " + id,
		Kind:     device.KindBarrier,
		Protocol: protocol,
		Status:   device.StatusUnknown,
	}
	if lane != "" {
		d.LaneID = strPtr(lane)
	}
	d.Conn.ApplyDefaults()
	return d
}

func TestSimulatedOpenThenAutoClose(t *testing.T) {
	dev := barrierDevice("dev1", "lane-1", device.ProtocolSimulated)
	ledger := NewMockLedger()
	clock := sched.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ctrl := NewSimulated(dev, ledger, clock, nil, nil, WithTransitDelay(0))

	result := ctrl.Open(context.Background(), "corr1")
	if !result.Success {
		t.Fatalf("open failed: %+v", result)
	}
	if result.State != StateOpen {
		t.Errorf("result state = %q, want open", result.State)
	}
	if ctrl.State() != StateOpen {
		t.Errorf("state after open = %q, want open", ctrl.State())
	}

	// Hold duration elapses with no further calls.
	clock.Advance(dev.Conn.OpenDuration())

	if ctrl.State() != StateClosed {
		t.Errorf("state after hold = %q, want closed", ctrl.State())
	}
}

func TestSimulatedOpenThenImmediateClose(t *testing.T) {
	dev := barrierDevice("dev1", "", device.ProtocolSimulated)
	ledger := NewMockLedger()
	clock := sched.NewManual(time.Now())
	rec := &stateRecorder{}

	ctrl := NewSimulated(dev, ledger, clock, nil, rec.listener(), WithTransitDelay(0))

	if r := ctrl.Open(context.Background(), "corr1"); !r.Success {
		t.Fatalf("open failed: %+v", r)
	}
	if r := ctrl.Close(context.Background(), "corr2"); !r.Success {
		t.Fatalf("close failed: %+v", r)
	}
	if ctrl.State() != StateClosed {
		t.Fatalf("state = %q, want closed", ctrl.State())
	}

	before := len(rec.all())

	// The cancelled auto-close must not fire a duplicate transition.
	clock.Advance(2 * dev.Conn.OpenDuration())

	if after := len(rec.all()); after != before {
		t.Errorf("auto-close fired after explicit close: %v", rec.all())
	}
	if ctrl.State() != StateClosed {
		t.Errorf("state after hold = %q, want closed", ctrl.State())
	}
}

func TestSimulatedCommandsReachTerminalStatus(t *testing.T) {
	dev := barrierDevice("dev1", "", device.ProtocolSimulated)
	ledger := NewMockLedger()
	clock := sched.NewManual(time.Now())

	ctrl := NewSimulated(dev, ledger, clock, nil, nil, WithTransitDelay(0))

	ctrl.Open(context.Background(), "corr1")
	ctrl.Close(context.Background(), "corr2")

	for _, corr := range []string{"corr1", "corr2"} {
		status, ok := ledger.Status(corr)
		if !ok {
			t.Fatalf("no ledger row for %s", corr)
		}
		if status != CommandExecuted {
			t.Errorf("%s status = %q, want EXECUTED", corr, status)
		}
	}
	if n := ledger.PendingCount(); n != 0 {
		t.Errorf("pending rows = %d, want 0", n)
	}
}

func TestSimulatedStateSequence(t *testing.T) {
	dev := barrierDevice("dev1", "lane-1", device.ProtocolSimulated)
	ledger := NewMockLedger()
	clock := sched.NewManual(time.Now())
	rec := &stateRecorder{}

	ctrl := NewSimulated(dev, ledger, clock, nil, rec.listener(), WithTransitDelay(0))

	ctrl.Open(context.Background(), "corr1")
	clock.Advance(dev.Conn.OpenDuration())

	want := []State{StateOpening, StateOpen, StateClosing, StateClosed}
	got := rec.all()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSimulatedAlwaysConnected(t *testing.T) {
	dev := barrierDevice("dev1", "", device.ProtocolSimulated)
	ctrl := NewSimulated(dev, NewMockLedger(), sched.NewManual(time.Now()), nil, nil)

	if !ctrl.IsConnected() {
		t.Error("simulated barrier should always be connected")
	}
	if !ctrl.Probe(context.Background()) {
		t.Error("simulated probe should always succeed")
	}
}
