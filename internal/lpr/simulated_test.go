package lpr

import (
	"context"
	"testing"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
	"github.com/gatewise/gatewise-core/internal/sched"
)

func TestSimulatedLPRTriggerProducesAcceptedCapture(t *testing.T) {
	dev := lprDevice("cam1", device.ProtocolSimulated)
	sink := &captureSink{}
	ctrl := NewSimulatedLPR(dev, sched.NewManual(time.Now()), nil, sink.emit)

	if !ctrl.Connect(context.Background()) {
		t.Fatal("simulated connect should succeed")
	}

	capture := ctrl.TriggerCapture(context.Background())
	if capture == nil {
		t.Fatal("trigger returned nil")
	}
	if capture.Confidence < dev.Conn.MinConfidence {
		t.Errorf("confidence = %v below gate %v", capture.Confidence, dev.Conn.MinConfidence)
	}
	if sink.count() != 1 {
		t.Errorf("notifications = %d, want 1", sink.count())
	}
	if last := ctrl.LastCapture(); last == nil || last.Plate != capture.Plate {
		t.Errorf("cache = %+v", last)
	}
}

func TestSimulatedLPRInjectGate(t *testing.T) {
	dev := lprDevice("cam1", device.ProtocolSimulated)
	sink := &captureSink{}
	ctrl := NewSimulatedLPR(dev, sched.NewManual(time.Now()), nil, sink.emit)
	ctrl.Connect(context.Background())

	if ctrl.Inject(Capture{Plate: "LO111", Confidence: 0.2}) {
		t.Error("below-threshold inject should be rejected")
	}
	if sink.count() != 0 {
		t.Errorf("notifications = %d, want 0", sink.count())
	}

	if !ctrl.Inject(Capture{Plate: "HI222", Confidence: 0.95}) {
		t.Error("accepted inject reported rejection")
	}
	if sink.count() != 1 {
		t.Errorf("notifications = %d, want 1", sink.count())
	}
}

func TestSimulatedLPRStatusFollowsConnection(t *testing.T) {
	dev := lprDevice("cam1", device.ProtocolSimulated)
	ctrl := NewSimulatedLPR(dev, sched.NewManual(time.Now()), nil, nil)

	ctrl.Connect(context.Background())
	if status := ctrl.Status(); !status.Online {
		t.Error("status should be online after connect")
	}

	ctrl.Disconnect()
	if status := ctrl.Status(); status.Online {
		t.Error("status should be offline after disconnect")
	}
	if ctrl.IsConnected() {
		t.Error("IsConnected should be false after disconnect")
	}
}
