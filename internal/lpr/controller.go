package lpr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gatewise/gatewise-core/internal/device"
)

// Capture is one recognition produced by an LPR controller and consumed
// once by the manager. Plate holds the vendor's raw string; confidence
// is normalized to 0..1 regardless of how the vendor reports it.
type Capture struct {
	Plate         string          `json:"plate"`
	Confidence    float64         `json:"confidence"`
	CapturedAt    time.Time       `json:"captured_at"`
	ImageRef      string          `json:"image_ref,omitempty"`
	VendorEventID string          `json:"vendor_event_id,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// Status is a controller's connectivity report.
type Status struct {
	DeviceID string     `json:"device_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Emit is the outbound capture notification. Controllers call it only
// for captures that passed the confidence gate; rejected captures are
// never announced.
type Emit func(capture Capture)

// Controller drives one LPR camera or recognition unit.
type Controller interface {
	// Connect establishes the device link and starts any polling or
	// read loop. It reports whether the initial probe succeeded.
	Connect(ctx context.Context) bool

	// Disconnect stops polling and tears down the link. Idempotent.
	Disconnect()

	// IsConnected reports the current link state.
	IsConnected() bool

	// LastCapture returns the most recent accepted capture, or nil.
	LastCapture() *Capture

	// TriggerCapture actively requests a recognition. It returns nil on
	// parse failure or when the result falls below the confidence gate.
	TriggerCapture(ctx context.Context) *Capture

	// Status reports connectivity for the manager's status fan-out.
	Status() Status
}

// event is an accepted capture annotated with its device context,
// queued for the manager's consumption loop.
type event struct {
	DeviceID  string
	LaneID    *string
	Direction device.Direction
	Capture   Capture
}

// defaultMinConfidence gates captures for devices that configure no
// minimum of their own and run without a site-wide override.
const defaultMinConfidence = 0.7

// applyConfidenceFloor fills the device's confidence gate when its
// connection blob sets none: the site default wins, then the built-in
// floor.
func applyConfidenceFloor(dev *device.Device, siteDefault float64) {
	if dev.Conn.MinConfidence > 0 {
		return
	}
	if siteDefault > 0 {
		dev.Conn.MinConfidence = siteDefault
		return
	}
	dev.Conn.MinConfidence = defaultMinConfidence
}
