package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/gatewise/gatewise-core/internal/barrier"
)

// ObserveCommand records the outcome and latency of a barrier command.
//
// Points land in the barrier_commands measurement, tagged by device and
// action so per-lane dashboards can split open from close latency.
func (c *Client) ObserveCommand(deviceID string, action barrier.Action, success bool, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"barrier_commands",
		map[string]string{
			"device_id": deviceID,
			"action":    string(action),
		},
		map[string]interface{}{
			"success":    success,
			"latency_ms": float64(elapsed.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// ObserveCapture records the confidence of an accepted plate capture.
func (c *Client) ObserveCapture(deviceID string, confidence float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"plate_captures",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"confidence": confidence,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// ObserveConnectivity records a device's online/offline transition.
//
// Both the hardware manager and the LPR manager feed this, so one
// measurement covers barriers and cameras alike.
func (c *Client) ObserveConnectivity(deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_connectivity",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the observer helpers.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
