package mqtt

import "fmt"

// topicPrefix is the root of the Gatewise topic namespace.
const topicPrefix = "gatewise"

// Topics builds the Gatewise MQTT topic namespace.
//
// Layout:
//
//	gatewise/system/status                 gateway online/offline (retained)
//	gatewise/barrier/{deviceID}/state      barrier state changes (retained)
//	gatewise/lpr/{deviceID}/capture        accepted plate captures
//	gatewise/device/{deviceID}/connectivity poll results (retained)
//
// The zero value is ready to use.
type Topics struct{}

// SystemStatus returns the gateway status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// BarrierState returns the state topic for one barrier.
func (Topics) BarrierState(deviceID string) string {
	return fmt.Sprintf("%s/barrier/%s/state", topicPrefix, deviceID)
}

// Capture returns the plate capture topic for one LPR device.
func (Topics) Capture(deviceID string) string {
	return fmt.Sprintf("%s/lpr/%s/capture", topicPrefix, deviceID)
}

// Connectivity returns the connectivity topic for one device.
func (Topics) Connectivity(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/connectivity", topicPrefix, deviceID)
}
