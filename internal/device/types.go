package device

import (
	"time"

	"github.com/google/uuid"
)

// Device represents a physical unit managed by the integration layer:
// an entry/exit barrier, an LPR camera, or a payment kiosk.
//
// Devices are created by the device-management console; this layer loads
// them once at manager initialization to construct runtime controllers
// and only ever writes back the Status and LastSeen fields.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Classification
	Kind     Kind     `json:"kind"`
	Protocol Protocol `json:"protocol"`

	// Lane association. Direction applies to LPR devices and tells the
	// manager whether captures on this lane are entries or exits.
	LaneID    *string   `json:"lane_id,omitempty"`
	Direction Direction `json:"direction,omitempty"`

	// Conn holds the protocol-specific connection parameters, persisted
	// as a JSON blob alongside the device row.
	Conn ConnConfig `json:"conn"`

	// Connectivity, written back by the managers' polls.
	Status   ConnStatus `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the Device so cache entries cannot
// be mutated through returned values.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.LaneID != nil {
		lane := *d.LaneID
		cpy.LaneID = &lane
	}
	if d.LastSeen != nil {
		seen := *d.LastSeen
		cpy.LastSeen = &seen
	}
	cpy.Conn = d.Conn.clone()
	return &cpy
}

// Kind represents the physical device category.
type Kind string

// Kind constants.
const (
	KindBarrier Kind = "barrier"
	KindLPR     Kind = "lpr"
	KindKiosk   Kind = "kiosk"
)

// AllKinds returns all valid kind values.
func AllKinds() []Kind {
	return []Kind{KindBarrier, KindLPR, KindKiosk}
}

// Protocol represents the transport a controller uses to reach a device.
type Protocol string

// Protocol constants.
const (
	// ProtocolSimulated is an in-process controller used for lanes
	// without physical hardware and for tests.
	ProtocolSimulated Protocol = "simulated"

	// ProtocolHTTP covers HTTP barrier actuators and HTTP LPR vendor
	// adapters.
	ProtocolHTTP Protocol = "http"

	// ProtocolRelay is a commodity relay board actuating a barrier arm.
	ProtocolRelay Protocol = "relay"

	// ProtocolTCP is a persistent raw socket to an LPR unit.
	ProtocolTCP Protocol = "tcp"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolSimulated, ProtocolHTTP, ProtocolRelay, ProtocolTCP}
}

// Direction is the traffic direction of a lane-attached device.
type Direction string

// Direction constants.
const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

// ConnStatus is the last-known connectivity of a device.
type ConnStatus string

// ConnStatus constants.
const (
	StatusOnline  ConnStatus = "online"
	StatusOffline ConnStatus = "offline"
	StatusUnknown ConnStatus = "unknown"
)

// GenerateID creates a new UUID for a device, command, or plate event.
func GenerateID() string {
	return uuid.New().String()
}
