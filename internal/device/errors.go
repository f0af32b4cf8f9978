package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrExists is returned when creating a device with an ID that
	// already exists.
	ErrExists = errors.New("device: already exists")

	// ErrInvalidConnConfig is returned when a persisted connection blob
	// cannot be parsed.
	ErrInvalidConnConfig = errors.New("device: invalid connection config")

	// ErrNoLaneDevice is returned when a lane has no device of the
	// requested kind associated.
	ErrNoLaneDevice = errors.New("device: no device for lane")
)
