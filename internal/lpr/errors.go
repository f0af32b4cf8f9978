package lpr

import "errors"

// Domain errors for the lpr package.
var (
	// ErrEventNotFound is returned when a plate event ID does not exist.
	ErrEventNotFound = errors.New("lpr: plate event not found")

	// ErrUnknownVendor is returned when a device names a vendor with no
	// registered profile and provides no custom paths.
	ErrUnknownVendor = errors.New("lpr: unknown vendor")

	// ErrParse is returned when a vendor payload cannot be interpreted
	// as a capture.
	ErrParse = errors.New("lpr: unparseable vendor payload")
)
