package virtual

import "errors"

var (
	// ErrEntryNotFound is returned when no settings entry exists for a local id.
	ErrEntryNotFound = errors.New("virtual: settings entry not found")

	// ErrInvalidNodeID is returned for an empty node id.
	ErrInvalidNodeID = errors.New("virtual: invalid node id")

	// ErrInvalidDeviceType is returned for an empty or malformed device type.
	ErrInvalidDeviceType = errors.New("virtual: invalid device type")

	// ErrMalformedSettings is returned when "<type>:<instance>" cannot be parsed.
	ErrMalformedSettings = errors.New("virtual: malformed class and instance")

	// ErrInvalidPath is returned for an update with an empty or wildcard path.
	ErrInvalidPath = errors.New("virtual: invalid path")

	// ErrAlreadyReady is returned when MarkReady is called twice.
	ErrAlreadyReady = errors.New("virtual: device already ready")

	// ErrNotConnected is returned by SetValues when the bus is down, before
	// anything is published.
	ErrNotConnected = errors.New("virtual: bus not connected")

	// ErrDeviceClosed is passed to the done callback of updates discarded by Close.
	ErrDeviceClosed = errors.New("virtual: device closed")
)
