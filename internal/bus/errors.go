package bus

import "errors"

var (
	// ErrInvalidAddress is returned for an empty or malformed service/path.
	ErrInvalidAddress = errors.New("bus: invalid address")

	// ErrInvalidPayload is returned when a bus payload is not {"value": ...} JSON.
	ErrInvalidPayload = errors.New("bus: invalid payload")

	// ErrNotConnected is returned for writes while the bus is unreachable.
	ErrNotConnected = errors.New("bus: not connected")
)
