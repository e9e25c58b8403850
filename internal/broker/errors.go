package broker

import "errors"

var (
	// ErrInvalidAddress is returned when Subscribe or AddStatusListener get a malformed address.
	ErrInvalidAddress = errors.New("broker: invalid address")

	// ErrNilCallback is returned when a nil callback is registered.
	ErrNilCallback = errors.New("broker: callback is nil")
)
