package notification

import "errors"

var (
	// ErrInvalidType is returned for a type outside 0..2.
	ErrInvalidType = errors.New("notification: invalid type")

	// ErrEmptyTitle is returned when the title is blank after sanitising.
	ErrEmptyTitle = errors.New("notification: title is required")

	// ErrTitleTooLong is returned for titles over MaxTitleLength characters.
	ErrTitleTooLong = errors.New("notification: title too long")

	// ErrMessageTooLong is returned for messages over MaxMessageLength characters.
	ErrMessageTooLong = errors.New("notification: message too long")
)
