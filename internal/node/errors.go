package node

import "errors"

var (
	// ErrMissingID is returned for a node config without an id.
	ErrMissingID = errors.New("node: id is required")

	// ErrUnknownType is returned for an unregistered node type.
	ErrUnknownType = errors.New("node: unknown node type")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("node: invalid configuration")

	// ErrServiceMismatch is returned when a configured service does not
	// belong to the node type's service category.
	ErrServiceMismatch = errors.New("node: service does not match node type")

	// ErrNoInput is returned when a message is sent to a node without an input.
	ErrNoInput = errors.New("node: node has no input")

	// ErrDisabled is returned for input to a disabled output node.
	ErrDisabled = errors.New("node: output is disabled")

	// ErrInvalidPayload is returned for a message payload the node cannot use.
	ErrInvalidPayload = errors.New("node: invalid payload")

	// ErrClosed is returned for operations on a closed node.
	ErrClosed = errors.New("node: closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("node: already started")
)
