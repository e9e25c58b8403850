package flow

import "errors"

var (
	// ErrNodeNotFound is returned when no deployed node has the given id.
	ErrNodeNotFound = errors.New("flow: node not found")

	// ErrDuplicateID is returned when a deploy names the same id twice.
	ErrDuplicateID = errors.New("flow: duplicate node id")

	// ErrUnknownWire is returned when a wire targets an id not in the deploy.
	ErrUnknownWire = errors.New("flow: wire targets unknown node")

	// ErrInvalidPort is returned when a node has wires for ports it lacks.
	ErrInvalidPort = errors.New("flow: wires exceed node outputs")

	// ErrNotConnected is returned when reconciling while the bus is down.
	ErrNotConnected = errors.New("flow: bus not connected")

	// ErrNoReconciler is returned when no device manager is configured.
	ErrNoReconciler = errors.New("flow: no virtual device manager")

	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("flow: runtime shut down")
)
