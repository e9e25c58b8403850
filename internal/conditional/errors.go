package conditional

import "errors"

var (
	// ErrInvalidOperator is returned for a comparison operator outside >, <, >=, <=, ==, !=.
	ErrInvalidOperator = errors.New("conditional: invalid operator")

	// ErrInvalidLogic is returned for a logic operator other than AND or OR.
	ErrInvalidLogic = errors.New("conditional: invalid logic operator")

	// ErrInvalidDebounce is returned for a negative debounce.
	ErrInvalidDebounce = errors.New("conditional: debounce must not be negative")

	// ErrNilEmitter is returned when New gets no Emitter.
	ErrNilEmitter = errors.New("conditional: emitter is nil")
)
