// Package conditional implements the per-node conditional evaluator.
//
// An Evaluator combines a primary value stream with an optional second
// condition stream. Every primary value is passed through on output 0
// immediately. In conditional mode the comparison result is debounced
// (trailing edge, reset on activity) and the confirmed result is emitted
// on output 1 as the configured true or false payload.
//
// The debounce is a small state machine:
//
//	Idle ──update──▶ Pending ──timer──▶ Confirmed
//	                  ▲   │
//	                  └───┘ update restarts the timer
//
// Timers come from a Scheduler so tests can fire them by hand.
package conditional
