package conditional

import (
	"fmt"
	"sync"
)

// State is the condition part of the status text.
type State string

const (
	// StateValue is used outside conditional mode, where status shows only the value.
	StateValue   State = ""
	StateWaiting State = "waiting"
	StatePending State = "pending"
	StateTrue    State = "true"
	StateFalse   State = "false"
)

func resultState(b bool) State {
	if b {
		return StateTrue
	}
	return StateFalse
}

// Output ports.
const (
	PortValue     = 0
	PortCondition = 1
)

// Emitter receives the evaluator's outputs and status changes.
type Emitter interface {
	Emit(port int, payload any)
	Status(text string, state State)
}

type phase int

const (
	phaseIdle phase = iota
	phasePending
	phaseConfirmed
)

func (p phase) String() string {
	switch p {
	case phasePending:
		return "pending"
	case phaseConfirmed:
		return "confirmed"
	default:
		return "idle"
	}
}

// Snapshot is a point-in-time view of an Evaluator.
type Snapshot struct {
	Primary    any    `json:"primary"`
	Condition2 any    `json:"condition2,omitempty"`
	Phase      string `json:"phase"`
	Confirmed  *bool  `json:"confirmed,omitempty"`
}

// Evaluator is the conditional state for one node.
type Evaluator struct {
	cfg   Config
	out   Emitter
	sched Scheduler

	mu         sync.Mutex
	primary    any
	hasPrimary bool
	cond2      any
	hasCond2   bool

	phase     phase
	gen       uint64
	timer     Timer
	candidate bool
	confirmed *bool
	closed    bool
}

// New validates cfg and returns an Evaluator. A nil sched uses SystemScheduler.
func New(cfg Config, out Emitter, sched Scheduler) (*Evaluator, error) {
	if out == nil {
		return nil, ErrNilEmitter
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConditionalMode {
		cfg.Condition1.Operator, _ = ParseOperator(string(cfg.Condition1.Operator))
		if cfg.Condition2Enabled {
			cfg.Condition2.Operator, _ = ParseOperator(string(cfg.Condition2.Operator))
			cfg.LogicOperator, _ = ParseLogic(string(cfg.LogicOperator))
		}
	}
	if sched == nil {
		sched = SystemScheduler{}
	}
	return &Evaluator{cfg: cfg, out: out, sched: sched}, nil
}

// Config returns the normalised configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// UpdatePrimary handles a new primary value. The value is emitted on
// PortValue immediately, nil included, then the condition is re-evaluated.
func (e *Evaluator) UpdatePrimary(v any) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.primary, e.hasPrimary = v, true

	if !e.cfg.ConditionalMode {
		e.mu.Unlock()
		e.out.Emit(PortValue, v)
		e.out.Status(FormatValue(v), StateValue)
		return
	}

	run := e.recomputeLocked()
	e.mu.Unlock()

	e.out.Emit(PortValue, v)
	run()
}

// UpdateCondition2 handles a new value for the second condition. It is
// ignored unless condition 2 is enabled.
func (e *Evaluator) UpdateCondition2(v any) {
	if !e.cfg.ConditionalMode || !e.cfg.Condition2Enabled {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.cond2, e.hasCond2 = v, true
	run := e.recomputeLocked()
	e.mu.Unlock()

	run()
}

// recomputeLocked evaluates the condition and moves the state machine.
// The returned func performs the resulting outputs and must run without
// e.mu held.
func (e *Evaluator) recomputeLocked() func() {
	text := e.primaryTextLocked()
	if !e.hasPrimary || (e.cfg.Condition2Enabled && !e.hasCond2) {
		return func() { e.out.Status(text+" | "+string(StateWaiting), StateWaiting) }
	}

	result := e.evaluateLocked()

	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	if e.cfg.DebounceMS == 0 {
		e.confirmLocked(result)
		return e.confirmOutputs(text, result)
	}

	e.phase = phasePending
	e.candidate = result
	gen := e.gen
	e.timer = e.sched.AfterFunc(e.cfg.Debounce(), func() { e.fire(gen) })
	return func() { e.out.Status(text+" | "+string(StatePending), StatePending) }
}

// fire confirms the pending result unless a later update superseded it.
func (e *Evaluator) fire(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.gen || e.phase != phasePending {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	result := e.candidate
	e.confirmLocked(result)
	text := e.primaryTextLocked()
	e.mu.Unlock()

	e.confirmOutputs(text, result)()
}

func (e *Evaluator) confirmLocked(result bool) {
	e.phase = phaseConfirmed
	r := result
	e.confirmed = &r
}

func (e *Evaluator) confirmOutputs(text string, result bool) func() {
	payload := e.cfg.payloadFor(result)
	state := resultState(result)
	return func() {
		e.out.Emit(PortCondition, payload)
		e.out.Status(text+" | "+string(state), state)
	}
}

func (e *Evaluator) evaluateLocked() bool {
	r1 := e.cfg.Condition1.Evaluate(e.primary)
	if !e.cfg.Condition2Enabled {
		return r1
	}
	r2 := e.cfg.Condition2.Evaluate(e.cond2)
	if e.cfg.LogicOperator == LogicOr {
		return r1 || r2
	}
	return r1 && r2
}

func (e *Evaluator) primaryTextLocked() string {
	if !e.hasPrimary {
		return NotReceived
	}
	return FormatValue(e.primary)
}

// Snapshot returns the current state.
func (e *Evaluator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{Phase: e.phase.String()}
	if e.hasPrimary {
		s.Primary = e.primary
	}
	if e.hasCond2 {
		s.Condition2 = e.cond2
	}
	if e.confirmed != nil {
		c := *e.confirmed
		s.Confirmed = &c
	}
	return s
}

// Close cancels any pending debounce. Later updates and timer firings are
// ignored. Close is idempotent.
func (e *Evaluator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.phase = phaseIdle
}

// String implements fmt.Stringer for logging.
func (e *Evaluator) String() string {
	if !e.cfg.ConditionalMode {
		return "pass-through"
	}
	return fmt.Sprintf("%s (debounce %dms)", e.cfg.Describe(), e.cfg.DebounceMS)
}
