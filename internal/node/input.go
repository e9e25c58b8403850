package node

import (
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/conditional"
)

// evalEmitter adapts evaluator output to the node's host.
type evalEmitter struct {
	n *Node
}

func (e evalEmitter) Emit(port int, payload any) {
	e.n.emit(port, NewMessage(e.n.addr.String(), payload))
}

func (e evalEmitter) Status(text string, state conditional.State) {
	n := e.n
	switch state {
	case conditional.StateTrue, conditional.StateFalse:
		result := state == conditional.StateTrue
		if n.deps.Metrics != nil {
			n.deps.Metrics.ConditionalEmits.WithLabelValues(string(state)).Inc()
		}
		if n.deps.Results != nil {
			n.deps.Results.WriteConditionalResult(n.cfg.ID, result, time.Now())
		}
	}

	st := Status{Fill: FillGreen, Shape: ShapeDot, Text: text}
	switch state {
	case conditional.StatePending:
		st.Fill = FillYellow
	case conditional.StateWaiting:
		st.Fill, st.Shape = FillGrey, ShapeRing
	case conditional.StateFalse:
		st.Fill = FillBlue
	}

	n.mu.Lock()
	n.valueStatus = st
	bs := n.busStatus
	n.mu.Unlock()
	if _, degraded := connectivityStatus(bs); degraded {
		return
	}
	n.setStatus(st)
}

func (n *Node) startInput() error {
	cc := n.cfg.Conditional
	cc.DebounceMS = n.deps.DefaultDebounceMS
	if n.cfg.DebounceMS != nil {
		cc.DebounceMS = *n.cfg.DebounceMS
	}

	eval, err := conditional.New(cc, evalEmitter{n: n}, n.deps.Scheduler)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.eval = eval
	n.mu.Unlock()

	if err := n.addStatusListener(n.addr, n.onBusStatus); err != nil {
		return err
	}
	if err := n.subscribe(n.addr, func(m broker.Message) { eval.UpdatePrimary(m.Value) }); err != nil {
		return err
	}
	if cc.ConditionalMode && cc.Condition2Enabled {
		if err := n.addStatusListener(n.cfg.Condition2, func(broker.Status) {}); err != nil {
			return err
		}
		if err := n.subscribe(n.cfg.Condition2, func(m broker.Message) { eval.UpdateCondition2(m.Value) }); err != nil {
			return err
		}
	}
	return nil
}

// onBusStatus shows connectivity problems, and the last value state once
// they clear.
func (n *Node) onBusStatus(st broker.Status) {
	n.mu.Lock()
	n.busStatus = st
	last := n.valueStatus
	n.mu.Unlock()

	if degraded, ok := connectivityStatus(st); ok {
		n.setStatus(degraded)
		return
	}

	switch n.kind.Role {
	case RoleOutput:
		if n.cfg.Disabled {
			n.setStatus(Status{Fill: FillGrey, Shape: ShapeRing, Text: "disabled"})
			return
		}
		n.setStatus(Status{Fill: FillGreen, Shape: ShapeRing, Text: "ready"})
	default:
		if last.Text != "" {
			n.setStatus(last)
			return
		}
		n.setStatus(Status{Fill: FillGreen, Shape: ShapeRing, Text: "connected"})
	}
}
