package broker

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// ListenerID identifies one status listener.
type ListenerID string

// Status describes what a node should show for the address it watches.
type Status struct {
	Connected      bool `json:"connected"`
	ServicePresent bool `json:"service_present"`
}

// StatusFunc receives status changes.
type StatusFunc func(Status)

type statusListener struct {
	nodeID string
	addr   bus.Address
	fn     StatusFunc
}

// AddStatusListener registers fn for connectivity and presence changes
// affecting addr. fn is called once immediately with the current status.
// Status listeners are independent of value subscriptions.
func (b *Broker) AddStatusListener(nodeID string, addr bus.Address, fn StatusFunc) (ListenerID, error) {
	if err := addr.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if fn == nil {
		return "", ErrNilCallback
	}

	id := ListenerID(uuid.NewString())
	l := &statusListener{nodeID: nodeID, addr: addr, fn: fn}

	b.mu.Lock()
	b.listeners[id] = l
	st := b.statusLocked(addr)
	b.mu.Unlock()

	b.callStatus(l, st)
	return id, nil
}

// RemoveStatusListener removes a listener. Unknown ids are ignored.
func (b *Broker) RemoveStatusListener(id ListenerID) {
	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
}

// StatusOf returns the current status for addr.
func (b *Broker) StatusOf(addr bus.Address) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked(addr)
}

func (b *Broker) statusLocked(addr bus.Address) Status {
	return Status{Connected: b.connected, ServicePresent: b.services[addr.Service]}
}

// snapshotListenersLocked captures the listeners to notify and their
// status. An empty service selects every listener. The returned func
// calls them and must run without b.mu held.
func (b *Broker) snapshotListenersLocked(service string) func() {
	type call struct {
		l  *statusListener
		st Status
	}
	var calls []call
	for _, l := range b.listeners {
		if service != "" && l.addr.Service != service {
			continue
		}
		calls = append(calls, call{l, b.statusLocked(l.addr)})
	}
	return func() {
		for _, c := range calls {
			b.callStatus(c.l, c.st)
		}
	}
}

func (b *Broker) callStatus(l *statusListener, st Status) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.mu.Lock()
			logger, m := b.logger, b.metrics
			b.mu.Unlock()
			if m != nil {
				m.CallbackPanics.Inc()
			}
			logger.Error("status listener panicked", "node_id", l.nodeID, "panic", r)
		}
	}()
	l.fn(st)
}
