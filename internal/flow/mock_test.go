package flow

import (
	"context"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

type fakeBus struct {
	mu       sync.Mutex
	handlers map[bus.Address]func(any)
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[bus.Address]func(any))}
}

func (f *fakeBus) Subscribe(addr bus.Address, h func(any)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[addr] = h
	return nil
}

func (f *fakeBus) Unsubscribe(addr bus.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, addr)
	return nil
}

func (f *fakeBus) IsConnected() bool { return true }

func (f *fakeBus) push(addr bus.Address, v any) {
	f.mu.Lock()
	h := f.handlers[addr]
	f.mu.Unlock()
	if h != nil {
		h(v)
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	values []any
}

func (w *fakeWriter) Write(_ context.Context, _ bus.Address, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values = append(w.values, value)
	return nil
}

func (w *fakeWriter) written() []any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]any(nil), w.values...)
}

type fakeHub struct {
	mu     sync.Mutex
	events map[string][]any
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = make(map[string][]any)
	}
	h.events[channel] = append(h.events[channel], payload)
}

func (h *fakeHub) count(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events[channel])
}

type fakeServices struct {
	connected bool
	active    []string
}

func (s *fakeServices) IsConnected() bool        { return s.connected }
func (s *fakeServices) ActiveServices() []string { return append([]string(nil), s.active...) }

type fakeReconciler struct {
	calls  int
	active []string
}

func (r *fakeReconciler) RemoveOrphans(_ context.Context, active []string) (virtual.Plan, error) {
	r.calls++
	r.active = active
	return virtual.Plan{}, nil
}

type fakeDevices struct{}

func (fakeDevices) Claim(_ context.Context, nodeID, deviceType string) (virtual.Claim, error) {
	localID := virtual.LocalID(nodeID)
	return virtual.Claim{
		NodeID:     nodeID,
		LocalID:    localID,
		DeviceType: deviceType,
		Instance:   100,
		Service:    virtual.ServiceName(deviceType, localID),
	}, nil
}

type fakePublisher struct{}

func (fakePublisher) PublishService(string, map[string]any) error     { return nil }
func (fakePublisher) SetValue(string, string, any) error              { return nil }
func (fakePublisher) RemoveService(string, []string) error            { return nil }
func (fakePublisher) SubscribeWrites(string, func(string, any)) error { return nil }
func (fakePublisher) UnsubscribeWrites(string) error                  { return nil }

type testEnv struct {
	bus        *fakeBus
	broker     *broker.Broker
	writer     *fakeWriter
	hub        *fakeHub
	services   *fakeServices
	reconciler *fakeReconciler
}

func newTestEnv() *testEnv {
	fb := newFakeBus()
	return &testEnv{
		bus:        fb,
		broker:     broker.New(fb, nil),
		writer:     &fakeWriter{},
		hub:        &fakeHub{},
		services:   &fakeServices{connected: true},
		reconciler: &fakeReconciler{},
	}
}

func (e *testEnv) runtime(opts Options) *Runtime {
	deps := node.Deps{
		Broker:    e.broker,
		Bus:       e.writer,
		Publisher: fakePublisher{},
		Devices:   fakeDevices{},
	}
	r := New(deps, e.services, e.reconciler, opts)
	r.SetHub(e.hub)
	return r
}
