package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/conditional"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/virtual"
)

var errFakeNotConnected = errors.New("fake: not connected")

// fakeBus is a broker.BusClient that lets tests push values.
type fakeBus struct {
	mu         sync.Mutex
	connected  bool
	handlers   map[bus.Address]func(any)
	subscribes int
}

func newFakeBus() *fakeBus {
	return &fakeBus{connected: true, handlers: make(map[bus.Address]func(any))}
}

func (f *fakeBus) Subscribe(addr bus.Address, h func(any)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errFakeNotConnected
	}
	f.handlers[addr] = h
	f.subscribes++
	return nil
}

func (f *fakeBus) Unsubscribe(addr bus.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, addr)
	return nil
}

func (f *fakeBus) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBus) push(addr bus.Address, v any) {
	f.mu.Lock()
	h := f.handlers[addr]
	f.mu.Unlock()
	if h != nil {
		h(v)
	}
}

func (f *fakeBus) subscribed(addr bus.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[addr]
	return ok
}

type emitted struct {
	nodeID string
	port   int
	msg    Message
}

// recordingHost keeps emitted messages and statuses.
type recordingHost struct {
	mu       sync.Mutex
	emits    []emitted
	statuses map[string][]Status
}

func newRecordingHost() *recordingHost {
	return &recordingHost{statuses: make(map[string][]Status)}
}

func (h *recordingHost) Emit(nodeID string, port int, msg Message) {
	h.mu.Lock()
	h.emits = append(h.emits, emitted{nodeID, port, msg})
	h.mu.Unlock()
}

func (h *recordingHost) Status(nodeID string, st Status) {
	h.mu.Lock()
	h.statuses[nodeID] = append(h.statuses[nodeID], st)
	h.mu.Unlock()
}

func (h *recordingHost) payloads(port int) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, e := range h.emits {
		if e.port == port {
			out = append(out, e.msg.Payload)
		}
	}
	return out
}

func (h *recordingHost) last(nodeID string) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.statuses[nodeID]
	if len(s) == 0 {
		return Status{}
	}
	return s[len(s)-1]
}

// fakeWriter records bus writes. If block is set, writes wait on it.
type fakeWriter struct {
	mu     sync.Mutex
	writes []bus.Address
	values []any
	err    error
	block  chan struct{}
}

func (w *fakeWriter) Write(_ context.Context, addr bus.Address, value any) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, addr)
	w.values = append(w.values, value)
	return w.err
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

// fakePublisher is a virtual.Publisher that records services.
type fakePublisher struct {
	mu        sync.Mutex
	services  map[string]map[string]any
	sets      map[string]any
	removed   []string
	writeFns  map[string]func(string, any)
	published chan string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		services:  make(map[string]map[string]any),
		sets:      make(map[string]any),
		writeFns:  make(map[string]func(string, any)),
		published: make(chan string, 4),
	}
}

func (p *fakePublisher) PublishService(service string, values map[string]any) error {
	p.mu.Lock()
	p.services[service] = values
	p.mu.Unlock()
	p.published <- service
	return nil
}

func (p *fakePublisher) SetValue(service, path string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets[service+path] = value
	return nil
}

func (p *fakePublisher) RemoveService(service string, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, service)
	return nil
}

func (p *fakePublisher) SubscribeWrites(service string, fn func(string, any)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeFns[service] = fn
	return nil
}

func (p *fakePublisher) UnsubscribeWrites(service string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.writeFns, service)
	return nil
}

func (p *fakePublisher) waitPublished(timeout time.Duration) (string, bool) {
	select {
	case s := <-p.published:
		return s, true
	case <-time.After(timeout):
		return "", false
	}
}

// fakeDevices hands out fixed instances.
type fakeDevices struct {
	instance int
	err      error
}

func (d *fakeDevices) Claim(_ context.Context, nodeID, deviceType string) (virtual.Claim, error) {
	if d.err != nil {
		return virtual.Claim{}, d.err
	}
	localID := virtual.LocalID(nodeID)
	return virtual.Claim{
		NodeID:     nodeID,
		LocalID:    localID,
		DeviceType: deviceType,
		Instance:   d.instance,
		Service:    virtual.ServiceName(deviceType, localID),
	}, nil
}

// manualScheduler fires debounce timers on demand.
type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

type manualTimer struct {
	mu      *sync.Mutex
	stopped *bool
}

func (t manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) conditional.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped := false
	s.fns = append(s.fns, func() {
		s.mu.Lock()
		skip := stopped
		s.mu.Unlock()
		if !skip {
			f()
		}
	})
	return manualTimer{mu: &s.mu, stopped: &stopped}
}

func (s *manualScheduler) fireAll() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type testEnv struct {
	bus     *fakeBus
	broker  *broker.Broker
	host    *recordingHost
	writer  *fakeWriter
	pub     *fakePublisher
	devices *fakeDevices
	sched   *manualScheduler
}

func newTestEnv() *testEnv {
	fb := newFakeBus()
	return &testEnv{
		bus:     fb,
		broker:  broker.New(fb, broker.NewCache()),
		host:    newRecordingHost(),
		writer:  &fakeWriter{},
		pub:     newFakePublisher(),
		devices: &fakeDevices{instance: 100},
		sched:   &manualScheduler{},
	}
}

// serviceUp marks service present on the broker.
func (e *testEnv) serviceUp(service string) {
	e.broker.HandleService(service, true)
}

func (e *testEnv) deps() Deps {
	return Deps{
		Host:      e.host,
		Broker:    e.broker,
		Bus:       e.writer,
		Publisher: e.pub,
		Devices:   e.devices,
		Scheduler: e.sched,
	}
}
