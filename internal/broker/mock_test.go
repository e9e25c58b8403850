package broker

import (
	"errors"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

var errMockNotConnected = errors.New("mock: not connected")

// mockBus is a BusClient that records subscriptions and lets tests push values.
type mockBus struct {
	mu          sync.Mutex
	connected   bool
	handlers    map[bus.Address]func(any)
	subscribes  map[bus.Address]int
	unsubscribe map[bus.Address]int
}

func newMockBus(connected bool) *mockBus {
	return &mockBus{
		connected:   connected,
		handlers:    make(map[bus.Address]func(any)),
		subscribes:  make(map[bus.Address]int),
		unsubscribe: make(map[bus.Address]int),
	}
}

func (m *mockBus) Subscribe(addr bus.Address, handler func(any)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errMockNotConnected
	}
	m.subscribes[addr]++
	m.handlers[addr] = handler
	return nil
}

func (m *mockBus) Unsubscribe(addr bus.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribe[addr]++
	delete(m.handlers, addr)
	return nil
}

func (m *mockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockBus) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// push delivers value as if it came from the bus. It reports false when
// nothing is subscribed to addr.
func (m *mockBus) push(addr bus.Address, value any) bool {
	m.mu.Lock()
	h := m.handlers[addr]
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(value)
	return true
}

func (m *mockBus) subscribeCount(addr bus.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribes[addr]
}

func (m *mockBus) unsubscribeCount(addr bus.Address) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribe[addr]
}

// recordingLogger keeps error messages for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
