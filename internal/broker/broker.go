package broker

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/infrastructure/metrics"
)

// BusClient is the bus surface the Broker subscribes through.
// *bus.Client satisfies it.
type BusClient interface {
	Subscribe(addr bus.Address, handler func(value any)) error
	Unsubscribe(addr bus.Address) error
	IsConnected() bool
}

// Logger is the logging surface the Broker needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Message is what a value callback receives.
type Message struct {
	Address  bus.Address `json:"address"`
	Value    any         `json:"value"`
	Revision uint64      `json:"revision"`
}

// Callback receives value notifications for one address.
type Callback func(Message)

// Handle identifies one Subscribe call.
type Handle string

// fanout states.
type activation int

const (
	pending activation = iota
	activating
	active
)

// fanout is the per-address subscriber list.
type fanout struct {
	subs  []*subscriber
	state activation

	// subscribed is true once a bus subscription succeeded and until it is
	// cancelled. It survives disconnects, when state drops back to pending.
	subscribed bool
}

type subscriber struct {
	handle Handle
	cb     Callback

	mu      sync.Mutex
	lastRev uint64
}

// deliver calls cb unless msg is older than something already delivered.
func (s *subscriber) deliver(msg Message) {
	s.mu.Lock()
	if msg.Revision <= s.lastRev {
		s.mu.Unlock()
		return
	}
	s.lastRev = msg.Revision
	s.mu.Unlock()
	s.cb(msg)
}

// Broker deduplicates bus subscriptions and fans values out to callbacks.
type Broker struct {
	bus   BusClient
	cache *Cache

	mu        sync.Mutex
	fanouts   map[bus.Address]*fanout
	handles   map[Handle]bus.Address
	listeners map[ListenerID]*statusListener
	services  map[string]bool
	connected bool

	notifications atomic.Uint64
	panics        atomic.Uint64

	logger  Logger
	metrics *metrics.Metrics
}

// New creates a Broker that subscribes through client and records values in cache.
func New(client BusClient, cache *Cache) *Broker {
	if cache == nil {
		cache = NewCache()
	}
	return &Broker{
		bus:       client,
		cache:     cache,
		fanouts:   make(map[bus.Address]*fanout),
		handles:   make(map[Handle]bus.Address),
		listeners: make(map[ListenerID]*statusListener),
		services:  make(map[string]bool),
		connected: client.IsConnected(),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger used for activation failures and callback panics.
func (b *Broker) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// SetMetrics enables Prometheus reporting.
func (b *Broker) SetMetrics(m *metrics.Metrics) {
	b.mu.Lock()
	b.metrics = m
	b.updateGaugesLocked()
	b.mu.Unlock()
}

// Cache returns the value cache this Broker writes.
func (b *Broker) Cache() *Cache {
	return b.cache
}

// Get returns the last value seen for addr.
func (b *Broker) Get(addr bus.Address) (CachedValue, bool) {
	return b.cache.Get(addr)
}

// Subscribe registers cb for every value notification on addr.
//
// The first subscriber for an address creates the bus subscription, later
// ones join the existing fan-out and immediately receive the cached value
// if there is one. While the bus is disconnected the subscription is
// queued and made on the next connect.
//
// Returns:
//   - Handle: Pass to Unsubscribe
//   - error: ErrInvalidAddress or ErrNilCallback; never a bus error
func (b *Broker) Subscribe(addr bus.Address, cb Callback) (Handle, error) {
	if err := addr.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if cb == nil {
		return "", ErrNilCallback
	}

	sub := &subscriber{handle: Handle(uuid.NewString()), cb: cb}

	b.mu.Lock()
	f, joined := b.fanouts[addr]
	if !joined {
		f = &fanout{}
		b.fanouts[addr] = f
	}
	f.subs = append(f.subs, sub)
	b.handles[sub.handle] = addr
	needActivate := !joined && b.connected
	if needActivate {
		f.state = activating
	}
	b.updateGaugesLocked()
	b.mu.Unlock()

	if needActivate {
		b.activate(addr, f)
	}

	if joined {
		if cv, ok := b.cache.Get(addr); ok {
			b.safeCall(sub, Message{Address: addr, Value: cv.Value, Revision: cv.Revision})
		}
	}

	return sub.handle, nil
}

// Unsubscribe removes the subscription. Unknown or already removed
// handles are ignored. Removing the last subscriber of an address
// cancels the bus subscription.
func (b *Broker) Unsubscribe(h Handle) {
	b.mu.Lock()
	addr, ok := b.handles[h]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.handles, h)

	f := b.fanouts[addr]
	for i, s := range f.subs {
		if s.handle == h {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			break
		}
	}

	cancel := false
	if len(f.subs) == 0 {
		delete(b.fanouts, addr)
		cancel = f.subscribed
	}
	b.updateGaugesLocked()
	logger := b.logger
	b.mu.Unlock()

	if cancel {
		if err := b.bus.Unsubscribe(addr); err != nil {
			logger.Debug("bus unsubscribe failed", "address", addr.String(), "error", err)
		}
	}
}

// activate makes the bus subscription for f. The caller has set f.state
// to activating.
func (b *Broker) activate(addr bus.Address, f *fanout) {
	err := b.bus.Subscribe(addr, func(value any) {
		b.dispatch(addr, value)
	})

	b.mu.Lock()
	current, exists := b.fanouts[addr]
	switch {
	case err != nil:
		if exists && current == f {
			f.state = pending
		}
	case !exists:
		// Everyone left while the subscription was in flight.
	case current == f:
		f.state = active
		f.subscribed = true
	default:
		// A newer fan-out for the same address exists and activates itself.
		current.subscribed = true
	}
	cancel := err == nil && !exists
	b.updateGaugesLocked()
	logger := b.logger
	b.mu.Unlock()

	if err != nil {
		logger.Warn("bus subscribe failed, retrying on next connect", "address", addr.String(), "error", err)
		return
	}
	if cancel {
		if err := b.bus.Unsubscribe(addr); err != nil {
			logger.Debug("bus unsubscribe failed", "address", addr.String(), "error", err)
		}
	}
}

// dispatch records a notification and fans it out in registration order.
func (b *Broker) dispatch(addr bus.Address, value any) {
	cv := b.cache.store(addr, value)
	b.notifications.Add(1)

	b.mu.Lock()
	var subs []*subscriber
	if f, ok := b.fanouts[addr]; ok {
		subs = append(subs, f.subs...)
	}
	m := b.metrics
	b.mu.Unlock()

	if m != nil {
		m.Notifications.Inc()
	}

	msg := Message{Address: addr, Value: value, Revision: cv.Revision}
	for _, s := range subs {
		b.safeCall(s, msg)
	}
}

// safeCall delivers msg, recovering a panicking callback.
func (b *Broker) safeCall(s *subscriber, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.mu.Lock()
			logger, m := b.logger, b.metrics
			b.mu.Unlock()
			if m != nil {
				m.CallbackPanics.Inc()
			}
			logger.Error("subscriber callback panicked",
				"address", msg.Address.String(),
				"handle", string(s.handle),
				"panic", r,
			)
		}
	}()
	s.deliver(msg)
}

// HandleConnect activates every queued subscription and tells status
// listeners the bus is back. Wire it to the bus client's connect event.
func (b *Broker) HandleConnect() {
	b.mu.Lock()
	b.connected = true
	type job struct {
		addr bus.Address
		f    *fanout
	}
	var jobs []job
	for addr, f := range b.fanouts {
		if f.state == pending {
			f.state = activating
			jobs = append(jobs, job{addr, f})
		}
	}
	notify := b.snapshotListenersLocked("")
	b.updateGaugesLocked()
	logger := b.logger
	b.mu.Unlock()

	logger.Info("bus connected", "activating", len(jobs))

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].addr.String() < jobs[j].addr.String() })
	for _, j := range jobs {
		b.activate(j.addr, j.f)
	}
	notify()
}

// HandleDisconnect marks every subscription for re-activation and tells
// status listeners. Cached values are kept.
func (b *Broker) HandleDisconnect() {
	b.mu.Lock()
	b.connected = false
	for _, f := range b.fanouts {
		if f.state == active {
			f.state = pending
		}
	}
	notify := b.snapshotListenersLocked("")
	b.updateGaugesLocked()
	logger := b.logger
	b.mu.Unlock()

	logger.Warn("bus disconnected, subscriptions queued")
	notify()
}

// HandleService records a service appearing or disappearing and notifies
// the status listeners of that service.
func (b *Broker) HandleService(service string, present bool) {
	b.mu.Lock()
	if b.services[service] == present {
		b.mu.Unlock()
		return
	}
	if present {
		b.services[service] = true
	} else {
		delete(b.services, service)
	}
	notify := b.snapshotListenersLocked(service)
	b.updateGaugesLocked()
	b.mu.Unlock()

	notify()
}

// IsConnected reports the last connectivity event the Broker saw.
func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// ActiveServices returns the services currently announced on the bus, sorted.
func (b *Broker) ActiveServices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.services))
	for s := range b.services {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ServicePresent reports whether service is announced on the bus.
func (b *Broker) ServicePresent(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.services[service]
}

// Stats summarises broker state.
type Stats struct {
	Connected          bool   `json:"connected"`
	BusSubscriptions   int    `json:"bus_subscriptions"`
	PendingActivations int    `json:"pending_activations"`
	Subscribers        int    `json:"subscribers"`
	StatusListeners    int    `json:"status_listeners"`
	CachedValues       int    `json:"cached_values"`
	ActiveServices     int    `json:"active_services"`
	Notifications      uint64 `json:"notifications"`
	CallbackPanics     uint64 `json:"callback_panics"`
}

// Stats returns current counts.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	s := b.statsLocked()
	b.mu.Unlock()
	s.CachedValues = b.cache.Len()
	s.Notifications = b.notifications.Load()
	s.CallbackPanics = b.panics.Load()
	return s
}

func (b *Broker) statsLocked() Stats {
	s := Stats{
		Connected:       b.connected,
		Subscribers:     len(b.handles),
		StatusListeners: len(b.listeners),
		ActiveServices:  len(b.services),
	}
	for _, f := range b.fanouts {
		if f.state == active {
			s.BusSubscriptions++
		} else {
			s.PendingActivations++
		}
	}
	return s
}

func (b *Broker) updateGaugesLocked() {
	if b.metrics == nil {
		return
	}
	s := b.statsLocked()
	b.metrics.BusSubscriptions.Set(float64(s.BusSubscriptions))
	b.metrics.PendingActivations.Set(float64(s.PendingActivations))
	b.metrics.Subscribers.Set(float64(s.Subscribers))
	b.metrics.ActiveServices.Set(float64(s.ActiveServices))
	if s.Connected {
		b.metrics.BusConnected.Set(1)
	} else {
		b.metrics.BusConnected.Set(0)
	}
}
