package virtual

import (
	"fmt"
	"sync"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// Update maps property paths to new values. A single-property update is
// a map with one key. An Update is always applied as a whole.
type Update map[string]any

// Normalize returns a copy with every path starting with a slash.
func (u Update) Normalize() (Update, error) {
	out := make(Update, len(u))
	for p, v := range u {
		np := bus.NormalizePath(p)
		if len(np) < 2 || bus.NewAddress(bus.Namespace, np).Validate() != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		out[np] = v
	}
	return out, nil
}

// Setter applies updates to a device's bus service and reports how many
// properties actually changed.
type Setter interface {
	SetValues(values map[string]any) (changed int, err error)
}

// DoneFunc is called once an update has been applied or has failed.
type DoneFunc func(changed int, err error)

type pendingCall struct {
	update Update
	done   DoneFunc
}

// deviceState is either *notReady or *ready.
type deviceState interface{ isDeviceState() }

type notReady struct {
	queue []pendingCall
}

type ready struct {
	setter Setter
}

func (*notReady) isDeviceState() {}
func (*ready) isDeviceState()    {}

// Device is the readiness queue in front of one virtual device.
//
// Until MarkReady is called, updates are queued and their done callbacks
// are not invoked. MarkReady drains the queue once, in order. After that
// updates are applied synchronously on the caller's goroutine.
type Device struct {
	mu       sync.Mutex
	state    deviceState
	draining bool
	backlog  []pendingCall
	closed   bool

	// applyMu serialises calls into the setter.
	applyMu sync.Mutex
}

// NewDevice returns a device that is not ready yet.
func NewDevice() *Device {
	return &Device{state: &notReady{}}
}

// Ready reports whether MarkReady has been called.
func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.state.(*ready)
	return ok
}

// Pending returns the number of queued updates.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nr, ok := d.state.(*notReady); ok {
		return len(nr.queue)
	}
	return len(d.backlog)
}

// EnqueueOrApply applies u immediately if the device is ready, otherwise
// queues it. done may be nil. It reports whether u was queued.
func (d *Device) EnqueueOrApply(u Update, done DoneFunc) (queued bool) {
	call := pendingCall{update: u, done: done}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		call.finish(0, ErrDeviceClosed)
		return false
	}
	switch s := d.state.(type) {
	case *notReady:
		s.queue = append(s.queue, call)
		d.mu.Unlock()
		return true
	case *ready:
		if d.draining {
			d.backlog = append(d.backlog, call)
			d.mu.Unlock()
			return true
		}
		setter := s.setter
		d.mu.Unlock()
		d.apply(setter, call)
		return false
	}
	d.mu.Unlock()
	return false
}

// MarkReady installs the setter and drains queued updates in order.
// Updates arriving during the drain are applied after it, in order.
func (d *Device) MarkReady(setter Setter) error {
	d.mu.Lock()
	nr, ok := d.state.(*notReady)
	if !ok {
		d.mu.Unlock()
		return ErrAlreadyReady
	}
	if d.closed {
		d.mu.Unlock()
		return ErrDeviceClosed
	}
	d.state = &ready{setter: setter}
	batch := nr.queue
	nr.queue = nil
	d.draining = true
	d.mu.Unlock()

	for {
		for i, call := range batch {
			if d.isClosed() {
				failAll(batch[i:])
				break
			}
			d.apply(setter, call)
		}

		d.mu.Lock()
		if d.closed || len(d.backlog) == 0 {
			d.draining = false
			d.mu.Unlock()
			return nil
		}
		batch = d.backlog
		d.backlog = nil
		d.mu.Unlock()
	}
}

// Close discards queued updates, including those waiting behind a drain,
// calling their done with ErrDeviceClosed. An update already inside the
// setter completes. Later updates fail the same way.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	var dropped []pendingCall
	if nr, ok := d.state.(*notReady); ok {
		dropped = nr.queue
		nr.queue = nil
	}
	dropped = append(dropped, d.backlog...)
	d.backlog = nil
	d.mu.Unlock()

	failAll(dropped)
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func failAll(calls []pendingCall) {
	for _, call := range calls {
		call.finish(0, ErrDeviceClosed)
	}
}

func (d *Device) apply(setter Setter, call pendingCall) {
	u, err := call.update.Normalize()
	if err != nil {
		call.finish(0, err)
		return
	}
	d.applyMu.Lock()
	changed, err := setter.SetValues(u)
	d.applyMu.Unlock()
	call.finish(changed, err)
}

func (c pendingCall) finish(changed int, err error) {
	if c.done != nil {
		c.done(changed, err)
	}
}
