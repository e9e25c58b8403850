// Package history records selected bus values to InfluxDB.
//
// A Recorder is an ordinary Broker subscriber, so recording a value that
// flow nodes also watch costs no extra bus subscription.
package history

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/bus"
)

// Writer stores numeric values. *influxdb.Client satisfies it.
type Writer interface {
	WriteBusValue(service, path string, value float64, ts time.Time)
}

// Subscriber is the Broker surface the Recorder needs.
type Subscriber interface {
	Subscribe(addr bus.Address, cb broker.Callback) (broker.Handle, error)
	Unsubscribe(h broker.Handle)
}

// Stats counts recorded and skipped notifications.
type Stats struct {
	Addresses int    `json:"addresses"`
	Recorded  uint64 `json:"recorded"`
	Skipped   uint64 `json:"skipped"`
}

// Recorder writes numeric notifications for a fixed set of addresses.
type Recorder struct {
	sub Subscriber
	w   Writer
	now func() time.Time

	mu      sync.Mutex
	handles []broker.Handle

	recorded atomic.Uint64
	skipped  atomic.Uint64
}

// NewRecorder creates a stopped Recorder.
func NewRecorder(sub Subscriber, w Writer) *Recorder {
	return &Recorder{sub: sub, w: w, now: time.Now}
}

// Start subscribes to every address. On error nothing stays subscribed.
func (r *Recorder) Start(addrs []bus.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) > 0 {
		return errors.New("history: recorder already started")
	}

	handles := make([]broker.Handle, 0, len(addrs))
	for _, addr := range addrs {
		h, err := r.sub.Subscribe(addr, r.record)
		if err != nil {
			for _, h := range handles {
				r.sub.Unsubscribe(h)
			}
			return fmt.Errorf("history: subscribing %s: %w", addr, err)
		}
		handles = append(handles, h)
	}
	r.handles = handles
	return nil
}

// Stop releases all subscriptions.
func (r *Recorder) Stop() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	for _, h := range handles {
		r.sub.Unsubscribe(h)
	}
}

// Stats returns counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	n := len(r.handles)
	r.mu.Unlock()
	return Stats{Addresses: n, Recorded: r.recorded.Load(), Skipped: r.skipped.Load()}
}

func (r *Recorder) record(m broker.Message) {
	v, ok := numeric(m.Value)
	if !ok {
		r.skipped.Add(1)
		return
	}
	r.w.WriteBusValue(m.Address.Service, m.Address.Path, v, r.now())
	r.recorded.Add(1)
}

// numeric converts numbers, booleans and numeric strings.
func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
