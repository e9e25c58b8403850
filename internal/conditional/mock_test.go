package conditional

import (
	"sync"
	"time"
)

// fakeScheduler records timers and fires them on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fireLive fires every timer that was neither stopped nor fired.
func (s *fakeScheduler) fireLive() int {
	s.mu.Lock()
	var live []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			live = append(live, t)
		}
	}
	s.mu.Unlock()
	for _, t := range live {
		t.f()
	}
	return len(live)
}

// fireAll fires every timer, including stopped ones, as a racing runtime might.
func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	all := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()
	for _, t := range all {
		t.fired = true
		t.f()
	}
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type emission struct {
	port    int
	payload any
}

type statusUpdate struct {
	text  string
	state State
}

// recorder is an Emitter that keeps everything it receives.
type recorder struct {
	mu       sync.Mutex
	emits    []emission
	statuses []statusUpdate
}

func (r *recorder) Emit(port int, payload any) {
	r.mu.Lock()
	r.emits = append(r.emits, emission{port, payload})
	r.mu.Unlock()
}

func (r *recorder) Status(text string, state State) {
	r.mu.Lock()
	r.statuses = append(r.statuses, statusUpdate{text, state})
	r.mu.Unlock()
}

func (r *recorder) onPort(port int) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.emits {
		if e.port == port {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recorder) lastStatus() statusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return statusUpdate{}
	}
	return r.statuses[len(r.statuses)-1]
}
