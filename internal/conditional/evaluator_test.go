package conditional

import (
	"errors"
	"testing"
	"time"
)

func threshold(op Operator, v any) Condition {
	return Condition{Operator: op, Threshold: v}
}

func newTestEvaluator(t *testing.T, cfg Config) (*Evaluator, *recorder, *fakeScheduler) {
	t.Helper()
	rec := &recorder{}
	sched := &fakeScheduler{}
	e, err := New(cfg, rec, sched)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(e.Close)
	return e, rec, sched
}

// ===== Pass-through =====

func TestUpdatePrimary_PassThroughMode(t *testing.T) {
	e, rec, sched := newTestEvaluator(t, Config{})

	e.UpdatePrimary(48.2)
	e.UpdatePrimary(nil)

	got := rec.onPort(PortValue)
	if len(got) != 2 || got[0] != 48.2 || got[1] != nil {
		t.Errorf("port 0 = %v, want [48.2 <nil>]", got)
	}
	if c := rec.onPort(PortCondition); len(c) != 0 {
		t.Errorf("port 1 = %v, want nothing", c)
	}
	if st := rec.lastStatus(); st.text != "null" || st.state != StateValue {
		t.Errorf("status = %+v, want null", st)
	}
	if sched.count() != 0 {
		t.Errorf("timers scheduled = %d, want 0", sched.count())
	}
}

// ===== Single condition =====

func TestUpdatePrimary_GreaterThanConfirmsAfterDebounce(t *testing.T) {
	e, rec, sched := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
		DebounceMS:      500,
	})

	e.UpdatePrimary(13.0)

	if v := rec.onPort(PortValue); len(v) != 1 || v[0] != 13.0 {
		t.Fatalf("port 0 = %v, want [13]", v)
	}
	if c := rec.onPort(PortCondition); len(c) != 0 {
		t.Fatalf("port 1 before timer = %v, want nothing", c)
	}
	if st := rec.lastStatus(); st.text != "13 | pending" {
		t.Errorf("status = %q, want %q", st.text, "13 | pending")
	}
	if sched.timers[0].d != 500*time.Millisecond {
		t.Errorf("timer duration = %v, want 500ms", sched.timers[0].d)
	}

	sched.fireLive()

	if c := rec.onPort(PortCondition); len(c) != 1 || c[0] != true {
		t.Fatalf("port 1 = %v, want [true]", c)
	}
	if st := rec.lastStatus(); st.text != "13 | true" || st.state != StateTrue {
		t.Errorf("status = %+v, want 13 | true", st)
	}
}

func TestUpdatePrimary_ZeroDebounceConfirmsSynchronously(t *testing.T) {
	e, rec, sched := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
	})

	e.UpdatePrimary(12.0)

	if c := rec.onPort(PortCondition); len(c) != 1 || c[0] != false {
		t.Fatalf("port 1 = %v, want [false]", c)
	}
	if st := rec.lastStatus(); st.text != "12 | false" {
		t.Errorf("status = %q, want %q", st.text, "12 | false")
	}
	if sched.count() != 0 {
		t.Errorf("timers scheduled = %d, want 0", sched.count())
	}
}

func TestUpdatePrimary_NilStillPassesThrough(t *testing.T) {
	e, rec, _ := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
	})

	e.UpdatePrimary(nil)

	if v := rec.onPort(PortValue); len(v) != 1 || v[0] != nil {
		t.Fatalf("port 0 = %v, want [<nil>]", v)
	}
	if c := rec.onPort(PortCondition); len(c) != 1 || c[0] != false {
		t.Errorf("port 1 = %v, want [false]", c)
	}
	if st := rec.lastStatus(); st.text != "null | false" {
		t.Errorf("status = %q, want %q", st.text, "null | false")
	}
}

func TestUpdatePrimary_EmitsOnEveryConfirmation(t *testing.T) {
	e, rec, _ := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreaterEqual, 50),
	})

	e.UpdatePrimary(60.0)
	e.UpdatePrimary(70.0)
	e.UpdatePrimary(10.0)

	got := rec.onPort(PortCondition)
	want := []any{true, true, false}
	if len(got) != len(want) {
		t.Fatalf("port 1 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("port 1[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// ===== Two conditions =====

func TestUpdateCondition2_AndLogic(t *testing.T) {
	e, rec, _ := newTestEvaluator(t, Config{
		ConditionalMode:   true,
		Condition1:        threshold(OpGreater, 12.0),
		Condition2Enabled: true,
		Condition2:        threshold(OpLess, 5.0),
		LogicOperator:     "and",
	})

	e.UpdatePrimary(12.8)
	if st := rec.lastStatus(); st.text != "12.8 | waiting" || st.state != StateWaiting {
		t.Fatalf("status before condition 2 = %+v, want 12.8 | waiting", st)
	}
	if c := rec.onPort(PortCondition); len(c) != 0 {
		t.Fatalf("port 1 while waiting = %v, want nothing", c)
	}

	e.UpdateCondition2(3.0)
	e.UpdateCondition2(6.0)

	got := rec.onPort(PortCondition)
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("port 1 = %v, want [true false]", got)
	}
	// Condition 2 updates do not re-emit the primary value.
	if v := rec.onPort(PortValue); len(v) != 1 {
		t.Errorf("port 0 = %v, want one value", v)
	}
}

func TestUpdateCondition2_OrLogic(t *testing.T) {
	e, rec, _ := newTestEvaluator(t, Config{
		ConditionalMode:   true,
		Condition1:        threshold(OpGreater, 100),
		Condition2Enabled: true,
		Condition2:        threshold(OpEqual, 1),
		LogicOperator:     LogicOr,
	})

	e.UpdateCondition2(1.0)
	if st := rec.lastStatus(); st.text != NotReceived+" | waiting" {
		t.Fatalf("status = %q, want %q", st.text, NotReceived+" | waiting")
	}

	e.UpdatePrimary(5.0)
	if c := rec.onPort(PortCondition); len(c) != 1 || c[0] != true {
		t.Errorf("port 1 = %v, want [true]", c)
	}
}

func TestUpdateCondition2_IgnoredWhenDisabled(t *testing.T) {
	e, rec, _ := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 1),
	})

	e.UpdateCondition2(10.0)

	if len(rec.statuses) != 0 || len(rec.emits) != 0 {
		t.Errorf("disabled condition 2 produced output: %+v %+v", rec.emits, rec.statuses)
	}
}

// ===== Debounce =====

func TestDebounce_RapidUpdatesEmitOnceWithLastResult(t *testing.T) {
	e, rec, sched := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
		DebounceMS:      1000,
	})

	e.UpdatePrimary(13.0)
	e.UpdatePrimary(14.0)
	e.UpdatePrimary(11.0)

	if sched.count() != 3 {
		t.Fatalf("timers scheduled = %d, want 3", sched.count())
	}
	for i, tm := range sched.timers[:2] {
		if !tm.stopped {
			t.Errorf("timer %d not stopped by later update", i)
		}
	}

	if n := sched.fireLive(); n != 1 {
		t.Fatalf("live timers = %d, want 1", n)
	}

	got := rec.onPort(PortCondition)
	if len(got) != 1 || got[0] != false {
		t.Fatalf("port 1 = %v, want [false]", got)
	}
	if v := rec.onPort(PortValue); len(v) != 3 {
		t.Errorf("port 0 = %v, want 3 values", v)
	}
}

func TestDebounce_StaleTimerIsDiscarded(t *testing.T) {
	e, rec, sched := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
		DebounceMS:      1000,
	})

	e.UpdatePrimary(13.0)
	e.UpdatePrimary(11.0)

	// Both callbacks run, as when Stop loses the race with the timer goroutine.
	sched.fireAll()

	got := rec.onPort(PortCondition)
	if len(got) != 1 || got[0] != false {
		t.Errorf("port 1 = %v, want [false]", got)
	}
}

// ===== Output payloads =====

func TestOutputPayloads(t *testing.T) {
	tests := []struct {
		name       string
		outputTrue string
		want       any
	}{
		{name: "empty means boolean", outputTrue: "", want: true},
		{name: "json number", outputTrue: "1", want: 1.0},
		{name: "json string", outputTrue: `"on"`, want: "on"},
		{name: "raw string", outputTrue: "on", want: "on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec, _ := newTestEvaluator(t, Config{
				ConditionalMode: true,
				Condition1:      threshold(OpGreater, 0),
				OutputTrue:      tt.outputTrue,
			})
			e.UpdatePrimary(1.0)
			got := rec.onPort(PortCondition)
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("port 1 = %v, want [%v]", got, tt.want)
			}
		})
	}
}

func TestOutputPayloads_JSONObject(t *testing.T) {
	e, rec, _ := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpLess, 20),
		OutputTrue:      `{"relay":1}`,
	})

	e.UpdatePrimary(10.0)

	got := rec.onPort(PortCondition)
	m, ok := got[0].(map[string]any)
	if !ok || m["relay"] != 1.0 {
		t.Errorf("port 1 = %#v, want map with relay=1", got[0])
	}
}

// ===== Lifecycle =====

func TestClose_CancelsPendingAndIgnoresUpdates(t *testing.T) {
	e, rec, sched := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
		DebounceMS:      1000,
	})

	e.UpdatePrimary(13.0)
	e.Close()
	e.Close()

	if !sched.timers[0].stopped {
		t.Error("pending timer not stopped on Close")
	}
	sched.fireAll()
	e.UpdatePrimary(20.0)

	if c := rec.onPort(PortCondition); len(c) != 0 {
		t.Errorf("port 1 after Close = %v, want nothing", c)
	}
	if v := rec.onPort(PortValue); len(v) != 1 {
		t.Errorf("port 0 after Close = %v, want only the first value", v)
	}
}

func TestSnapshot(t *testing.T) {
	e, _, sched := newTestEvaluator(t, Config{
		ConditionalMode: true,
		Condition1:      threshold(OpGreater, 12.5),
		DebounceMS:      10,
	})

	e.UpdatePrimary(13.0)
	if s := e.Snapshot(); s.Phase != "pending" || s.Confirmed != nil {
		t.Errorf("Snapshot() = %+v, want pending without confirmation", s)
	}
	sched.fireLive()
	s := e.Snapshot()
	if s.Phase != "confirmed" || s.Confirmed == nil || !*s.Confirmed || s.Primary != 13.0 {
		t.Errorf("Snapshot() = %+v, want confirmed true for 13", s)
	}
}

// ===== Construction =====

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "bad operator", cfg: Config{ConditionalMode: true, Condition1: threshold("=>", 1)}, want: ErrInvalidOperator},
		{
			name: "bad condition 2 operator",
			cfg: Config{
				ConditionalMode: true, Condition1: threshold(OpLess, 1),
				Condition2Enabled: true, Condition2: threshold("", 1),
			},
			want: ErrInvalidOperator,
		},
		{
			name: "bad logic",
			cfg: Config{
				ConditionalMode: true, Condition1: threshold(OpLess, 1),
				Condition2Enabled: true, Condition2: threshold(OpLess, 1), LogicOperator: "XOR",
			},
			want: ErrInvalidLogic,
		},
		{name: "negative debounce", cfg: Config{ConditionalMode: true, Condition1: threshold(OpLess, 1), DebounceMS: -1}, want: ErrInvalidDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, &recorder{}, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := New(Config{}, nil, nil); !errors.Is(err, ErrNilEmitter) {
		t.Errorf("New(nil emitter) error = %v, want ErrNilEmitter", err)
	}
}

func TestConfig_OutputsAndLabels(t *testing.T) {
	plain := Config{}
	if plain.Outputs() != 1 || len(plain.OutputLabels()) != 1 {
		t.Errorf("pass-through Outputs() = %d labels %v, want 1", plain.Outputs(), plain.OutputLabels())
	}

	cond := Config{
		ConditionalMode:   true,
		Condition1:        threshold(OpGreater, 12.5),
		Condition2Enabled: true,
		Condition2:        threshold(OpLess, 5),
		LogicOperator:     "or",
	}
	labels := cond.OutputLabels()
	if cond.Outputs() != 2 || len(labels) != 2 {
		t.Fatalf("conditional Outputs() = %d labels %v, want 2", cond.Outputs(), labels)
	}
	if labels[1] != "> 12.5 OR < 5" {
		t.Errorf("label = %q, want %q", labels[1], "> 12.5 OR < 5")
	}
}
