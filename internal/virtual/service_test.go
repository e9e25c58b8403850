package virtual

import (
	"context"
	"errors"
	"testing"
)

const testService = "com.victronenergy.switch.virtual_n1"

func TestService_StartPublishesDefaultsAndStoredValues(t *testing.T) {
	pub := newMockPublisher()
	repo := newMemoryRepository()
	repo.values["virtual_n1"] = map[string]any{"/State": 1.0, "/DeviceInstance": 999.0}

	s := NewService(testService, "virtual_n1", pub, repo)
	if err := s.Start(context.Background(), DefaultValues("switch", 100, "")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := pub.published[testService]
	if got["/State"] != 1.0 {
		t.Errorf("/State = %v, want restored 1", got["/State"])
	}
	if got["/DeviceInstance"] != 100 {
		t.Errorf("/DeviceInstance = %v, want 100 (identity paths are not restored)", got["/DeviceInstance"])
	}
	if got["/ProductName"] != "Virtual switch" {
		t.Errorf("/ProductName = %v, want default", got["/ProductName"])
	}
}

func TestService_SetValuesPublishesOnlyChanges(t *testing.T) {
	pub := newMockPublisher()
	repo := newMemoryRepository()
	s := NewService(testService, "virtual_n1", pub, repo)
	_ = s.Start(context.Background(), map[string]any{"/State": 0})

	changed, err := s.SetValues(map[string]any{"/State": 0.0, "/Position": 3})
	if err != nil {
		t.Fatalf("SetValues() error = %v", err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1 (0 and 0.0 are equal)", changed)
	}
	if len(pub.sets) != 1 || pub.sets[0] != testService+"/Position" {
		t.Errorf("published = %v, want only /Position", pub.sets)
	}
	if repo.values["virtual_n1"]["/Position"] != 3 {
		t.Errorf("stored values = %v, want /Position persisted", repo.values["virtual_n1"])
	}
}

func TestService_SetValuesError(t *testing.T) {
	pub := newMockPublisher()
	s := NewService(testService, "virtual_n1", pub, nil)
	_ = s.Start(context.Background(), nil)
	pub.setErr = errors.New("broker gone")

	if _, err := s.SetValues(map[string]any{"/State": 1}); err == nil {
		t.Error("SetValues() error = nil, want publish error")
	}
	if _, ok := s.Values()["/State"]; ok {
		t.Error("failed value recorded as current")
	}
}

func TestService_SetValuesPartialFailure(t *testing.T) {
	pub := newMockPublisher()
	repo := newMemoryRepository()
	s := NewService(testService, "virtual_n1", pub, repo)
	_ = s.Start(context.Background(), nil)
	pub.failAfter = len(pub.sets) + 1

	changed, err := s.SetValues(map[string]any{"/A": 1.0, "/B": 2.0, "/C": 3.0})
	if err == nil {
		t.Fatal("SetValues() error = nil, want publish error")
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}
	values := s.Values()
	if values["/A"] != 1.0 {
		t.Errorf("published path /A not current: %v", values)
	}
	if _, ok := values["/B"]; ok {
		t.Error("failed path /B recorded as current")
	}
	if repo.values["virtual_n1"]["/A"] != 1.0 {
		t.Errorf("stored values = %v, want /A persisted", repo.values["virtual_n1"])
	}
}

func TestService_SetValuesNotConnected(t *testing.T) {
	pub := newMockPublisher()
	s := NewService(testService, "virtual_n1", pub, nil)
	_ = s.Start(context.Background(), nil)
	before := len(pub.sets)
	pub.disconnected = true

	if _, err := s.SetValues(map[string]any{"/A": 1.0, "/B": 2.0}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SetValues() error = %v, want ErrNotConnected", err)
	}
	if len(pub.sets) != before {
		t.Errorf("sets = %v, want nothing published", pub.sets[before:])
	}
	if len(s.Values()) != 0 {
		t.Errorf("Values() = %v, want none", s.Values())
	}
}

func TestService_BusWriteUpdatesAndNotifies(t *testing.T) {
	pub := newMockPublisher()
	s := NewService(testService, "virtual_n1", pub, nil)
	_ = s.Start(context.Background(), DefaultValues("switch", 100, "Relay"))

	var gotPath string
	var gotValue any
	s.OnWrite(func(path string, value any) { gotPath, gotValue = path, value })

	pub.write(testService, "/State", 1.0)
	pub.write(testService, "/DeviceInstance", 5.0)

	if gotPath != "/State" || gotValue != 1.0 {
		t.Errorf("OnWrite got %q=%v, want /State=1", gotPath, gotValue)
	}
	if s.Values()["/DeviceInstance"] != 100 {
		t.Errorf("/DeviceInstance changed by bus write")
	}
}

func TestService_Stop(t *testing.T) {
	pub := newMockPublisher()
	s := NewService(testService, "virtual_n1", pub, nil)
	_ = s.Start(context.Background(), nil)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	_ = s.Stop()

	if len(pub.removed) != 1 {
		t.Errorf("RemoveService calls = %d, want 1", len(pub.removed))
	}
	if _, ok := pub.writeFns[testService]; ok {
		t.Error("write subscription left after Stop")
	}
}
