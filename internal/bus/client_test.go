package bus

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

const batteryService = "com.victronenergy.battery.ttyUSB0"

func TestClient_SubscribeDecodesValues(t *testing.T) {
	tr := newMockTransport(true)
	c := NewClient(tr, 0, nil)

	var got []any
	addr := NewAddress(batteryService, "/Soc")
	if err := c.Subscribe(addr, func(v any) { got = append(got, v) }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := "venus/N/" + batteryService + "/Soc"
	if err := tr.deliver(topic, topic, []byte(`{"value":87.5}`)); err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if err := tr.deliver(topic, topic, nil); err != nil {
		t.Fatalf("deliver empty error = %v", err)
	}
	if err := tr.deliver(topic, topic, []byte(`not-json`)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("deliver invalid error = %v, want ErrInvalidPayload", err)
	}

	want := []any{87.5, nil}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}

	if err := c.Unsubscribe(addr); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if tr.hasHandler(topic) {
		t.Error("handler should be removed after Unsubscribe")
	}
}

func TestClient_SubscribeInvalidAddress(t *testing.T) {
	c := NewClient(newMockTransport(true), 0, nil)
	err := c.Subscribe(Address{Service: "", Path: "/Soc"}, func(any) {})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidAddress", err)
	}
}

func TestClient_WatchServicesBeforeConnect(t *testing.T) {
	tr := newMockTransport(false)
	c := NewClient(tr, 0, nil)

	presence := map[string]bool{}
	if err := c.WatchServices(func(s string, present bool) { presence[s] = present }); err != nil {
		t.Fatalf("WatchServices() error = %v", err)
	}

	connected := false
	c.OnConnect(func() { connected = true })
	tr.connect()

	if !connected {
		t.Error("OnConnect callback not invoked")
	}
	if !tr.hasHandler("venus/S/+") {
		t.Fatal("presence subscription should be made on connect")
	}

	tr.deliver("venus/S/+", "venus/S/"+batteryService, []byte(`{"connected":true}`)) //nolint:errcheck // Handler never fails
	tr.deliver("venus/S/+", "venus/S/com.victronenergy.tank.virtual_a", nil)         //nolint:errcheck // Handler never fails

	if !presence[batteryService] {
		t.Error("battery should be present")
	}
	if present, seen := presence["com.victronenergy.tank.virtual_a"]; !seen || present {
		t.Error("tank should be reported gone")
	}
}

func TestClient_OnDisconnect(t *testing.T) {
	tr := newMockTransport(true)
	c := NewClient(tr, 0, nil)

	called := 0
	c.OnDisconnect(func() { called++ })
	tr.onDisconnect(errors.New("network"))

	if called != 1 {
		t.Errorf("OnDisconnect callbacks = %d, want 1", called)
	}
}

func TestClient_Write(t *testing.T) {
	tr := newMockTransport(true)
	c := NewClient(tr, 0, nil)

	addr := NewAddress("com.victronenergy.vebus.ttyS4", "/Mode")
	if err := c.Write(context.Background(), addr, 3); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if len(tr.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(tr.published))
	}
	p := tr.published[0]
	if p.topic != "venus/W/com.victronenergy.vebus.ttyS4/Mode" {
		t.Errorf("topic = %q", p.topic)
	}
	if string(p.payload) != `{"value":3}` {
		t.Errorf("payload = %s", p.payload)
	}
	if p.retained {
		t.Error("writes must not be retained")
	}
}

func TestClient_WriteErrors(t *testing.T) {
	addr := NewAddress("com.victronenergy.vebus.ttyS4", "/Mode")

	t.Run("not connected", func(t *testing.T) {
		c := NewClient(newMockTransport(false), 0, nil)
		if err := c.Write(context.Background(), addr, 1); !errors.Is(err, ErrNotConnected) {
			t.Errorf("Write() error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		c := NewClient(newMockTransport(true), 0, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := c.Write(ctx, addr, 1); !errors.Is(err, context.Canceled) {
			t.Errorf("Write() error = %v, want context.Canceled", err)
		}
	})

	t.Run("publish failure wrapped", func(t *testing.T) {
		tr := newMockTransport(true)
		tr.publishErr = errors.New("broker gone")
		c := NewClient(tr, 0, nil)
		if err := c.Write(context.Background(), addr, 1); err == nil {
			t.Error("Write() expected error")
		}
	})
}

func TestClient_PublishAndRemoveService(t *testing.T) {
	tr := newMockTransport(true)
	c := NewClient(tr, 0, nil)
	service := "com.victronenergy.switch.virtual_n1"

	err := c.PublishService(service, map[string]any{
		"/State":          0,
		"/CustomName":     "Pump",
		"/DeviceInstance": 100,
	})
	if err != nil {
		t.Fatalf("PublishService() error = %v", err)
	}

	want := []string{
		"venus/N/" + service + "/CustomName",
		"venus/N/" + service + "/DeviceInstance",
		"venus/N/" + service + "/State",
		"venus/S/" + service,
	}
	if got := tr.publishedTopics(); !reflect.DeepEqual(got, want) {
		t.Errorf("published topics = %v, want %v", got, want)
	}
	for _, p := range tr.published {
		if !p.retained {
			t.Errorf("%s should be retained", p.topic)
		}
	}

	tr.published = nil
	if err := c.RemoveService(service, []string{"/State"}); err != nil {
		t.Fatalf("RemoveService() error = %v", err)
	}
	if len(tr.published) != 2 || tr.published[0].payload != nil {
		t.Errorf("RemoveService published %+v", tr.published)
	}
}

func TestClient_SubscribeWrites(t *testing.T) {
	tr := newMockTransport(true)
	c := NewClient(tr, 0, nil)
	service := "com.victronenergy.switch.virtual_n1"

	var gotPath string
	var gotValue any
	if err := c.SubscribeWrites(service, func(p string, v any) { gotPath, gotValue = p, v }); err != nil {
		t.Fatalf("SubscribeWrites() error = %v", err)
	}

	filter := "venus/W/" + service + "/#"
	if err := tr.deliver(filter, "venus/W/"+service+"/State", []byte(`{"value":1}`)); err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if gotPath != "/State" || gotValue != float64(1) {
		t.Errorf("write = (%q, %v), want (/State, 1)", gotPath, gotValue)
	}

	if err := c.UnsubscribeWrites(service); err != nil {
		t.Fatalf("UnsubscribeWrites() error = %v", err)
	}
	if tr.hasHandler(filter) {
		t.Error("write subscription should be removed")
	}
}
