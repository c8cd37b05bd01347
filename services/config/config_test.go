// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"flamering-go/bus"
	"flamering-go/errcode"
	"flamering-go/types"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	// Arrange bus and service.
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService(nil)

	if err := svc.Start(WithDevice(context.Background(), "pico"), conn); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))

	wantCount := 3 // mode, debug, region
	got := map[string]any{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			if prefix, ok := m.Topic.At(0).(string); !ok || prefix != configPrefix {
				t.Fatalf("unexpected prefix: %#v", m.Topic.At(0))
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic.At(1))
			}
			if !m.Retained {
				t.Fatalf("%s not retained", key)
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", got["mode"])
	}
	if bval, ok := got["debug"].(bool); !ok || !bval {
		t.Fatalf("debug payload = %#v, want true", got["debug"])
	}
	if m, ok := got["region"].(map[string]any); !ok {
		t.Fatalf("region payload type = %T, want map[string]any", got["region"])
	} else if code, ok := m["code"].(string); !ok || code != "eu" {
		t.Fatalf("region.code = %#v, want \"eu\"", m["code"])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService(nil)

	// No device ID in context
	if err := svc.publishConfig(context.Background(), conn); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("expected invalid_params for missing device ID, got %v", err)
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService(nil)

	ctx := WithDevice(context.Background(), "unknown-device")
	if err := svc.publishConfig(ctx, conn); errcode.Of(err) != errcode.NoConfig {
		t.Fatalf("expected no_config, got %v", err)
	}
}

func TestConfig_PublishConfig_BadJSON(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(string) ([]byte, bool) { return []byte(`{"flame":`), true }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	conn := bus.NewBus(4).NewConnection("test-bad-json")
	err := NewConfigService(nil).publishConfig(WithDevice(context.Background(), "pico"), conn)
	if errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
}

func TestEmbeddedConfigsDecode(t *testing.T) {
	for _, device := range []string{"pico", "sim"} {
		b := bus.NewBus(8)
		conn := b.NewConnection("test-" + device)
		if err := NewConfigService(nil).Start(WithDevice(context.Background(), device), conn); err != nil {
			t.Fatalf("%s: %v", device, err)
		}
		raw, err := Await(context.Background(), conn, "flame", 100*time.Millisecond)
		if err != nil {
			t.Fatalf("%s: await flame: %v", device, err)
		}
		cfg, err := types.DecodeFlameConfig(raw)
		if err != nil {
			t.Fatalf("%s: decode flame: %v", device, err)
		}
		if cfg.PanOnTh != 1500 || cfg.PanOffTh != 3500 || cfg.QueueLen != 4 {
			t.Fatalf("%s: unexpected flame config %+v", device, cfg)
		}
		hb, err := Await(context.Background(), conn, "heartbeat", 100*time.Millisecond)
		if err != nil {
			t.Fatalf("%s: await heartbeat: %v", device, err)
		}
		if _, err := types.DecodeHeartbeatConfig(hb); err != nil {
			t.Fatalf("%s: decode heartbeat: %v", device, err)
		}
	}
}

func TestAwaitTimeoutAndLatePublish(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-await")

	if _, err := Await(context.Background(), conn, "missing", 10*time.Millisecond); errcode.Of(err) != errcode.Timeout {
		t.Fatalf("expected timeout, got %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		pub := b.NewConnection("late")
		pub.Publish(pub.NewMessage(Topic("late"), map[string]any{"x": 1.0}, true))
	}()
	v, err := Await(context.Background(), conn, "late", time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if m, ok := v.(map[string]any); !ok || m["x"] != 1.0 {
		t.Fatalf("payload %#v", v)
	}
}
