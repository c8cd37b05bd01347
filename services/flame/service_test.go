package flame

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flamering-go/bus"
	"flamering-go/errcode"
	"flamering-go/types"
	"flamering-go/x/timex"
)

// fastSleeper runs wall-clock time a hundred times faster.
type fastSleeper struct{}

func (fastSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	return timex.RealSleeper{}.Sleep(ctx, d/100)
}

type syncRecorder struct {
	mu  sync.Mutex
	out time.Duration
	n   int
}

func (s *syncRecorder) SetDuty(d time.Duration) {
	s.mu.Lock()
	s.out, s.n = d, s.n+1
	s.mu.Unlock()
}

func (s *syncRecorder) last() (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out, s.n
}

type rawSensor struct{ raw atomic.Uint32 }

func (s *rawSensor) Init() error { return nil }
func (s *rawSensor) ReadProximity() (uint16, error) {
	return uint16(s.raw.Load()), nil
}

func waitState(t *testing.T, sub *bus.Subscription, mode string, level uint8) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-sub.Channel():
			st, ok := msg.Payload.(types.FlameState)
			if !ok {
				t.Fatalf("payload %T", msg.Payload)
			}
			if st.Mode == mode && st.Level == level {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s/%d", mode, level)
		}
	}
}

func TestServiceEndToEnd(t *testing.T) {
	var buttons [len(types.Buttons)]*chanEdges
	var deps Deps
	for i := range buttons {
		buttons[i] = newChanEdges()
		deps.Buttons[i] = buttons[i]
	}
	sensor := &rawSensor{}
	sensor.raw.Store(0) // nothing near: magnitude 4095
	out0, out1 := &syncRecorder{}, &syncRecorder{}
	deps.Sensor = sensor
	deps.Out = [2]DutyChannel{out0, out1}
	deps.Sleeper = fastSleeper{}

	svc, err := New(types.DefaultFlameConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}

	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(TopicState)

	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(ctx, conn); errcode.Of(err) != errcode.Busy {
		t.Fatalf("second start: %v", err)
	}
	waitState(t, sub, "power_off", 5)

	buttons[types.ButtonPower].press()
	waitState(t, sub, "standby", 5)

	sensor.raw.Store(4095 - 1000) // hand over the pan
	waitState(t, sub, "power_on", 5)

	buttons[types.ButtonStrong].press()
	waitState(t, sub, "level_up", 6)
	waitState(t, sub, "power_on", 6)

	prox := conn.Subscribe(TopicProximity)
	select {
	case msg := <-prox.Channel():
		if v := msg.Payload.(types.ProximityValue); v.Magnitude != 1000 {
			t.Fatalf("retained proximity %d", v.Magnitude)
		}
	case <-time.After(time.Second):
		t.Fatal("no proximity telemetry")
	}

	cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
	for i, o := range []*syncRecorder{out0, out1} {
		if d, n := o.last(); n == 0 || d != 0 {
			t.Fatalf("output %d left at %v after shutdown", i, d)
		}
	}
}

func TestServiceRejectsMissingDeps(t *testing.T) {
	if _, err := New(types.DefaultFlameConfig(), Deps{}); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("got %v", err)
	}
	cfg := types.DefaultFlameConfig()
	cfg.PanOnTh = cfg.PanOffTh
	if _, err := New(cfg, Deps{}); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("got %v", err)
	}
}

func TestSteadyDuty(t *testing.T) {
	if SteadyDuty(types.ModeStandby, 9) != 0 || SteadyDuty(types.ModePowerOff, 9) != 0 {
		t.Fatal("dark modes report 0")
	}
	if SteadyDuty(types.ModePowerOn, 5) != 60 {
		t.Fatal("power on reports the level duty")
	}
}
