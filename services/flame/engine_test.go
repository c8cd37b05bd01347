package flame

import (
	"context"
	"math"
	"testing"
	"time"

	"flamering-go/types"
	"flamering-go/x/timex"
)

// recorder keeps every percentage written to a channel.
type recorder struct{ frames []uint8 }

func (r *recorder) SetDuty(d time.Duration) {
	r.frames = append(r.frames, uint8(d/(MaxDutyMicro*time.Microsecond/100)))
}

func (r *recorder) last() uint8 {
	if len(r.frames) == 0 {
		return 0
	}
	return r.frames[len(r.frames)-1]
}

func newTestEngine() (*Engine, *recorder, *recorder, *timex.VirtualSleeper) {
	c0, c1 := &recorder{}, &recorder{}
	vs := &timex.VirtualSleeper{}
	return NewEngine(c0, c1, vs), c0, c1, vs
}

func seq(from, to int) []uint8 {
	var out []uint8
	step := 1
	if to < from {
		step = -1
	}
	for v := from; ; v += step {
		out = append(out, uint8(v))
		if v == to {
			return out
		}
	}
}

func equalFrames(t *testing.T, name string, got, want []uint8) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d frames, want %d (%v)", name, len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: frame %d = %d, want %d", name, i, got[i], want[i])
		}
	}
}

func TestDutyFor(t *testing.T) {
	if DutyFor(100) != 2500*time.Microsecond || DutyFor(0) != 0 || DutyFor(60) != 1500*time.Microsecond {
		t.Fatal("duty must be 2500us * pct / 100")
	}
	if DutyFor(100) >= PWMPeriod {
		t.Fatal("full duty must stay below the period")
	}
}

func TestPowerOffRamp(t *testing.T) {
	e, c0, c1, vs := newTestEngine()
	e.PowerOff(context.Background(), types.DefaultLevel)
	want := append(seq(60, 0), 0)
	equalFrames(t, "ch0", c0.frames, want)
	equalFrames(t, "ch1", c1.frames, want)
	if vs.Elapsed != 61*10*time.Millisecond {
		t.Fatalf("elapsed %v", vs.Elapsed)
	}
}

func TestStandbyPulse(t *testing.T) {
	e, c0, c1, vs := newTestEngine()
	e.Standby(context.Background(), types.DefaultLevel)
	want := append(seq(0, 60), seq(60, 0)...)
	equalFrames(t, "ch0", c0.frames, want)
	equalFrames(t, "ch1", c1.frames, want)
	if vs.Elapsed != 122*10*time.Millisecond+500*time.Millisecond {
		t.Fatalf("elapsed %v", vs.Elapsed)
	}
}

func TestPowerOnIsInstant(t *testing.T) {
	e, c0, c1, vs := newTestEngine()
	e.PowerOn(context.Background(), 9)
	equalFrames(t, "ch0", c0.frames, []uint8{100})
	equalFrames(t, "ch1", c1.frames, []uint8{100})
	if vs.Elapsed != 0 {
		t.Fatalf("power on should not wait, took %v", vs.Elapsed)
	}
}

func TestPanShakeTwice(t *testing.T) {
	e, c0, _, vs := newTestEngine()
	e.PanShake(context.Background(), 2)
	want := append(seq(0, 30), seq(0, 30)...)
	equalFrames(t, "ch0", c0.frames, want)
	if vs.Elapsed != 62*5*time.Millisecond+500*time.Millisecond {
		t.Fatalf("elapsed %v", vs.Elapsed)
	}
}

func TestLevelChangeFlash(t *testing.T) {
	e, c0, c1, vs := newTestEngine()
	e.LevelChange(context.Background(), 6)
	equalFrames(t, "ch1", c1.frames, []uint8{70})
	equalFrames(t, "ch0", c0.frames, append(seq(50, 100), seq(100, 70)...))
	if vs.Elapsed != 82*5*time.Millisecond {
		t.Fatalf("elapsed %v", vs.Elapsed)
	}
}

func TestCancelledRampStillDarkensOnPowerOff(t *testing.T) {
	e, c0, c1, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.PowerOff(ctx, types.MaxLevel)
	if c0.last() != 0 || c1.last() != 0 {
		t.Fatal("power off must end dark")
	}
	if len(c0.frames) != 2 {
		t.Fatalf("cancelled ramp should stop after its first level, got %v", c0.frames)
	}
}

func TestFlicker(t *testing.T) {
	if got := Flicker(0); got != 13 {
		t.Fatalf("Flicker(0) = %d, want 13", got)
	}
	for i := 0; i <= math.MaxUint16; i++ {
		p := Flicker(uint16(i))
		if p < 10 || p > 100 {
			t.Fatalf("Flicker(%d) = %d out of [10,100]", i, p)
		}
	}
}

func TestNikomiStepDeterministic(t *testing.T) {
	a, ac, _, _ := newTestEngine()
	b, bc, _, _ := newTestEngine()
	for i := 0; i < 500; i++ {
		if a.NikomiStep() != b.NikomiStep() {
			t.Fatalf("step %d diverged", i)
		}
	}
	equalFrames(t, "replay", ac.frames, bc.frames)
}

func TestNikomiCounterWraps(t *testing.T) {
	e, c0, c1, vs := newTestEngine()
	e.t = math.MaxUint16
	if got := e.NikomiStep(); got != Flicker(math.MaxUint16) {
		t.Fatalf("got %d", got)
	}
	if e.t != 0 {
		t.Fatalf("counter = %d after wrap", e.t)
	}
	if got := e.NikomiStep(); got != 13 {
		t.Fatalf("after wrap got %d, want 13", got)
	}
	if c0.last() != c1.last() {
		t.Fatal("both channels get the same flicker")
	}
	if vs.Elapsed != 0 {
		t.Fatal("a flicker step never waits")
	}
}

func TestEnterDispatch(t *testing.T) {
	for _, m := range []types.Mode{types.ModeLevelUp, types.ModeLevelDown} {
		e, _, c1, _ := newTestEngine()
		e.Enter(context.Background(), m, 3)
		equalFrames(t, m.String(), c1.frames, []uint8{40})
	}
	e, c0, _, vs := newTestEngine()
	e.Enter(context.Background(), types.ModeNikomi, 3)
	if len(c0.frames) != 0 || vs.Elapsed != 0 {
		t.Fatal("nikomi has no entry animation")
	}
}
