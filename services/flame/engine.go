package flame

import (
	"context"
	"math"
	"time"

	"flamering-go/types"
	"flamering-go/x/mathx"
	"flamering-go/x/ramp"
	"flamering-go/x/timex"
)

const (
	// MaxDutyMicro is the on-time written for 100% against PWMPeriod.
	MaxDutyMicro = 2500
	PWMPeriod    = 10 * time.Millisecond

	slowStep    = 10 * time.Millisecond
	fastStep    = 5 * time.Millisecond
	settlePause = 500 * time.Millisecond

	flashFrom = 50
	flashPeak = 100

	flickerSteps = 75.0
)

// DutyChannel is one PWM output. Writes are fire-and-forget.
type DutyChannel interface {
	SetDuty(on time.Duration)
}

// DutyFor converts a percentage into the on-time written to a channel.
func DutyFor(percent uint8) time.Duration {
	return time.Duration(MaxDutyMicro*uint32(percent)/100) * time.Microsecond
}

// Flicker returns the simmer duty percentage for counter value t.
func Flicker(t uint16) uint8 {
	x := float64(t) / flickerSteps
	f := (math.Sin(x) + 0.5) * (math.Sin(2*x) + 0.5) * (math.Sin(3.8*x) + 0.5)
	return uint8(math.Round(mathx.Clamp(f, 0.1, 1.0) * 100))
}

// Engine drives the two duty channels. It is owned by a single goroutine.
type Engine struct {
	ch    [2]DutyChannel
	sleep timex.Sleeper
	t     uint16 // flicker counter, wraps
}

func NewEngine(ch0, ch1 DutyChannel, sleep timex.Sleeper) *Engine {
	if sleep == nil {
		sleep = timex.RealSleeper{}
	}
	return &Engine{ch: [2]DutyChannel{ch0, ch1}, sleep: sleep}
}

func (e *Engine) set0(pct uint8) { e.ch[0].SetDuty(DutyFor(pct)) }
func (e *Engine) set1(pct uint8) { e.ch[1].SetDuty(DutyFor(pct)) }

func (e *Engine) setBoth(pct uint8) {
	d := DutyFor(pct)
	e.ch[0].SetDuty(d)
	e.ch[1].SetDuty(d)
}

func (e *Engine) walk(ctx context.Context, from, to uint8, every time.Duration, set ramp.Step) bool {
	return ramp.Walk(from, to, every, func(d time.Duration) bool { return e.sleep.Sleep(ctx, d) }, set)
}

// PowerOff fades from the level's duty to dark and forces both channels to 0.
func (e *Engine) PowerOff(ctx context.Context, level types.Level) {
	e.walk(ctx, level.Percent(), 0, slowStep, e.setBoth)
	e.setBoth(0)
}

// Standby pulses 0 -> target -> 0 and then holds.
func (e *Engine) Standby(ctx context.Context, level types.Level) {
	target := level.Percent()
	if !e.walk(ctx, 0, target, slowStep, e.setBoth) {
		return
	}
	if !e.walk(ctx, target, 0, slowStep, e.setBoth) {
		return
	}
	e.sleep.Sleep(ctx, settlePause)
}

func (e *Engine) PowerOn(_ context.Context, level types.Level) {
	e.setBoth(level.Percent())
}

// PanShake ramps up twice quickly and then holds.
func (e *Engine) PanShake(ctx context.Context, level types.Level) {
	target := level.Percent()
	for range 2 {
		if !e.walk(ctx, 0, target, fastStep, e.setBoth) {
			return
		}
	}
	e.sleep.Sleep(ctx, settlePause)
}

// LevelChange jumps channel 1 to the new level and flashes channel 0 before
// it settles there.
func (e *Engine) LevelChange(ctx context.Context, level types.Level) {
	target := level.Percent()
	e.set1(target)
	if !e.walk(ctx, flashFrom, flashPeak, fastStep, e.set0) {
		return
	}
	e.walk(ctx, flashPeak, target, fastStep, e.set0)
}

// NikomiStep writes one flicker frame to both channels and advances the
// counter.
func (e *Engine) NikomiStep() uint8 {
	pct := Flicker(e.t)
	e.setBoth(pct)
	e.t++
	return pct
}

// Enter runs the entry animation for mode. Nikomi has none; it is stepped
// every tick instead.
func (e *Engine) Enter(ctx context.Context, mode types.Mode, level types.Level) {
	switch mode {
	case types.ModePowerOff:
		e.PowerOff(ctx, level)
	case types.ModeStandby:
		e.Standby(ctx, level)
	case types.ModePowerOn:
		e.PowerOn(ctx, level)
	case types.ModePanShake:
		e.PanShake(ctx, level)
	case types.ModeLevelUp, types.ModeLevelDown:
		e.LevelChange(ctx, level)
	}
}

// Off forces both channels dark.
func (e *Engine) Off() { e.setBoth(0) }
