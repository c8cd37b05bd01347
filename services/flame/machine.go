package flame

import (
	"context"
	"log/slog"
	"time"

	"flamering-go/bus"
	"flamering-go/types"
	"flamering-go/x/timex"
)

// Machine owns Mode and Level. Step and Run must be called from one goroutine.
type Machine struct {
	rules  Rules
	events *bus.Mailbox[types.Event]
	engine *Engine
	sleep  timex.Sleeper
	tick   time.Duration
	log    *slog.Logger

	mode  types.Mode
	level types.Level

	// OnChange observes every mode change before its animation runs.
	OnChange func(mode types.Mode, level types.Level)
}

func NewMachine(cfg types.FlameConfig, events *bus.Mailbox[types.Event], engine *Engine, sleep timex.Sleeper, log *slog.Logger) *Machine {
	if sleep == nil {
		sleep = timex.RealSleeper{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		rules:  RulesFrom(cfg),
		events: events,
		engine: engine,
		sleep:  sleep,
		tick:   cfg.Tick(),
		log:    log.With("part", "machine"),
		mode:   types.ModePowerOff,
		level:  types.Level(cfg.DefaultLevel),
	}
}

func (m *Machine) Mode() types.Mode   { return m.mode }
func (m *Machine) Level() types.Level { return m.level }

// Step drains at most one event, applies the transition and runs the
// resulting animation to completion. It reports whether the mode changed.
func (m *Machine) Step(ctx context.Context) bool {
	ev, _ := m.events.TryTake()
	prev := m.mode
	m.mode, m.level = Transition(m.rules, m.mode, m.level, ev)
	changed := m.mode != prev

	if changed {
		m.log.Info("mode", "from", prev.String(), "to", m.mode.String(), "level", uint8(m.level), "event", ev.String())
		if m.OnChange != nil {
			m.OnChange(m.mode, m.level)
		}
	}

	switch {
	case m.mode == types.ModeNikomi:
		m.engine.NikomiStep()
	case changed:
		m.engine.Enter(ctx, m.mode, m.level)
	}
	return changed
}

// Run steps once per tick until ctx ends.
func (m *Machine) Run(ctx context.Context) error {
	for {
		m.Step(ctx)
		if !m.sleep.Sleep(ctx, m.tick) {
			return ctx.Err()
		}
	}
}
