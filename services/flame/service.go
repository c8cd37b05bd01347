// Package flame implements the ring controller: button and proximity monitors
// feed a bounded mailbox, and a ticked state machine drains it and drives the
// two PWM channels through the animation engine.
package flame

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"flamering-go/bus"
	"flamering-go/errcode"
	"flamering-go/types"
	"flamering-go/x/timex"
)

var (
	TopicState     = bus.T("flame", "state")
	TopicProximity = bus.T("flame", "proximity")
	TopicSensor    = bus.T("flame", "sensor")
	// TopicPress accepts button names from the bus as if pressed locally.
	TopicPress = bus.T("flame", "press")
)

// Deps are the hardware capabilities the service drives.
type Deps struct {
	Buttons [len(types.Buttons)]EdgeSource // indexed by ButtonKind
	Sensor  ProximitySensor
	Out     [2]DutyChannel
	// Sleeper is shared by all loops and must be safe for concurrent use.
	// Nil means wall clock.
	Sleeper timex.Sleeper
	Logger  *slog.Logger
}

type Service struct {
	cfg  types.FlameConfig
	deps Deps
	log  *slog.Logger

	events  *bus.Mailbox[types.Event]
	engine  *Engine
	machine *Machine
	prox    *ProximityMonitor
	buttons []*ButtonMonitor

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
	err     error
}

func New(cfg types.FlameConfig, d Deps) (*Service, error) {
	const op = "flame.new"
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, b := range d.Buttons {
		if b == nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "missing button " + types.ButtonKind(i).String()}
		}
	}
	if d.Sensor == nil || d.Out[0] == nil || d.Out[1] == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "missing sensor or outputs"}
	}
	if d.Sleeper == nil {
		d.Sleeper = timex.RealSleeper{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	log := d.Logger.With("svc", "flame")

	s := &Service{
		cfg:    cfg,
		deps:   d,
		log:    log,
		events: bus.NewMailbox[types.Event](cfg.QueueLen),
	}
	s.engine = NewEngine(d.Out[0], d.Out[1], d.Sleeper)
	s.machine = NewMachine(cfg, s.events, s.engine, d.Sleeper, log)
	s.prox = NewProximityMonitor(cfg, d.Sensor, s.events, d.Sleeper, log)
	for _, k := range types.Buttons {
		s.buttons = append(s.buttons, NewButtonMonitor(k, d.Buttons[k], s.events, log))
	}
	return s, nil
}

// Start launches the machine and the monitors. Telemetry goes out on conn;
// conn may be nil. Cancelling ctx stops every loop and darkens the outputs.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return &errcode.E{C: errcode.Busy, Op: "flame.start", Msg: "already started"}
	}
	s.started = true

	if conn != nil {
		s.machine.OnChange = func(m types.Mode, l types.Level) {
			conn.Publish(conn.NewMessage(TopicState, stateOf(m, l), true))
		}
		s.prox.OnChanged = func(mag uint16) {
			conn.Publish(conn.NewMessage(TopicProximity, types.ProximityValue{Magnitude: mag, TS: timex.NowMs()}, true))
		}
		s.prox.OnHealth = func(err error) {
			st := types.SensorStatus{OK: err == nil, TS: timex.NowMs()}
			if err != nil {
				st.Error = string(errcode.MapDriverErr(err))
			}
			conn.Publish(conn.NewMessage(TopicSensor, st, true))
		}
		conn.Publish(conn.NewMessage(TopicState, stateOf(s.machine.Mode(), s.machine.Level()), true))
		s.goRun(ctx, "remote", NewRemoteMonitor(conn, s.events, s.log).Run)
	}

	s.goRun(ctx, "machine", func(ctx context.Context) error {
		defer s.engine.Off()
		return s.machine.Run(ctx)
	})
	s.goRun(ctx, "proximity", s.prox.Run)
	for _, b := range s.buttons {
		s.goRun(ctx, "button", b.Run)
	}
	s.log.Info("started", "queue", s.cfg.QueueLen, "tick", s.cfg.Tick().String())
	return nil
}

func (s *Service) goRun(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		s.log.Error("loop exited", "loop", name, "err", err)
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}()
}

// Wait blocks until every loop has returned and reports the first failure
// other than cancellation.
func (s *Service) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func stateOf(m types.Mode, l types.Level) types.FlameState {
	return types.FlameState{Mode: m.String(), Level: uint8(l), Duty: SteadyDuty(m, l), TS: timex.NowMs()}
}

// SteadyDuty is the duty a mode settles at once its animation ends.
func SteadyDuty(m types.Mode, l types.Level) uint8 {
	switch m {
	case types.ModePowerOff, types.ModeStandby:
		return 0
	default:
		return l.Percent()
	}
}
