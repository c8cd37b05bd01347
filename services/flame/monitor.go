package flame

import (
	"context"
	"log/slog"
	"time"

	"flamering-go/bus"
	"flamering-go/drivers/rpr0521"
	"flamering-go/types"
	"flamering-go/x/mathx"
	"flamering-go/x/timex"
)

// EdgeSource blocks until one falling edge is observed on an input.
type EdgeSource interface {
	WaitFallingEdge(ctx context.Context) error
}

// ProximitySensor is the proximity half of the ring's sensor.
type ProximitySensor interface {
	Init() error
	ReadProximity() (uint16, error)
}

// ------------------------
// Buttons
// ------------------------

type ButtonMonitor struct {
	kind   types.ButtonKind
	src    EdgeSource
	events *bus.Mailbox[types.Event]
	log    *slog.Logger
}

func NewButtonMonitor(kind types.ButtonKind, src EdgeSource, events *bus.Mailbox[types.Event], log *slog.Logger) *ButtonMonitor {
	if log == nil {
		log = slog.Default()
	}
	return &ButtonMonitor{kind: kind, src: src, events: events, log: log.With("button", kind.String())}
}

// Run publishes one ButtonPressed per falling edge until ctx ends or the
// source fails. A full mailbox holds the monitor back; presses are not dropped.
func (b *ButtonMonitor) Run(ctx context.Context) error {
	for {
		if err := b.src.WaitFallingEdge(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("edge source failed", "err", err)
			return err
		}
		b.log.Debug("pressed")
		if err := b.events.Publish(ctx, types.ButtonPressed(b.kind)); err != nil {
			return err
		}
	}
}

// ------------------------
// Proximity
// ------------------------

type ProximityMonitor struct {
	sensor    ProximitySensor
	events    *bus.Mailbox[types.Event]
	sleep     timex.Sleeper
	period    time.Duration
	threshold uint16
	maxRaw    uint16
	log       *slog.Logger

	lastChanged uint16
	healthy     bool
	failures    int

	// OnChanged observes every ProximityChanged value after it is queued.
	OnChanged func(magnitude uint16)
	// OnHealth observes sensor health transitions. err is nil on recovery.
	OnHealth func(err error)
}

func NewProximityMonitor(cfg types.FlameConfig, sensor ProximitySensor, events *bus.Mailbox[types.Event], sleep timex.Sleeper, log *slog.Logger) *ProximityMonitor {
	if sleep == nil {
		sleep = timex.RealSleeper{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProximityMonitor{
		sensor:    sensor,
		events:    events,
		sleep:     sleep,
		period:    cfg.Poll(),
		threshold: cfg.ChangeThreshold,
		maxRaw:    rpr0521.MaxRaw,
		log:       log.With("part", "proximity"),
		healthy:   true,
	}
}

// Run initialises the sensor once and polls it every period. An init failure
// is reported but not retried; polling continues regardless.
func (p *ProximityMonitor) Run(ctx context.Context) error {
	if err := p.sensor.Init(); err != nil {
		p.log.Error("sensor init failed", "err", err)
		p.setHealth(err)
	}
	for {
		if err := p.Poll(ctx); err != nil {
			return err
		}
		if !p.sleep.Sleep(ctx, p.period) {
			return ctx.Err()
		}
	}
}

// Poll takes one reading. A failed read publishes nothing; the returned error
// is only non-nil when ctx ends while waiting for mailbox space.
func (p *ProximityMonitor) Poll(ctx context.Context) error {
	raw, err := p.sensor.ReadProximity()
	if err != nil {
		p.failures++
		if p.healthy {
			p.log.Warn("read failed", "err", err)
		} else {
			p.log.Debug("read failed", "err", err, "n", p.failures)
		}
		p.setHealth(err)
		return nil
	}
	if !p.healthy {
		p.log.Info("sensor recovered", "after", p.failures)
		p.failures = 0
		p.setHealth(nil)
	}

	mag := p.maxRaw - mathx.Min(raw, p.maxRaw)
	if err := p.events.Publish(ctx, types.ProximityCurrent(mag)); err != nil {
		return err
	}
	if mathx.Abs(int32(mag)-int32(p.lastChanged)) > int32(p.threshold) {
		if err := p.events.Publish(ctx, types.ProximityChanged(mag)); err != nil {
			return err
		}
		p.lastChanged = mag
		if p.OnChanged != nil {
			p.OnChanged(mag)
		}
	}
	return nil
}

func (p *ProximityMonitor) setHealth(err error) {
	ok := err == nil
	if ok == p.healthy {
		return
	}
	p.healthy = ok
	if p.OnHealth != nil {
		p.OnHealth(err)
	}
}

// ------------------------
// Remote presses
// ------------------------

// RemoteMonitor turns messages on flame/press into ButtonPressed events. The
// payload names the button ("power", "weak", "strong", "nikomi").
type RemoteMonitor struct {
	sub    *bus.Subscription
	events *bus.Mailbox[types.Event]
	log    *slog.Logger
}

func NewRemoteMonitor(conn *bus.Connection, events *bus.Mailbox[types.Event], log *slog.Logger) *RemoteMonitor {
	if log == nil {
		log = slog.Default()
	}
	return &RemoteMonitor{sub: conn.Subscribe(TopicPress), events: events, log: log.With("part", "remote")}
}

// Run forwards presses until ctx ends, then drops the subscription.
func (r *RemoteMonitor) Run(ctx context.Context) error {
	defer r.sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-r.sub.Channel():
			if !ok {
				return nil
			}
			name, _ := msg.Payload.(string)
			kind, ok := types.ParseButtonKind(name)
			if !ok {
				r.log.Warn("unknown button", "payload", msg.Payload)
				continue
			}
			r.log.Debug("pressed", "button", name)
			if err := r.events.Publish(ctx, types.ButtonPressed(kind)); err != nil {
				return err
			}
		}
	}
}
