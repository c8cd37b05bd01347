// Package hal opens the ring's hardware: four pulled-up buttons delivered
// through the GPIO IRQ worker, the proximity sensor on I²C, and two PWM
// outputs. The same code runs on RP2 and, with emulated peripherals, on host.
package hal

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"flamering-go/drivers/rpr0521"
	"flamering-go/errcode"
	"flamering-go/services/flame"
	"flamering-go/services/hal/internal/gpioirq"
	"flamering-go/services/hal/internal/halcore"
	"flamering-go/services/hal/internal/platform"
	"flamering-go/types"
	"flamering-go/x/timex"

	"tinygo.org/x/drivers"
)

// pwmHz gives the 10 ms period the duty scale is defined against.
const pwmHz = 100

type Board struct {
	buttons   [len(types.Buttons)]*gpioirq.Stream
	buttonPin [len(types.Buttons)]int
	sensor    *Proximity
	out       [2]halcore.PWMChannel

	pins   halcore.PinFactory
	bus    drivers.I2C
	worker *gpioirq.Worker
	cancel context.CancelFunc
	log    *slog.Logger
}

// Open claims the pins named in cfg. Close releases them.
func Open(ctx context.Context, cfg types.FlameConfig, log *slog.Logger) (*Board, error) {
	return open(ctx, cfg, log, platform.DefaultPinFactory(), platform.DefaultI2CFactory(cfg.Pins.SDA, cfg.Pins.SCL), platform.DefaultPWMFactory())
}

func open(ctx context.Context, cfg types.FlameConfig, log *slog.Logger, pins halcore.PinFactory, buses halcore.I2CBusFactory, pwms halcore.PWMFactory) (*Board, error) {
	const op = "hal.open"
	if log == nil {
		log = slog.Default()
	}
	wctx, cancel := context.WithCancel(ctx)
	b := &Board{
		pins:   pins,
		worker: gpioirq.New(32, 8),
		cancel: cancel,
		log:    log.With("svc", "hal"),
	}
	b.worker.Start(wctx)

	used := map[int]string{}
	claim := func(n int, who string) error {
		if prev, ok := used[n]; ok {
			return &errcode.E{C: errcode.PinInUse, Op: op, Msg: "GP" + strconv.Itoa(n) + " wanted by " + who + ", held by " + prev}
		}
		used[n] = who
		return nil
	}

	for _, k := range types.Buttons {
		n := cfg.Pins.Button(k)
		if err := claim(n, k.String()); err != nil {
			b.Close()
			return nil, err
		}
		st, err := b.openButton(k, n, int(cfg.DebounceMs))
		if err != nil {
			b.Close()
			return nil, err
		}
		b.buttons[k], b.buttonPin[k] = st, n
	}

	bus, ok := buses.ByID(cfg.Pins.I2C)
	if !ok {
		b.Close()
		return nil, &errcode.E{C: errcode.UnknownBus, Op: op, Msg: cfg.Pins.I2C}
	}
	b.bus = bus
	b.sensor = NewProximity(rpr0521.New(bus))

	period := time.Duration(timex.PeriodFromHz(pwmHz))
	for i, n := range [2]int{cfg.Pins.PWM0, cfg.Pins.PWM1} {
		if err := claim(n, "pwm"+strconv.Itoa(i)); err != nil {
			b.Close()
			return nil, err
		}
		ch, ok := pwms.ByPin(n)
		if !ok {
			b.Close()
			return nil, &errcode.E{C: errcode.UnknownPin, Op: op, Msg: "GP" + strconv.Itoa(n)}
		}
		if err := ch.Configure(period); err != nil {
			b.Close()
			return nil, errcode.Wrap(errcode.Error, op, err)
		}
		b.out[i] = ch
	}

	b.log.Info("board ready",
		"buttons", [4]int{cfg.Pins.Power, cfg.Pins.Weak, cfg.Pins.Strong, cfg.Pins.Nikomi},
		"pwm", [2]int{cfg.Pins.PWM0, cfg.Pins.PWM1},
		"i2c", cfg.Pins.I2C)
	return b, nil
}

func (b *Board) openButton(k types.ButtonKind, n, debounceMS int) (*gpioirq.Stream, error) {
	const op = "hal.button"
	p, ok := b.pins.ByNumber(n)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: op, Msg: "GP" + strconv.Itoa(n)}
	}
	irq, ok := p.(halcore.IRQPin)
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "GP" + strconv.Itoa(n) + " has no IRQ"}
	}
	if err := irq.ConfigureInput(halcore.PullUp); err != nil {
		return nil, errcode.Wrap(errcode.Error, op, err)
	}
	st, err := b.worker.RegisterInput("button/"+k.String(), irq, halcore.EdgeFalling, debounceMS, false)
	if err != nil {
		return nil, errcode.Wrap(errcode.PinInUse, op, err)
	}
	b.log.Debug("button", "name", k.String(), "pin", n, "edge", halcore.EdgeToString(halcore.EdgeFalling), "debounce_ms", debounceMS)
	return st, nil
}

// Deps returns the capabilities the flame service drives.
func (b *Board) Deps() flame.Deps {
	var d flame.Deps
	for i, st := range b.buttons {
		d.Buttons[i] = st
	}
	d.Sensor = b.sensor
	d.Out = [2]flame.DutyChannel{b.out[0], b.out[1]}
	return d
}

// Close darkens the outputs, releases the buttons and stops the IRQ worker.
func (b *Board) Close() {
	for _, o := range b.out {
		if o != nil {
			o.SetDuty(0)
		}
	}
	for _, st := range b.buttons {
		if st != nil {
			st.Close()
		}
	}
	b.cancel()
	<-b.worker.Stopped()
}

// ISRDrops reports edges lost because the ISR queue was full.
func (b *Board) ISRDrops() uint32 { return b.worker.ISRDrops() }
