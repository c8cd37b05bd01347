// services/hal/internal/platform/factories_rp2xxx.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"time"

	"github.com/sparques/pwm"
	"tinygo.org/x/drivers"

	halcore "flamering-go/services/hal/internal/halcore"
	"flamering-go/x/mathx"
)

// -----------------------------------------------------------------------------
// Defaults used by hal.Open on Raspberry Pi Pico / Pico 2 (RP2 family)
// -----------------------------------------------------------------------------

// DefaultI2CFactory configures i2c0 on the given pins and i2c1 on its board
// defaults, both at 400 kHz.
func DefaultI2CFactory(sda, scl int) halcore.I2CBusFactory {
	f := &rp2I2CFactory{buses: make(map[string]drivers.I2C)}

	b0 := machine.I2C0
	_ = b0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.Pin(sda),
		SCL:       machine.Pin(scl),
	})
	f.buses["i2c0"] = b0

	b1 := machine.I2C1
	_ = b1.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	f.buses["i2c1"] = b1

	return f
}

// DefaultPinFactory returns a GPIO factory that maps logical numbers directly
// to machine.Pin(n). This matches Pico/Pico 2 GP numbering.
func DefaultPinFactory() halcore.PinFactory { return rp2PinFactory{} }

// DefaultPWMFactory hands out PWM channels by GP number.
func DefaultPWMFactory() halcore.PWMFactory { return rp2PWMFactory{} }

// ---- I²C implementation ----

type rp2I2CFactory struct {
	buses map[string]drivers.I2C
}

func (f *rp2I2CFactory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

// ---- GPIO implementation (includes IRQ support) ----

type rp2PinFactory struct{}

func (rp2PinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	// Constrain to RP2’s user GPIOs (GP0..GP28).
	if n < 0 || n > 28 {
		return nil, false
	}
	return &rp2Pin{p: machine.Pin(n), n: n}, true
}

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull halcore.Pull) error {
	var mode machine.PinMode
	switch pull {
	case halcore.PullUp:
		mode = machine.PinInputPullup
	case halcore.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }
func (r *rp2Pin) Number() int    { return r.n }

// IRQ support. The RP2 port provides SetInterrupt with PinChange flags.
func (r *rp2Pin) SetIRQ(edge halcore.Edge, handler func()) error {
	change := toPinChange(edge)
	return r.p.SetInterrupt(change, func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

func toPinChange(e halcore.Edge) machine.PinChange {
	switch e {
	case halcore.EdgeRising:
		return machine.PinRising
	case halcore.EdgeFalling:
		return machine.PinFalling
	case halcore.EdgeBoth:
		return machine.PinToggle
	default:
		// Zero value is a no-op/disabled.
		var zero machine.PinChange
		return zero
	}
}

// ---- PWM implementation ----

type rp2PWMFactory struct{}

func (rp2PWMFactory) ByPin(n int) (halcore.PWMChannel, bool) {
	if n < 0 || n > 28 {
		return nil, false
	}
	return &rp2PWM{pin: machine.Pin(n), n: n}, true
}

// rp2PWM drives one channel of a PWM slice. Both channels of a slice share
// its period; the last Configure wins.
type rp2PWM struct {
	pin    machine.Pin
	n      int
	group  pwm.Group
	ch     uint8
	top    uint32
	period time.Duration
	ready  bool
}

func (p *rp2PWM) Configure(period time.Duration) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	p.group = pwm.Get(p.pin)
	if err := p.group.Configure(machine.PWMConfig{Period: uint64(period)}); err != nil {
		return err
	}
	ch, err := p.group.Channel(p.pin)
	if err != nil {
		return err
	}
	p.ch, p.top, p.period = ch, p.group.Top(), period
	p.ready = true
	p.group.Set(p.ch, 0)
	return nil
}

func (p *rp2PWM) SetDuty(on time.Duration) {
	if !p.ready || p.period <= 0 {
		return
	}
	on = mathx.Clamp(on, 0, p.period)
	p.group.Set(p.ch, uint32(mathx.RoundDiv(uint64(p.top)*uint64(on), uint64(p.period))))
}

func (p *rp2PWM) Number() int { return p.n }
