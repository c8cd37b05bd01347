// services/hal/internal/platform/factories_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"
	"sync/atomic"
	"time"

	"flamering-go/services/hal/internal/halcore"

	"tinygo.org/x/drivers"
)

// ----------------------------- I²C (host) ------------------------------------

// HostI2C implements tinygo drivers.I2C as a single register file, enough to
// stand in for the proximity sensor. A one-byte write selects a register; a
// two-byte write stores a value; reads copy from the selected register on.
type HostI2C struct {
	mu     sync.Mutex
	regs   [256]byte
	fail   error
	LastTx struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

// Sensor identification registers as reported by an RPR-0521RS.
const (
	hostRegSystem = 0x40
	hostRegPSLSB  = 0x44
	hostRegMfr    = 0x92
	hostPartID    = 0x0A
	hostMfrID     = 0xE0
)

func NewHostI2C() *HostI2C {
	h := &HostI2C{}
	h.regs[hostRegSystem] = hostPartID
	h.regs[hostRegMfr] = hostMfrID
	return h
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	if h.fail != nil {
		return h.fail
	}
	if len(w) == 0 {
		return nil
	}
	reg := w[0]
	if len(w) >= 2 && reg != hostRegSystem {
		copy(h.regs[reg:], w[1:])
	}
	copy(r, h.regs[reg:])
	return nil
}

// SetProximityRaw loads a 12-bit proximity reading into the data registers.
func (h *HostI2C) SetProximityRaw(raw uint16) {
	h.mu.Lock()
	h.regs[hostRegPSLSB] = byte(raw)
	h.regs[hostRegPSLSB+1] = byte(raw >> 8)
	h.mu.Unlock()
}

// SetFail makes every transfer return err until cleared with nil.
func (h *HostI2C) SetFail(err error) {
	h.mu.Lock()
	h.fail = err
	h.mu.Unlock()
}

// Reg returns the current value of a register.
func (h *HostI2C) Reg(reg byte) byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.regs[reg]
}

type hostI2CFactory struct {
	buses map[string]drivers.I2C
}

func (f *hostI2CFactory) ByID(id string) (drivers.I2C, bool) {
	b, ok := f.buses[id]
	return b, ok
}

// DefaultI2CFactory creates emulated host I²C buses "i2c0" and "i2c1". The
// pin arguments only matter on hardware.
func DefaultI2CFactory(_, _ int) halcore.I2CBusFactory {
	return &hostI2CFactory{
		buses: map[string]drivers.I2C{
			"i2c0": NewHostI2C(),
			"i2c1": NewHostI2C(),
		},
	}
}

// ----------------------------- GPIO (host) -----------------------------------

// FakePin implements GPIOPin and IRQPin for host-side tests.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	irqEdge halcore.Edge
	irqFunc func()
}

// ConfigureInput models the pull resistor: a pulled-up input idles high.
func (p *FakePin) ConfigureInput(pull halcore.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	switch pull {
	case halcore.PullUp:
		p.level = true
	case halcore.PullDown:
		p.level = false
	}
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	irq := p.irqFunc
	want := irqWanted(p.irqEdge, edgeFrom(old, level))
	p.mu.Unlock()
	if want && irq != nil {
		irq() // ISR-style callback used by gpioirq.Worker
	}
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *FakePin) Number() int { return p.number }

func (p *FakePin) SetIRQ(edge halcore.Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = halcore.EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

func edgeFrom(old, new bool) halcore.Edge {
	switch {
	case !old && new:
		return halcore.EdgeRising
	case old && !new:
		return halcore.EdgeFalling
	default:
		return halcore.EdgeNone
	}
}

func irqWanted(cfg, seen halcore.Edge) bool {
	switch cfg {
	case halcore.EdgeBoth:
		return seen == halcore.EdgeRising || seen == halcore.EdgeFalling
	default:
		return cfg != halcore.EdgeNone && cfg == seen
	}
}

// HostPinFactory returns stable *FakePin instances per number.
type HostPinFactory struct {
	mu   sync.Mutex
	pins map[int]*FakePin
}

func (f *HostPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	return f.pin(n), true
}

func (f *HostPinFactory) pin(n int) *FakePin {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins == nil {
		f.pins = make(map[int]*FakePin)
	}
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{number: n}
		f.pins[n] = p
	}
	return p
}

// Get exposes the underlying *FakePin for tests (e.g. to drive IRQ edges).
func (f *HostPinFactory) Get(n int) (*FakePin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	return p, ok
}

// DefaultPinFactory provides a host GPIO factory.
func DefaultPinFactory() halcore.PinFactory {
	return &HostPinFactory{pins: make(map[int]*FakePin)}
}

// ----------------------------- PWM (host) ------------------------------------

// HostPWM records the last duty written.
type HostPWM struct {
	number int
	period atomic.Int64
	duty   atomic.Int64
	writes atomic.Uint64
}

func (p *HostPWM) Configure(period time.Duration) error {
	p.period.Store(int64(period))
	return nil
}

func (p *HostPWM) SetDuty(on time.Duration) {
	if per := time.Duration(p.period.Load()); per > 0 && on > per {
		on = per
	}
	p.duty.Store(int64(on))
	p.writes.Add(1)
}

func (p *HostPWM) Number() int { return p.number }

func (p *HostPWM) Duty() time.Duration   { return time.Duration(p.duty.Load()) }
func (p *HostPWM) Period() time.Duration { return time.Duration(p.period.Load()) }
func (p *HostPWM) Writes() uint64        { return p.writes.Load() }

type HostPWMFactory struct {
	mu  sync.Mutex
	chs map[int]*HostPWM
}

func (f *HostPWMFactory) ByPin(n int) (halcore.PWMChannel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chs == nil {
		f.chs = make(map[int]*HostPWM)
	}
	c, ok := f.chs[n]
	if !ok {
		c = &HostPWM{number: n}
		f.chs[n] = c
	}
	return c, true
}

func DefaultPWMFactory() halcore.PWMFactory { return &HostPWMFactory{} }
