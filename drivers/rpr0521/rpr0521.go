// Package rpr0521 provides a driver for the ROHM RPR-0521RS ambient light and
// proximity sensor. Only the proximity path is used:
//
//	d := rpr0521.New(bus)
//	err := d.Configure()            // reset + start continuous measurement
//	raw, err := d.ReadProximity()   // 12-bit reading, larger = closer
//
// Magnitude converts a reading into a distance-like value (larger = farther).
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package rpr0521

import (
	"errors"
	"time"

	"flamering-go/x/mathx"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x38

// MaxRaw is the largest proximity reading the sensor reports.
const MaxRaw = psDataMask

// Errors returned by the driver.
var (
	ErrProtocol = errors.New("rpr0521: protocol error")
	ErrPartID   = errors.New("rpr0521: unexpected part id")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x38 if zero.
	Address uint16
	// WriteGap separates the writes of the init sequence. Default 10 ms;
	// negative disables the gap.
	WriteGap time.Duration
}

// Device wraps an I2C connection to an RPR-0521RS.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	buf [2]byte
	reg [1]byte
}

// New creates a new connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) *Device {
	return &Device{
		bus:     bus,
		Address: Address,
		cfg:     Config{Address: Address, WriteGap: 10 * time.Millisecond},
	}
}

// Configure runs the init sequence. Every write is attempted even if an
// earlier one fails; the first error is returned.
func (d *Device) Configure(cfgs ...Config) error {
	if len(cfgs) > 0 {
		c := cfgs[0]
		if c.Address != 0 {
			d.Address = c.Address
		}
		switch {
		case c.WriteGap == 0:
			c.WriteGap = 10 * time.Millisecond
		case c.WriteGap < 0:
			c.WriteGap = 0
		}
		c.Address = d.Address
		d.cfg = c
	}

	var first error
	for _, rv := range initSequence {
		if err := d.WriteRegister(rv[0], rv[1]); err != nil && first == nil {
			first = err
		}
		if d.cfg.WriteGap > 0 {
			time.Sleep(d.cfg.WriteGap)
		}
	}
	return first
}

// WriteRegister writes one byte to reg.
func (d *Device) WriteRegister(reg, val byte) error {
	return d.bus.Tx(d.Address, []byte{reg, val}, nil)
}

// ReadRegisters fills out starting at reg (write-then-read).
func (d *Device) ReadRegisters(reg byte, out []byte) error {
	d.reg[0] = reg
	return d.bus.Tx(d.Address, d.reg[:], out)
}

// ReadProximity returns the raw 12-bit proximity reading.
func (d *Device) ReadProximity() (uint16, error) {
	if err := d.ReadRegisters(regPSDataLSB, d.buf[:]); err != nil {
		return 0, err
	}
	raw := uint16(d.buf[0]) | uint16(d.buf[1])<<8
	if raw&^psDataMask != 0 {
		return 0, ErrProtocol
	}
	return raw, nil
}

// PartID checks the part and manufacturer identifiers.
func (d *Device) PartID() (byte, error) {
	var b [1]byte
	if err := d.ReadRegisters(regSystemControl, b[:]); err != nil {
		return 0, err
	}
	id := b[0] & partIDMask
	if err := d.ReadRegisters(regManufactID, b[:]); err != nil {
		return id, err
	}
	if id != partID || b[0] != manufactID {
		return id, ErrPartID
	}
	return id, nil
}

// Magnitude converts a raw reading into a distance-like value, larger = farther.
func Magnitude(raw uint16) uint16 {
	return MaxRaw - mathx.Min(raw, MaxRaw)
}
