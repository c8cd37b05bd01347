//go:build !rp2040 && !rp2350

package hal

import (
	"time"

	"flamering-go/services/hal/internal/platform"
	"flamering-go/types"
)

// Host boards are built on emulated peripherals; these helpers drive them.

// Press pulls the button's pin low and releases it.
func (b *Board) Press(k types.ButtonKind) {
	hp, ok := b.pins.(*platform.HostPinFactory)
	if !ok || b.buttons[k] == nil {
		return
	}
	if p, ok := hp.Get(b.buttonPin[k]); ok {
		p.Set(false)
		p.Set(true)
	}
}

// SetProximityRaw loads the next raw sensor reading.
func (b *Board) SetProximityRaw(raw uint16) {
	if h, ok := b.bus.(*platform.HostI2C); ok {
		h.SetProximityRaw(raw)
	}
}

// SetSensorFault makes sensor transfers fail with err; nil clears it.
func (b *Board) SetSensorFault(err error) {
	if h, ok := b.bus.(*platform.HostI2C); ok {
		h.SetFail(err)
	}
}

// Duty returns the on-time last written to output ch.
func (b *Board) Duty(ch int) time.Duration {
	if p, ok := b.out[ch].(*platform.HostPWM); ok {
		return p.Duty()
	}
	return 0
}
