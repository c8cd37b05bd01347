package rpr0521

// Register map (subset).
const (
	regSystemControl = 0x40 // bit7 SW reset, bit6 INT reset, bits5-0 part id
	regModeControl   = 0x41
	regALSPSControl  = 0x42 // ALS gains, LED current
	regPSControl     = 0x43 // PS gain, persistence
	regPSDataLSB     = 0x44 // PS data, 12 bit little endian (0x44..0x45)
	regManufactID    = 0x92
)

const (
	sysSWReset  = 0x80
	sysINTReset = 0x40
	partIDMask  = 0x3F

	partID      = 0x0A
	manufactID  = 0xE0
	psDataMask  = 0x0FFF
	modeMeasure = 0xC6 // ALS+PS enabled, 100 ms measurement period
	psGain1     = 0x01 // PS gain x1, persistence 1
	ledCurrent  = 0x02 // 100 mA
)

// initSequence brings the sensor out of reset and starts measuring.
var initSequence = [...][2]byte{
	{regSystemControl, sysSWReset | sysINTReset},
	{regSystemControl, 0x00},
	{regPSControl, psGain1},
	{regALSPSControl, ledCurrent},
	{regModeControl, modeMeasure},
}
