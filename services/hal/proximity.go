package hal

import (
	"flamering-go/drivers/rpr0521"
	"flamering-go/errcode"
)

// Proximity adapts the RPR-0521RS driver to the flame service and classifies
// its failures.
type Proximity struct {
	dev *rpr0521.Device
}

func NewProximity(dev *rpr0521.Device) *Proximity { return &Proximity{dev: dev} }

func (p *Proximity) Init() error {
	if err := p.dev.Configure(); err != nil {
		return errcode.Wrap(errcode.SensorInit, "rpr0521.init", err)
	}
	return nil
}

func (p *Proximity) ReadProximity() (uint16, error) {
	raw, err := p.dev.ReadProximity()
	if err != nil {
		return 0, errcode.Wrap(errcode.SensorRead, "rpr0521.read", err)
	}
	return raw, nil
}
