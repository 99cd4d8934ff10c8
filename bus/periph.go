package bus

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
)

// PeriphBus adapts an I2C bus of the periph.io host drivers, e.g. /dev/i2c-1 on a Raspberry Pi.
// The host drivers must be initialized before opening a bus (periph.io/x/host/v3.Init()).
type PeriphBus struct {
	Bus i2c.Bus
}

// OpenPeriph opens a bus by name or number as registered in i2creg. An empty name selects the first bus.
// A zero frequency keeps the default bus speed.
func OpenPeriph(name string, freq physic.Frequency) (*PeriphBus, error) {
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to open I2C bus '%v'", name)
	}
	if freq > 0 {
		if err := b.SetSpeed(freq); err != nil {
			_ = b.Close()
			return nil, errors.Wrapf(err, "Failed to set speed of I2C bus %v to %v", b, freq)
		}
	}
	return &PeriphBus{Bus: b}, nil
}

func (p *PeriphBus) String() string {
	return p.Bus.String()
}

func (p *PeriphBus) Close() error {
	if closer, ok := p.Bus.(i2c.BusCloser); ok {
		return closer.Close()
	}
	return nil
}

func (p *PeriphBus) I2cWrite(addr byte, data ...byte) error {
	return p.Bus.Tx(uint16(addr), data, nil)
}

func (p *PeriphBus) I2cRead(addr byte, data []byte) error {
	return p.Bus.Tx(uint16(addr), nil, data)
}

func (p *PeriphBus) I2cWriteRead(addr byte, out, in []byte) error {
	return p.Bus.Tx(uint16(addr), out, in)
}

func (p *PeriphBus) I2cGet(addr byte, registerAddr byte, size int) ([]byte, error) {
	res := make([]byte, size)
	if err := p.Bus.Tx(uint16(addr), []byte{registerAddr}, res); err != nil {
		return nil, err
	}
	return res, nil
}
