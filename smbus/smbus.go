// Package smbus transfers MCP23x17 registers with SMBus byte data commands through the Linux i2c-dev interface.
package smbus

import (
	"github.com/pkg/errors"
	"github.com/platinasystems/i2c"
)

type Registers struct {
	bus  i2c.Bus
	addr int
}

// Open opens /dev/i2c-<busIndex> and selects the slave address, even if a kernel driver claims it.
func Open(busIndex int, addr byte) (*Registers, error) {
	r := &Registers{addr: int(addr)}
	if err := r.bus.Open(busIndex); err != nil {
		return nil, errors.Wrapf(err, "Failed to open I2C bus %v", busIndex)
	}
	if err := r.bus.ForceSlaveAddress(r.addr); err != nil {
		r.bus.Close()
		return nil, errors.Wrapf(err, "Failed to set I2C slave address %#02x", addr)
	}
	return r, nil
}

func (r *Registers) Close() error {
	r.bus.Close()
	return nil
}

func (r *Registers) WriteRegister(addr byte, val byte) error {
	var data i2c.SMBusData
	data[0] = val
	return r.bus.Do(i2c.Write, addr, i2c.ByteData, &data)
}

func (r *Registers) ReadRegister(addr byte) (byte, error) {
	var data i2c.SMBusData
	if err := r.bus.Do(i2c.Read, addr, i2c.ByteData, &data); err != nil {
		return 0, err
	}
	return data[0], nil
}
