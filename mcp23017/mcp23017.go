// Package mcp23017 transfers MCP23x17 registers over I2C, one register per bus transaction.
package mcp23017

import (
	"github.com/antongulenko/portexpander/bus"
	"github.com/antongulenko/portexpander/mcp23x17"
	"github.com/pkg/errors"
)

const (
	ADDRESS     = byte(0x20) // 0010 0000
	MAX_ADDRESS = byte(0x27) // 0010 0111
)

type Registers struct {
	Bus  bus.I2cBus
	Addr byte
}

func New(b bus.I2cBus, addr byte) (*Registers, error) {
	if addr < ADDRESS || addr > MAX_ADDRESS {
		return nil, errors.Errorf("Invalid MCP23017 I2C address %#02x (expected %#02x..%#02x)", addr, ADDRESS, MAX_ADDRESS)
	}
	return &Registers{Bus: b, Addr: addr}, nil
}

func (r *Registers) WriteRegister(addr byte, val byte) error {
	return r.Bus.I2cWrite(r.Addr, addr, val)
}

func (r *Registers) ReadRegister(addr byte) (byte, error) {
	res, err := r.Bus.I2cGet(r.Addr, addr, 1)
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, errors.Errorf("MCP23017 %#02x: received %v byte instead of 1", r.Addr, len(res))
	}
	return res[0], nil
}

// ReadAll reads all registers in one sequential transaction. This requires IOCON.SEQOP to be cleared (the default).
func (r *Registers) ReadAll() ([]byte, error) {
	return r.Bus.I2cGet(r.Addr, 0, int(mcp23x17.MaxAddress)+1)
}
