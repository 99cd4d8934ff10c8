package mcp23017

import (
	"errors"
	"testing"

	"github.com/antongulenko/portexpander/mcp23x17"
	"github.com/antongulenko/portexpander/mcp23x17/mcp23x17sim"
	"github.com/stretchr/testify/assert"
)

var errNoAck = errors.New("no ack")

// Forwards single register accesses to a simulated chip at one address
type simBus struct {
	addr byte
	chip *mcp23x17sim.Chip
	fail bool
}

func (b *simBus) check(addr byte) error {
	if b.fail || addr != b.addr {
		return errNoAck
	}
	return nil
}

func (b *simBus) I2cWrite(addr byte, data ...byte) error {
	if err := b.check(addr); err != nil {
		return err
	}
	for i, val := range data[1:] {
		if err := b.chip.WriteRegister(data[0]+byte(i), val); err != nil {
			return err
		}
	}
	return nil
}

func (b *simBus) I2cRead(addr byte, data []byte) error {
	return errors.New("not supported")
}

func (b *simBus) I2cWriteRead(addr byte, out, in []byte) error {
	return errors.New("not supported")
}

func (b *simBus) I2cGet(addr byte, registerAddr byte, size int) ([]byte, error) {
	if err := b.check(addr); err != nil {
		return nil, err
	}
	res := make([]byte, size)
	for i := range res {
		val, err := b.chip.ReadRegister(registerAddr + byte(i))
		if err != nil {
			return nil, err
		}
		res[i] = val
	}
	return res, nil
}

func TestAddressRange(t *testing.T) {
	a := assert.New(t)
	_, err := New(nil, 0x1F)
	a.Error(err)
	_, err = New(nil, 0x28)
	a.Error(err)
	r, err := New(nil, MAX_ADDRESS)
	a.NoError(err)
	a.Equal(MAX_ADDRESS, r.Addr)
}

func TestChipOverI2c(t *testing.T) {
	a := assert.New(t)
	sim := mcp23x17sim.New()
	sim.ConnectBanks()
	b := &simBus{addr: 0x21, chip: sim}
	regs, err := New(b, 0x21)
	a.NoError(err)

	chip := mcp23x17.New(regs)
	a.NoError(chip.Reset(mcp23x17.ResetOptions{}))
	out, in := chip.Pin(mcp23x17.BankA, 0), chip.Pin(mcp23x17.BankB, 0)
	a.NoError(out.Claim())
	a.NoError(in.Claim())
	a.NoError(out.SetDirection(mcp23x17.Out))
	a.NoError(out.SetValue(true))
	val, err := in.Value()
	a.NoError(err)
	a.True(val)

	all, err := regs.ReadAll()
	a.NoError(err)
	a.Len(all, 22)
	a.Equal(byte(0xFE), all[mcp23x17.Address(mcp23x17.BankA, mcp23x17.IODIR)])
	a.Equal(byte(0x01), all[mcp23x17.Address(mcp23x17.BankA, mcp23x17.OLAT)])

	b.fail = true
	a.Equal(errNoAck, out.SetValue(false))
	_, err = regs.ReadRegister(0)
	a.Equal(errNoAck, err)
}
