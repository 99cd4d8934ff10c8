package expander

import (
	"errors"
	"testing"
	"time"

	"github.com/antongulenko/portexpander/mcp23017"
	"github.com/antongulenko/portexpander/mcp23x17"
	"github.com/antongulenko/portexpander/mcp23x17/mcp23x17sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyExpander(t *testing.T) {
	a := assert.New(t)
	e := DefaultExpander
	e.Dummy = true
	require.NoError(t, e.Setup())
	defer e.Cleanup()
	a.NotNil(e.Sim())
	a.Nil(e.Bus())

	chip := e.Chip()
	out, in := chip.Pin(mcp23x17.BankA, 2), chip.Pin(mcp23x17.BankB, 2)
	a.NoError(out.Claim())
	a.NoError(in.Claim())
	in.Bank().SetReadMode(mcp23x17.DeferredRead)
	a.NoError(out.SetDirection(mcp23x17.Out))
	a.NoError(in.InterruptOnChange())

	active, err := e.WaitForInterrupt(0)
	a.NoError(err)
	a.False(active)

	a.NoError(out.SetValue(true))
	active, err = e.WaitForInterrupt(10 * time.Millisecond)
	a.NoError(err)
	a.True(active)

	a.NoError(in.Bank().Read())
	val, err := in.Interrupt()
	a.NoError(err)
	a.True(val)
	active, err = e.WaitForInterrupt(2 * time.Millisecond)
	a.NoError(err)
	a.False(active)

	regs, err := e.Registers()
	a.NoError(err)
	a.Len(regs, 22)
	a.Equal(byte(0xFB), regs[mcp23x17.Address(mcp23x17.BankA, mcp23x17.IODIR)])
	a.Equal(byte(0x04), regs[mcp23x17.Address(mcp23x17.BankB, mcp23x17.GPIO)])
}

func TestDummyExpanderResetOptions(t *testing.T) {
	a := assert.New(t)
	e := DefaultExpander
	e.Dummy = true
	e.Reset = mcp23x17.ResetOptions{InterruptMirror: true}
	require.NoError(t, e.Setup())
	defer e.Cleanup()
	config, err := e.Chip().Config()
	a.NoError(err)
	a.Equal(mcp23x17.IOCON_BIT_MIRROR, config)
	a.True(e.Sim().RegisterBit(mcp23x17.BankA, mcp23x17.IOCON, 6))
}

func TestUnknownTransport(t *testing.T) {
	a := assert.New(t)
	e := DefaultExpander
	e.Transport = "usb-serial"
	a.Error(e.Setup())
	a.Nil(e.Chip())
}

func TestMissingFt260(t *testing.T) {
	a := assert.New(t)
	e := DefaultExpander
	e.UsbDevice = "/no/such/hidraw"
	a.Error(e.Setup())
	a.Nil(e.Chip())
	a.False(e.hidReady, "HID library must be shut down after a failed setup")
	a.Empty(e.closers)
}

func TestNoInterruptPin(t *testing.T) {
	a := assert.New(t)
	var e Expander
	_, err := e.WaitForInterrupt(time.Millisecond)
	a.Error(err)
}

// I2C bus with a simulated MCP23017 at the default address
type simI2c struct {
	chip *mcp23x17sim.Chip
}

func (b *simI2c) I2cWrite(addr byte, data ...byte) error {
	if addr != mcp23017.ADDRESS {
		return errors.New("no ack")
	}
	for i, val := range data[1:] {
		if err := b.chip.WriteRegister(data[0]+byte(i), val); err != nil {
			return err
		}
	}
	return nil
}

func (b *simI2c) I2cRead(addr byte, data []byte) error {
	return errors.New("register pointer not supported")
}

func (b *simI2c) I2cWriteRead(addr byte, out, in []byte) error {
	return errors.New("register pointer not supported")
}

func (b *simI2c) I2cGet(addr byte, registerAddr byte, size int) ([]byte, error) {
	if addr != mcp23017.ADDRESS {
		return nil, errors.New("no ack")
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

func TestI2cTransport(t *testing.T) {
	a := assert.New(t)
	for _, sequencer := range []bool{true, false} {
		e := DefaultExpander
		e.TraceI2c = true
		e.NoI2cSequencer = !sequencer
		sim := mcp23x17sim.New()
		transport, err := e.openI2c(&simI2c{chip: sim})
		require.NoError(t, err)
		a.NotNil(e.Bus())
		a.Equal(sequencer, e.sequencer != nil)

		e.chip = mcp23x17.New(transport)
		a.NoError(e.chip.Reset(mcp23x17.ResetOptions{}))
		p := e.chip.Pin(mcp23x17.BankB, 5)
		a.NoError(p.Claim())
		a.NoError(p.SetDirection(mcp23x17.Out))
		a.NoError(p.SetValue(true))
		a.True(sim.RegisterBit(mcp23x17.BankB, mcp23x17.OLAT, 5))

		regs, err := e.Registers()
		a.NoError(err)
		a.Len(regs, 22)
		a.Equal(byte(0xDF), regs[mcp23x17.Address(mcp23x17.BankB, mcp23x17.IODIR)])
		e.Cleanup()
	}
}
