package mcp23x17

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressing(t *testing.T) {
	a := assert.New(t)
	for reg := Register(0); int(reg) < RegisterCount; reg++ {
		for bank := BankA; int(bank) < NumBanks; bank++ {
			addr := Address(bank, reg)
			if reg == IOCON {
				a.Equal(byte(0x0A), addr, "IOCON alias in bank %v", bank)
				continue
			}
			a.Equal(byte(reg)*2+byte(bank), addr, "%v%v", reg, bank)

			resBank, resReg, err := RegisterAt(addr)
			a.NoError(err)
			a.Equal(bank, resBank)
			a.Equal(reg, resReg)
		}
	}

	// Values known from the datasheet
	a.Equal(byte(0x01), Address(BankB, IODIR))
	a.Equal(byte(0x12), Address(BankA, GPIO))
	a.Equal(byte(0x13), Address(BankB, GPIO))
	a.Equal(byte(0x15), Address(BankB, OLAT))

	bank, reg, err := RegisterAt(0x0B)
	a.NoError(err)
	a.Equal(BankB, bank)
	a.Equal(IOCON, reg)

	_, _, err = RegisterAt(22)
	a.Error(err)
}

func TestRegisterNames(t *testing.T) {
	a := assert.New(t)
	a.Equal("IODIR", IODIR.String())
	a.Equal("OLAT", OLAT.String())
	a.Equal("Register(11)", Register(11).String())
	a.True(GPIO.Live())
	a.True(INTCAP.Live())
	a.False(OLAT.Live())
	a.True(INTF.ReadOnly())
	a.False(GPIO.ReadOnly())
}

func TestResetOptions(t *testing.T) {
	a := assert.New(t)
	a.Equal(byte(0), ResetOptions{}.IOCON())
	a.Equal(IOCON_BIT_INTPOL, ResetOptions{InterruptPolarity: true}.IOCON())
	a.Equal(IOCON_BIT_ODR|IOCON_BIT_MIRROR, ResetOptions{InterruptOpenDrain: true, InterruptMirror: true}.IOCON())
	a.Equal(byte(0x02), IOCON_BIT_INTPOL)
	a.Equal(byte(0x40), IOCON_BIT_MIRROR)
}

type recordingTransport struct {
	writes  []byte
	values  []byte
	failAt  int
	failErr error
}

func (r *recordingTransport) WriteRegister(addr byte, val byte) error {
	if r.failErr != nil && len(r.writes) == r.failAt {
		return r.failErr
	}
	r.writes = append(r.writes, addr)
	r.values = append(r.values, val)
	return nil
}

func (r *recordingTransport) ReadRegister(addr byte) (byte, error) {
	return 0, nil
}

func TestRegisterSetReset(t *testing.T) {
	a := assert.New(t)
	tr := new(recordingTransport)
	set := RegisterSet{Transport: tr}
	a.NoError(set.Reset(ResetOptions{InterruptMirror: true}))

	a.Len(tr.writes, 21)
	a.Equal(byte(0x0A), tr.writes[0], "IOCON must be written first")
	a.Equal(IOCON_BIT_MIRROR, tr.values[0])
	a.Equal([]byte{0x00, 0x01}, tr.writes[1:3])
	a.Equal([]byte{0xFF, 0xFF}, tr.values[1:3], "IODIR resets to input")
	for i, addr := range tr.writes[1:] {
		a.NotEqual(byte(0x0A), addr, "write %v", i)
		a.NotEqual(byte(0x0B), addr, "write %v", i)
	}
	for _, val := range tr.values[3:] {
		a.Equal(byte(0), val)
	}
}

func TestRegisterSetResetFailure(t *testing.T) {
	a := assert.New(t)
	busErr := errors.New("no ack")
	tr := &recordingTransport{failAt: 5, failErr: busErr}
	set := RegisterSet{Transport: tr}
	a.Equal(busErr, set.Reset(ResetOptions{}))
	a.Len(tr.writes, 5)
}
