// Package mcp23s17 transfers MCP23x17 registers over SPI.
//
// Every transfer starts with the control byte 0100 A2 A1 A0 RW, followed by the register address.
// The hardware address bits are only evaluated by the chip when IOCON.HAEN is set.
package mcp23s17

import (
	"github.com/antongulenko/portexpander/mcp23x17"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

const (
	OPCODE      = byte(0x40)
	OPCODE_READ = byte(0x01)

	MAX_HARDWARE_ADDRESS = byte(7)

	DefaultFrequency = 10 * physic.MegaHertz
)

type Registers struct {
	Conn         conn.Conn
	HardwareAddr byte
}

func New(c conn.Conn, hardwareAddr byte) (*Registers, error) {
	if hardwareAddr > MAX_HARDWARE_ADDRESS {
		return nil, errors.Errorf("Invalid MCP23S17 hardware address %v (expected 0..%v)", hardwareAddr, MAX_HARDWARE_ADDRESS)
	}
	return &Registers{Conn: c, HardwareAddr: hardwareAddr}, nil
}

// Open connects to an SPI port registered in spireg, e.g. /dev/spidev0.0. The port must be closed by the caller.
// A zero frequency selects DefaultFrequency.
func Open(port string, freq physic.Frequency, hardwareAddr byte) (*Registers, spi.PortCloser, error) {
	p, err := spireg.Open(port)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Failed to open SPI port '%v'", port)
	}
	if freq == 0 {
		freq = DefaultFrequency
	}
	c, err := p.Connect(freq, spi.Mode0, 8)
	if err == nil {
		var r *Registers
		r, err = New(c, hardwareAddr)
		if err == nil {
			return r, p, nil
		}
	}
	_ = p.Close()
	return nil, nil, errors.Wrapf(err, "Failed to connect to SPI port %v", p)
}

func (r *Registers) String() string {
	return r.Conn.String()
}

func (r *Registers) opcode(read bool) byte {
	op := OPCODE | r.HardwareAddr<<1
	if read {
		op |= OPCODE_READ
	}
	return op
}

func (r *Registers) WriteRegister(addr byte, val byte) error {
	w := []byte{r.opcode(false), addr, val}
	return r.Conn.Tx(w, make([]byte, len(w)))
}

func (r *Registers) ReadRegister(addr byte) (byte, error) {
	res, err := r.read(addr, 1)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

// ReadAll reads all registers in one sequential transfer. This requires IOCON.SEQOP to be cleared (the default).
func (r *Registers) ReadAll() ([]byte, error) {
	return r.read(0, int(mcp23x17.MaxAddress)+1)
}

func (r *Registers) read(addr byte, size int) ([]byte, error) {
	w := make([]byte, 2+size)
	w[0], w[1] = r.opcode(true), addr
	rd := make([]byte, len(w))
	if err := r.Conn.Tx(w, rd); err != nil {
		return nil, err
	}
	return rd[2:], nil
}
