// Package bus defines the I2C master operations used by the register transports,
// together with implementations that do not depend on a specific adapter.
package bus

import (
	"encoding/hex"

	log "github.com/sirupsen/logrus"
)

const (
	// Addresses outside this range are reserved by the I2C specification
	MinScanAddress = byte(0x08)
	MaxScanAddress = byte(0x77)
)

type I2cBus interface {
	I2cWrite(addr byte, data ...byte) error
	I2cRead(addr byte, data []byte) error
	I2cWriteRead(addr byte, out, in []byte) error
	I2cGet(addr byte, registerAddr byte, size int) ([]byte, error)
}

// Scan probes every non-reserved address with a one byte read and returns the addresses that answered.
func Scan(bus I2cBus) ([]byte, error) {
	var res []byte
	buf := make([]byte, 1)
	for addr := MinScanAddress; addr <= MaxScanAddress; addr++ {
		if err := bus.I2cRead(addr, buf); err != nil {
			log.Debugf("I2C scan: no answer from %#02x: %v", addr, err)
			continue
		}
		res = append(res, addr)
	}
	return res, nil
}

// Trace logs all operations before passing them on to Bus. Without Bus the operations
// are only logged and reads return zeros.
type Trace struct {
	Bus I2cBus
}

func (t *Trace) I2cWrite(addr byte, data ...byte) error {
	log.Printf("I2C write to %#02x: %v", addr, hex.EncodeToString(data))
	if t.Bus == nil {
		return nil
	}
	return t.Bus.I2cWrite(addr, data...)
}

func (t *Trace) I2cRead(addr byte, data []byte) error {
	var err error
	if t.Bus == nil {
		for i := range data {
			data[i] = 0
		}
	} else {
		err = t.Bus.I2cRead(addr, data)
	}
	t.logRead(addr, data, err)
	return err
}

func (t *Trace) I2cWriteRead(addr byte, out, in []byte) error {
	if t.Bus == nil {
		if err := t.I2cWrite(addr, out...); err != nil {
			return err
		}
		return t.I2cRead(addr, in)
	}
	log.Printf("I2C write to %#02x: %v", addr, hex.EncodeToString(out))
	err := t.Bus.I2cWriteRead(addr, out, in)
	t.logRead(addr, in, err)
	return err
}

func (t *Trace) I2cGet(addr byte, registerAddr byte, size int) ([]byte, error) {
	if t.Bus == nil {
		res := make([]byte, size)
		return res, t.I2cWriteRead(addr, []byte{registerAddr}, res)
	}
	res, err := t.Bus.I2cGet(addr, registerAddr, size)
	if err != nil {
		log.Printf("I2C read of register %#02x from %#02x failed: %v", registerAddr, addr, err)
	} else {
		log.Printf("I2C read of register %#02x from %#02x: %v", registerAddr, addr, hex.EncodeToString(res))
	}
	return res, err
}

func (t *Trace) logRead(addr byte, data []byte, err error) {
	if err != nil {
		log.Printf("I2C read of %v byte from %#02x failed: %v", len(data), addr, err)
	} else {
		log.Printf("I2C read from %#02x: %v", addr, hex.EncodeToString(data))
	}
}
