// Package mcp23x17 drives MCP23017/MCP23S17 GPIO expanders on top of a register transport.
// The 16 pins are organized in two banks with 8 pins each. Every bank keeps a cache of
// its registers and decides, based on its read and write modes, when the chip is accessed.
package mcp23x17

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Chip struct {
	registers RegisterSet
	banks     [NumBanks]*PinBank
	iocon     cacheEntry // Shared by both banks
	log       log.FieldLogger
}

// New does not access the chip. Until Reset() is called, registers are read from the chip on first use.
func New(transport RegisterTransport) *Chip {
	c := &Chip{
		registers: RegisterSet{Transport: transport},
		log:       log.StandardLogger(),
	}
	for i := range c.banks {
		c.banks[i] = newPinBank(c, Bank(i))
	}
	return c
}

func (c *Chip) SetLogger(logger log.FieldLogger) {
	c.log = logger
}

func (c *Chip) Transport() RegisterTransport {
	return c.registers.Transport
}

// Reset writes the power-on state to the chip, bypassing the write mode of the banks.
// Pending deferred writes are discarded. If the reset fails, all cached registers are
// forgotten and will be read from the chip again.
func (c *Chip) Reset(opts ResetOptions) error {
	c.invalidate()
	if err := c.registers.Reset(opts); err != nil {
		c.invalidate()
		return err
	}
	c.iocon = cacheEntry{value: opts.IOCON(), valid: true}
	for _, b := range c.banks {
		b.resetCache()
	}
	c.log.Debugf("MCP23x17 reset with IOCON %#02x", opts.IOCON())
	return nil
}

func (c *Chip) invalidate() {
	c.iocon = cacheEntry{}
	for _, b := range c.banks {
		b.invalidate()
	}
}

// Bank panics for invalid bank numbers, like indexing a slice.
func (c *Chip) Bank(b Bank) *PinBank {
	if !b.valid() {
		panic(fmt.Sprintf("Invalid MCP23x17 bank %v", b))
	}
	return c.banks[b]
}

func (c *Chip) Banks() []*PinBank {
	return c.banks[:]
}

func (c *Chip) Pin(b Bank, index int) *Pin {
	return c.Bank(b).Pin(index)
}

// PinByName parses datasheet names like GPA0 or GPB7 (case insensitive, GP prefix optional).
func (c *Chip) PinByName(name string) (*Pin, error) {
	n := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "GP")
	if len(n) != 2 {
		return nil, fmt.Errorf("Invalid MCP23x17 pin name '%v' (expected e.g. GPA0)", name)
	}
	var b Bank
	switch n[0] {
	case 'A':
		b = BankA
	case 'B':
		b = BankB
	default:
		return nil, fmt.Errorf("Invalid MCP23x17 bank in pin name '%v'", name)
	}
	index, err := strconv.Atoi(n[1:])
	if err != nil || index < 0 || index >= PinsPerBank {
		return nil, fmt.Errorf("Invalid MCP23x17 pin index in pin name '%v'", name)
	}
	return c.Pin(b, index), nil
}

// Read refreshes the live registers of both banks.
func (c *Chip) Read() error {
	for _, b := range c.banks {
		if err := b.Read(); err != nil {
			return err
		}
	}
	return nil
}

// Write flushes the deferred writes of both banks.
func (c *Chip) Write() error {
	for _, b := range c.banks {
		if err := b.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chip) SetReadMode(mode ReadMode) {
	for _, b := range c.banks {
		b.SetReadMode(mode)
	}
}

func (c *Chip) SetWriteMode(mode WriteMode) {
	for _, b := range c.banks {
		b.SetWriteMode(mode)
	}
}

// Config returns the IOCON register, which both banks share.
func (c *Chip) Config() (byte, error) {
	return c.banks[BankA].Register(IOCON)
}

func (c *Chip) SetConfig(val byte) error {
	return c.banks[BankA].SetRegister(IOCON, val)
}
