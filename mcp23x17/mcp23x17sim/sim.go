// Package mcp23x17sim is a software model of the MCP23x17 registers, usable as
// mcp23x17.RegisterTransport without hardware. Pins can be driven from outside or
// wired to output pins of the simulated chip.
package mcp23x17sim

import (
	"fmt"
	"sync"

	"github.com/antongulenko/portexpander/mcp23x17"
	log "github.com/sirupsen/logrus"
)

const numAddresses = int(mcp23x17.MaxAddress) + 1

type Access struct {
	Addr  byte
	Value byte
}

func (a Access) String() string {
	bank, reg, err := mcp23x17.RegisterAt(a.Addr)
	if err != nil {
		return fmt.Sprintf("%#02x = %#02x", a.Addr, a.Value)
	}
	return fmt.Sprintf("%v%v = %#02x", reg, bank, a.Value)
}

type PinID struct {
	Bank  mcp23x17.Bank
	Index int
}

type link struct {
	from, to PinID
}

type Chip struct {
	mu sync.Mutex

	regs   [numAddresses]byte
	inputs [mcp23x17.NumBanks]byte // Levels applied to the pins from outside
	last   [mcp23x17.NumBanks]byte // Logical pin levels seen by the interrupt logic
	links  []link

	writes   []Access
	reads    []byte
	failNext error

	Dummy bool // Log all register accesses
}

// New returns a chip in power-on state.
func New() *Chip {
	c := new(Chip)
	c.PowerOn()
	return c
}

func (c *Chip) PowerOn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs = [numAddresses]byte{}
	for bank := mcp23x17.BankA; int(bank) < mcp23x17.NumBanks; bank++ {
		c.regs[mcp23x17.Address(bank, mcp23x17.IODIR)] = mcp23x17.INPUT
		c.last[bank] = c.logicalLevels(bank)
	}
}

// Connect wires an output pin to an input pin, like a loopback cable.
func (c *Chip) Connect(from, to PinID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link{from: from, to: to})
	c.updateInterrupts()
}

// ConnectBanks wires every pin of bank A to the pin with the same index in bank B.
// Either side can act as output.
func (c *Chip) ConnectBanks() {
	for i := 0; i < mcp23x17.PinsPerBank; i++ {
		a := PinID{mcp23x17.BankA, i}
		b := PinID{mcp23x17.BankB, i}
		c.Connect(a, b)
		c.Connect(b, a)
	}
}

// FailNext makes the next register access return the given error.
func (c *Chip) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

func (c *Chip) WriteRegister(addr byte, val byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.access(addr); err != nil {
		return err
	}
	c.writes = append(c.writes, Access{Addr: addr, Value: val})
	if c.Dummy {
		log.Printf("MCP23x17 simulation: write %v", Access{Addr: addr, Value: val})
	}
	bank, reg, _ := mcp23x17.RegisterAt(addr)
	switch reg {
	case mcp23x17.IOCON:
		c.regs[mcp23x17.Address(mcp23x17.BankA, reg)] = val
		c.regs[mcp23x17.Address(mcp23x17.BankA, reg)+1] = val
	case mcp23x17.GPIO:
		c.regs[mcp23x17.Address(bank, mcp23x17.OLAT)] = val
	case mcp23x17.INTF, mcp23x17.INTCAP:
		// Read only
	default:
		c.regs[addr] = val
	}
	c.updateInterrupts()
	return nil
}

func (c *Chip) ReadRegister(addr byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.access(addr); err != nil {
		return 0, err
	}
	c.reads = append(c.reads, addr)
	bank, reg, _ := mcp23x17.RegisterAt(addr)
	var val byte
	switch reg {
	case mcp23x17.GPIO:
		val = c.gpio(bank)
		c.clearInterrupt(bank)
	case mcp23x17.INTCAP:
		val = c.regs[addr]
		c.clearInterrupt(bank)
	default:
		val = c.regs[addr]
	}
	if c.Dummy {
		log.Printf("MCP23x17 simulation: read %v", Access{Addr: addr, Value: val})
	}
	return val, nil
}

func (c *Chip) access(addr byte) error {
	if err := c.failNext; err != nil {
		c.failNext = nil
		return err
	}
	if int(addr) >= numAddresses {
		return fmt.Errorf("MCP23x17 simulation: register address %#02x out of range", addr)
	}
	return nil
}

// SetInputs sets the levels applied to the pins of a bank from outside.
// Only pins configured as input and not wired to an output are affected.
func (c *Chip) SetInputs(bank mcp23x17.Bank, levels byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs[bank] = levels
	c.updateInterrupts()
}

// SetRegister modifies a register without any side effects and without recording a write.
func (c *Chip) SetRegister(bank mcp23x17.Bank, reg mcp23x17.Register, val byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := mcp23x17.Address(bank, reg)
	c.regs[addr] = val
	if reg == mcp23x17.IOCON {
		c.regs[addr+1] = val
	}
}

// Capture simulates an interrupt that latched the given flags and pin state.
func (c *Chip) Capture(bank mcp23x17.Bank, flags byte, state byte) {
	c.SetRegister(bank, mcp23x17.INTF, flags)
	c.SetRegister(bank, mcp23x17.INTCAP, state)
}

// RegisterValue returns a register without side effects. For GPIO, the current pin state is returned.
func (c *Chip) RegisterValue(bank mcp23x17.Bank, reg mcp23x17.Register) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reg == mcp23x17.GPIO {
		return c.gpio(bank)
	}
	return c.regs[mcp23x17.Address(bank, reg)]
}

func (c *Chip) RegisterBit(bank mcp23x17.Bank, reg mcp23x17.Register, index int) bool {
	return c.RegisterValue(bank, reg)&(1<<uint(index)) != 0
}

// InterruptActive returns the logical state of the INT line of the bank, taking IOCON.MIRROR into account.
func (c *Chip) InterruptActive(bank mcp23x17.Bank) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intf(bank) != 0 {
		return true
	}
	if c.regs[mcp23x17.Address(mcp23x17.BankA, mcp23x17.IOCON)]&mcp23x17.IOCON_BIT_MIRROR != 0 {
		return c.intf(1-bank) != 0
	}
	return false
}

func (c *Chip) Writes() []Access {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Access(nil), c.writes...)
}

// WritesTo returns the values written to one register, in order.
func (c *Chip) WritesTo(bank mcp23x17.Bank, reg mcp23x17.Register) []byte {
	addr := mcp23x17.Address(bank, reg)
	var res []byte
	for _, w := range c.Writes() {
		if w.Addr == addr {
			res = append(res, w.Value)
		}
	}
	return res
}

func (c *Chip) Reads() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.reads...)
}

func (c *Chip) ClearWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = nil
	c.reads = nil
}

func (c *Chip) reg(bank mcp23x17.Bank, reg mcp23x17.Register) byte {
	return c.regs[mcp23x17.Address(bank, reg)]
}

func (c *Chip) intf(bank mcp23x17.Bank) byte {
	return c.reg(bank, mcp23x17.INTF)
}

// Electrical level of every pin: outputs drive their latch, wired inputs follow their source.
func (c *Chip) levels(bank mcp23x17.Bank) byte {
	iodir := c.reg(bank, mcp23x17.IODIR)
	levels := (c.inputs[bank] & iodir) | (c.reg(bank, mcp23x17.OLAT) &^ iodir)
	for _, l := range c.links {
		if l.to.Bank != bank || iodir&(1<<uint(l.to.Index)) == 0 {
			continue
		}
		if c.reg(l.from.Bank, mcp23x17.IODIR)&(1<<uint(l.from.Index)) != 0 {
			continue // Source is not driving
		}
		mask := byte(1 << uint(l.to.Index))
		levels &^= mask
		if c.reg(l.from.Bank, mcp23x17.OLAT)&(1<<uint(l.from.Index)) != 0 {
			levels |= mask
		}
	}
	return levels
}

// Levels as reported in GPIO: IPOL inverts input pins.
func (c *Chip) logicalLevels(bank mcp23x17.Bank) byte {
	return c.levels(bank) ^ (c.reg(bank, mcp23x17.IPOL) & c.reg(bank, mcp23x17.IODIR))
}

func (c *Chip) gpio(bank mcp23x17.Bank) byte {
	iodir := c.reg(bank, mcp23x17.IODIR)
	return (c.logicalLevels(bank) & iodir) | (c.reg(bank, mcp23x17.OLAT) &^ iodir)
}

func (c *Chip) clearInterrupt(bank mcp23x17.Bank) {
	c.regs[mcp23x17.Address(bank, mcp23x17.INTF)] = 0
}

func (c *Chip) updateInterrupts() {
	for bank := mcp23x17.BankA; int(bank) < mcp23x17.NumBanks; bank++ {
		levels := c.logicalLevels(bank)
		changed := levels ^ c.last[bank]
		c.last[bank] = levels

		intcon := c.reg(bank, mcp23x17.INTCON)
		compare := levels ^ c.reg(bank, mcp23x17.DEFVAL)
		trigger := c.reg(bank, mcp23x17.GPINTEN) & c.reg(bank, mcp23x17.IODIR) &
			((changed &^ intcon) | (compare & intcon))
		if trigger != 0 && c.intf(bank) == 0 {
			c.regs[mcp23x17.Address(bank, mcp23x17.INTF)] = trigger
			c.regs[mcp23x17.Address(bank, mcp23x17.INTCAP)] = c.gpio(bank)
		}
	}
}
