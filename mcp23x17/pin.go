package mcp23x17

import (
	"fmt"

	"github.com/pkg/errors"
)

type Direction int

const (
	In  = Direction(iota) // IODIR bit set
	Out                   // IODIR bit cleared
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

type Pull int

const (
	PullNone = Pull(iota)
	PullUp
	PullDown // Not available on the MCP23x17
)

// Pin is one bit position within a bank. All attributes of the pin are views into the
// register cache of the bank. A pin must be claimed before it can be used.
type Pin struct {
	bank    *PinBank
	index   int
	claimed bool
}

func (p *Pin) Bank() *PinBank {
	return p.bank
}

func (p *Pin) Index() int {
	return p.index
}

// String returns the name of the pin as printed in the datasheet, e.g. GPA3
func (p *Pin) String() string {
	return fmt.Sprintf("GP%v%v", p.bank.index, p.index)
}

func (p *Pin) Claim() error {
	if p.claimed {
		return errors.Wrapf(ErrPinClaimed, "MCP23x17 %v", p)
	}
	p.claimed = true
	return nil
}

// Release only gives up ownership, the configuration of the pin stays unchanged.
func (p *Pin) Release() {
	p.claimed = false
}

func (p *Pin) Claimed() bool {
	return p.claimed
}

// With claims the pin for the duration of fn and releases it afterwards,
// also when fn fails or panics.
func (p *Pin) With(fn func(p *Pin) error) error {
	if err := p.Claim(); err != nil {
		return err
	}
	defer p.Release()
	return fn(p)
}

func (p *Pin) bit(reg Register) (bool, error) {
	if !p.claimed {
		return false, errors.Wrapf(ErrPinNotClaimed, "MCP23x17 %v", p)
	}
	return p.bank.Bit(reg, p.index)
}

func (p *Pin) setBit(reg Register, value bool) error {
	if !p.claimed {
		return errors.Wrapf(ErrPinNotClaimed, "MCP23x17 %v", p)
	}
	return p.bank.SetBit(reg, p.index, value)
}

func (p *Pin) Direction() (Direction, error) {
	in, err := p.bit(IODIR)
	if err != nil || in {
		return In, err
	}
	return Out, nil
}

func (p *Pin) SetDirection(dir Direction) error {
	switch dir {
	case In, Out:
		return p.setBit(IODIR, dir == In)
	default:
		return errors.Errorf("Invalid direction for MCP23x17 %v: %v", p, dir)
	}
}

// Value returns the input state for input pins (GPIO) and the output latch for output pins (OLAT).
func (p *Pin) Value() (bool, error) {
	dir, err := p.Direction()
	if err != nil {
		return false, err
	}
	if dir == Out {
		return p.bit(OLAT)
	}
	return p.bit(GPIO)
}

// SetValue always writes the output latch, GPIO is only updated in the cache.
// The value takes effect once the pin is an output.
func (p *Pin) SetValue(value bool) error {
	return p.setBit(OLAT, value)
}

func (p *Pin) PullUp() (bool, error) {
	return p.bit(GPPU)
}

func (p *Pin) SetPullUp(enabled bool) error {
	return p.setBit(GPPU, enabled)
}

func (p *Pin) Pull() (Pull, error) {
	up, err := p.PullUp()
	if err != nil || !up {
		return PullNone, err
	}
	return PullUp, nil
}

func (p *Pin) SetPull(pull Pull) error {
	switch pull {
	case PullNone:
		return p.SetPullUp(false)
	case PullUp:
		return p.SetPullUp(true)
	case PullDown:
		return errors.Wrapf(ErrPullDownUnsupported, "MCP23x17 %v", p)
	default:
		return errors.Errorf("Invalid pull resistor setting for MCP23x17 %v: %v", p, pull)
	}
}

// Inverted pins report the inverse of their input level in GPIO (IPOL)
func (p *Pin) Inverted() (bool, error) {
	return p.bit(IPOL)
}

func (p *Pin) SetInverted(inverted bool) error {
	return p.setBit(IPOL, inverted)
}

// InterruptOnChange enables an interrupt for every change of the input level.
func (p *Pin) InterruptOnChange() error {
	if err := p.setBit(INTCON, false); err != nil {
		return err
	}
	return p.enableInterrupt()
}

// InterruptWhen enables an interrupt when the input changes to the given value.
// The chip compares against DEFVAL and fires on a mismatch, so DEFVAL holds the opposite value.
func (p *Pin) InterruptWhen(value bool) error {
	if err := p.setBit(INTCON, true); err != nil {
		return err
	}
	if err := p.setBit(DEFVAL, !value); err != nil {
		return err
	}
	return p.enableInterrupt()
}

func (p *Pin) DisableInterrupts() error {
	return p.setBit(GPINTEN, false)
}

func (p *Pin) InterruptEnabled() (bool, error) {
	return p.bit(GPINTEN)
}

// Interrupt returns the pin state captured with the last interrupt (INTCAP).
// In deferred read mode, the bank must be read first.
func (p *Pin) Interrupt() (bool, error) {
	return p.bit(INTCAP)
}

// InterruptFlag tells whether this pin caused the last interrupt (INTF).
func (p *Pin) InterruptFlag() (bool, error) {
	return p.bit(INTF)
}

func (p *Pin) enableInterrupt() error {
	if err := p.setBit(GPINTEN, true); err != nil {
		return err
	}
	p.bank.warnInterruptHazard(p)
	return nil
}
