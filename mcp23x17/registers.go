package mcp23x17

import "fmt"

// Default bits all zero, except IODIR

// ============== General IO configuration
// IODIR: 0: output, 1: input
// IPOL: 1: GPIO reflects inverted value of the pin
// GPIO: Reading reads pin values. Writing modifies to OLAT.
// OLAT: Output values ("latches")
// GPPU: 1: enable internal pull-up for input pins (100 kOhm)

// ============== Interrupt configuration
// GPINTEN: 1: enable interrupt-on-change. Pins must also be input.
// DEFVAL: opposite value on input pin will cause interrupt (if INTCON is set)
// INTCON: for interrupt: 0: pins compared to previous value 1: pins compared to DEFVAL
// INTF: (read only) interrupt flags. Cleared when INTCAP or GPIO is read.
// INTCAP: (read only) state of pins when interrupt occurs. Remains unchanged until read (or GPIO is read)

// Register is one of the 11 register kinds present in each bank.
// The order matches the paired addressing mode (IOCON.BANK = 0, the power-on default).
type Register byte

const (
	IODIR = Register(iota)
	IPOL
	GPINTEN
	DEFVAL
	INTCON
	IOCON // Single physical register, visible in both banks
	GPPU
	INTF
	INTCAP
	GPIO
	OLAT

	RegisterCount = int(iota)
)

var registerNames = [RegisterCount]string{
	"IODIR", "IPOL", "GPINTEN", "DEFVAL", "INTCON", "IOCON", "GPPU", "INTF", "INTCAP", "GPIO", "OLAT",
}

func (r Register) String() string {
	if !r.valid() {
		return fmt.Sprintf("Register(%d)", byte(r))
	}
	return registerNames[r]
}

func (r Register) valid() bool {
	return int(r) < RegisterCount
}

// Live registers can change because of the pins or of reads, independent of what was written.
func (r Register) Live() bool {
	return r == GPIO || r == INTF || r == INTCAP
}

// Read only registers are never written during a flush
func (r Register) ReadOnly() bool {
	return r == INTF || r == INTCAP
}

type Bank int

const (
	BankA = Bank(iota)
	BankB

	NumBanks    = int(iota)
	PinsPerBank = 8
)

func (b Bank) String() string {
	switch b {
	case BankA:
		return "A"
	case BankB:
		return "B"
	default:
		return fmt.Sprintf("Bank(%d)", int(b))
	}
}

func (b Bank) valid() bool {
	return b == BankA || b == BankB
}

const (
	_                = byte(1 << iota)
	IOCON_BIT_INTPOL // 1: INT pins active-high 0: INT pins active-low
	IOCON_BIT_ODR    // (overrides INTPOL) 1: INT pins are open-drain 0: active output (INTPOL sets polarity)
	IOCON_BIT_HAEN   // Enable hardware address pins (MCP23S17 only)
	IOCON_BIT_DISSLW // 0: slew rate control for SDA output enabled 1: disabled
	IOCON_BIT_SEQOP  // 0: sequential operation enabled 1: disabled (address stays after read/write)
	IOCON_BIT_MIRROR // 0: INT pins not mirrored 1: INT pins mirrored (both high if one is high)
	IOCON_BIT_BANK   // 1: registers grouped in banks 0: registers paired
)

const (
	// Values for IODIR registers
	INPUT  = byte(0xFF)
	OUTPUT = byte(0x00)

	MaxAddress = byte(2*RegisterCount - 1)
)

// Address returns the physical register address in paired mode: kind*2 + bank.
// Both aliases of IOCON resolve to the bank A address.
func Address(bank Bank, reg Register) byte {
	if reg == IOCON {
		bank = BankA
	}
	return byte(reg)*2 + byte(bank)
}

// RegisterAt is the reverse of Address. The bank B alias of IOCON is reported as bank B.
func RegisterAt(addr byte) (Bank, Register, error) {
	if addr > MaxAddress {
		return 0, 0, fmt.Errorf("Register address %#02x out of range (max %#02x)", addr, MaxAddress)
	}
	return Bank(addr % 2), Register(addr / 2), nil
}

func ResetValue(reg Register) byte {
	if reg == IODIR {
		return INPUT
	}
	return 0
}

type ResetOptions struct {
	InterruptPolarity  bool // INT pins active-high
	InterruptOpenDrain bool
	InterruptMirror    bool
}

func (o ResetOptions) IOCON() (val byte) {
	if o.InterruptPolarity {
		val |= IOCON_BIT_INTPOL
	}
	if o.InterruptOpenDrain {
		val |= IOCON_BIT_ODR
	}
	if o.InterruptMirror {
		val |= IOCON_BIT_MIRROR
	}
	return
}

// RegisterSet performs physical register access in terms of bank and register kind.
type RegisterSet struct {
	Transport RegisterTransport
}

func (s *RegisterSet) Write(bank Bank, reg Register, val byte) error {
	return s.Transport.WriteRegister(Address(bank, reg), val)
}

func (s *RegisterSet) Read(bank Bank, reg Register) (byte, error) {
	return s.Transport.ReadRegister(Address(bank, reg))
}

// Reset writes the power-on values of all registers. IOCON goes first and is written only
// once, since later registers depend on it and both banks share it.
func (s *RegisterSet) Reset(opts ResetOptions) error {
	if err := s.Write(BankA, IOCON, opts.IOCON()); err != nil {
		return err
	}
	for reg := Register(0); int(reg) < RegisterCount; reg++ {
		if reg == IOCON {
			continue
		}
		val := ResetValue(reg)
		for bank := BankA; int(bank) < NumBanks; bank++ {
			if err := s.Write(bank, reg, val); err != nil {
				return err
			}
		}
	}
	return nil
}
