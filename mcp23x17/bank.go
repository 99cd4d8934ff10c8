package mcp23x17

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type ReadMode int

const (
	// Every read of a live register (GPIO, INTF, INTCAP) fetches it from the chip first
	ImmediateRead = ReadMode(iota)

	// Reads only consult the cache. PinBank.Read() refreshes the live registers.
	DeferredRead
)

func (m ReadMode) String() string {
	switch m {
	case ImmediateRead:
		return "immediate"
	case DeferredRead:
		return "deferred"
	default:
		return fmt.Sprintf("ReadMode(%d)", int(m))
	}
}

type WriteMode int

const (
	// Every modification is sent to the chip right away
	ImmediateWrite = WriteMode(iota)

	// Modifications only change the cache. PinBank.Write() sends every modified register once.
	DeferredWrite
)

func (m WriteMode) String() string {
	switch m {
	case ImmediateWrite:
		return "immediate"
	case DeferredWrite:
		return "deferred"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// The live registers, in the order they are fetched by PinBank.Read().
// INTCAP must be read before GPIO, because reading GPIO clears the capture.
var liveRegisters = []Register{INTF, INTCAP, GPIO}

type cacheEntry struct {
	value   byte
	valid   bool // false until the value was read from or written to the chip
	pending bool // modified in deferred write mode, not yet sent
}

// PinBank holds the register cache of one bank and its 8 pins.
// There is no internal locking: all pins of a bank share the cached registers,
// so concurrent users must serialize access.
type PinBank struct {
	chip  *Chip
	index Bank

	cache     [RegisterCount]cacheEntry // IOCON is kept by the chip, see slot()
	readMode  ReadMode
	writeMode WriteMode
	queue     []Register
	queued    [RegisterCount]bool

	pins [PinsPerBank]Pin
}

func newPinBank(chip *Chip, index Bank) *PinBank {
	b := &PinBank{
		chip:  chip,
		index: index,
	}
	for i := range b.pins {
		b.pins[i] = Pin{bank: b, index: i}
	}
	return b
}

func (b *PinBank) Index() Bank {
	return b.index
}

func (b *PinBank) Chip() *Chip {
	return b.chip
}

func (b *PinBank) String() string {
	return "bank " + b.index.String()
}

// Pin panics for indices outside of 0..7, like indexing a slice.
func (b *PinBank) Pin(index int) *Pin {
	if index < 0 || index >= PinsPerBank {
		panic(fmt.Sprintf("MCP23x17 pin index %v out of range (0..%v)", index, PinsPerBank-1))
	}
	return &b.pins[index]
}

func (b *PinBank) Pins() []*Pin {
	res := make([]*Pin, PinsPerBank)
	for i := range b.pins {
		res[i] = &b.pins[i]
	}
	return res
}

func (b *PinBank) ReadMode() ReadMode {
	return b.readMode
}

func (b *PinBank) SetReadMode(mode ReadMode) {
	b.readMode = mode
}

func (b *PinBank) WriteMode() WriteMode {
	return b.writeMode
}

// SetWriteMode does not flush pending registers, that still requires Write().
func (b *PinBank) SetWriteMode(mode WriteMode) {
	b.writeMode = mode
}

func (b *PinBank) logger() log.FieldLogger {
	return b.chip.log.WithField("bank", b.index)
}

func (b *PinBank) slot(reg Register) *cacheEntry {
	if reg == IOCON {
		return &b.chip.iocon
	}
	return &b.cache[reg]
}

// Bit returns one bit of a register, fetching the register as required by the read mode.
func (b *PinBank) Bit(reg Register, index int) (bool, error) {
	if err := checkBit(reg, index); err != nil {
		return false, err
	}
	val, err := b.get(reg)
	return val&bitMask(index) != 0, err
}

// SetBit modifies one bit of the cached register and sends or queues the whole register,
// depending on the write mode. Writes to GPIO are directed to OLAT, like on the chip.
func (b *PinBank) SetBit(reg Register, index int, value bool) error {
	if err := checkBit(reg, index); err != nil {
		return err
	}
	reg, err := writableRegister(reg)
	if err != nil {
		return err
	}
	cur, err := b.current(reg)
	if err != nil {
		return err
	}
	if value {
		cur |= bitMask(index)
	} else {
		cur &^= bitMask(index)
	}
	return b.set(reg, cur)
}

// Register returns a whole register, with the same synchronization as Bit.
func (b *PinBank) Register(reg Register) (byte, error) {
	if !reg.valid() {
		return 0, errors.Errorf("Invalid MCP23x17 register %v", reg)
	}
	return b.get(reg)
}

func (b *PinBank) SetRegister(reg Register, val byte) error {
	if !reg.valid() {
		return errors.Errorf("Invalid MCP23x17 register %v", reg)
	}
	reg, err := writableRegister(reg)
	if err != nil {
		return err
	}
	return b.set(reg, val)
}

// Read fetches all live registers of the bank from the chip.
func (b *PinBank) Read() error {
	for _, reg := range liveRegisters {
		if err := b.fetch(reg); err != nil {
			return err
		}
	}
	return nil
}

// Write sends all registers modified in deferred write mode, each one exactly once, in the
// order they were first modified. Registers that could not be sent stay queued.
func (b *PinBank) Write() error {
	for len(b.queue) > 0 {
		reg := b.queue[0]
		entry := b.slot(reg)
		if entry.pending {
			b.logger().Debugf("Flushing %v = %#02x", reg, entry.value)
			if err := b.chip.registers.Write(b.index, reg, entry.value); err != nil {
				return err
			}
			entry.pending = false
		}
		b.queued[reg] = false
		b.queue = b.queue[1:]
	}
	b.queue = nil
	return nil
}

// Pending returns the registers that will be sent by the next Write().
func (b *PinBank) Pending() []Register {
	var res []Register
	for _, reg := range b.queue {
		if b.slot(reg).pending {
			res = append(res, reg)
		}
	}
	return res
}

func (b *PinBank) get(reg Register) (byte, error) {
	entry := b.slot(reg)
	if !entry.valid || (reg.Live() && b.readMode == ImmediateRead) {
		if err := b.fetch(reg); err != nil {
			return 0, err
		}
	}
	return entry.value, nil
}

// current returns the cached value as base for a modification, fetching it only if unknown.
func (b *PinBank) current(reg Register) (byte, error) {
	entry := b.slot(reg)
	if !entry.valid {
		if err := b.fetch(reg); err != nil {
			return 0, err
		}
	}
	return entry.value, nil
}

func (b *PinBank) fetch(reg Register) error {
	val, err := b.chip.registers.Read(b.index, reg)
	if err != nil {
		return err
	}
	entry := b.slot(reg)
	entry.value, entry.valid = val, true
	if reg == GPIO {
		b.mirrorOutputs()
	}
	return nil
}

func (b *PinBank) set(reg Register, val byte) error {
	entry := b.slot(reg)
	if b.writeMode == DeferredWrite {
		entry.value, entry.valid = val, true
		b.enqueue(reg)
	} else {
		if err := b.chip.registers.Write(b.index, reg, val); err != nil {
			return err
		}
		entry.value, entry.valid, entry.pending = val, true, false
	}
	if reg == OLAT || reg == IODIR {
		b.mirrorOutputs()
	}
	return nil
}

func (b *PinBank) enqueue(reg Register) {
	b.slot(reg).pending = true
	if !b.queued[reg] {
		b.queued[reg] = true
		b.queue = append(b.queue, reg)
	}
}

// The chip reflects OLAT in GPIO for output pins. Keep the cached GPIO consistent with that,
// including values that are still waiting for a deferred write.
func (b *PinBank) mirrorOutputs() {
	gpio, iodir, olat := &b.cache[GPIO], &b.cache[IODIR], &b.cache[OLAT]
	if gpio.valid && iodir.valid && olat.valid {
		gpio.value = (gpio.value & iodir.value) | (olat.value &^ iodir.value)
	}
}

func (b *PinBank) resetCache() {
	for reg := range b.cache {
		if Register(reg) != IOCON {
			b.cache[reg] = cacheEntry{value: ResetValue(Register(reg)), valid: true}
		}
	}
	b.clearQueue()
}

func (b *PinBank) invalidate() {
	for reg := range b.cache {
		b.cache[reg] = cacheEntry{}
	}
	b.clearQueue()
}

func (b *PinBank) clearQueue() {
	b.queue = nil
	b.queued = [RegisterCount]bool{}
}

func (b *PinBank) warnInterruptHazard(p *Pin) {
	if b.readMode == ImmediateRead {
		b.logger().WithField("pin", p.String()).Warnln("Enabling interrupts in immediate read mode:",
			"reading pin values clears the interrupt capture, use deferred read mode and PinBank.Read()")
	}
}

func writableRegister(reg Register) (Register, error) {
	if reg.ReadOnly() {
		return reg, errors.Errorf("MCP23x17 register %v is read only", reg)
	}
	if reg == GPIO {
		return OLAT, nil
	}
	return reg, nil
}

func checkBit(reg Register, index int) error {
	if !reg.valid() {
		return errors.Errorf("Invalid MCP23x17 register %v", reg)
	}
	if index < 0 || index >= PinsPerBank {
		return errors.Errorf("MCP23x17 bit index %v out of range (0..%v)", index, PinsPerBank-1)
	}
	return nil
}

func bitMask(index int) byte {
	return 1 << uint(index)
}
