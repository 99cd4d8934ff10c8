// Package expander opens an MCP23x17 chip over one of the supported transports,
// configured through command line flags.
package expander

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/antongulenko/golib"
	"github.com/antongulenko/portexpander/bus"
	"github.com/antongulenko/portexpander/ft260"
	"github.com/antongulenko/portexpander/mcp23017"
	"github.com/antongulenko/portexpander/mcp23s17"
	"github.com/antongulenko/portexpander/mcp23x17"
	"github.com/antongulenko/portexpander/mcp23x17/mcp23x17sim"
	"github.com/antongulenko/portexpander/smbus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	TransportFT260 = "ft260"
	TransportI2C   = "i2c"
	TransportSMBus = "smbus"
	TransportSPI   = "spi"
)

var Transports = []string{TransportFT260, TransportI2C, TransportSMBus, TransportSPI}

var DefaultExpander = Expander{
	Transport:       TransportFT260,
	I2cAddr:         uint(mcp23017.ADDRESS),
	I2cFreq:         uint(400),
	I2cRequestQueue: 20,
	SpiPort:         "",
	SpiFreq:         uint(mcp23s17.DefaultFrequency / physic.KiloHertz),
}

type Expander struct {
	Transport       string
	UsbDevice       string
	I2cBus          string // periph.io bus name, for the i2c transport
	SMBusIndex      int
	I2cAddr         uint
	I2cFreq         uint // kHz
	I2cRequestQueue int
	NoI2cSequencer  bool
	TraceI2c        bool
	SpiPort         string
	SpiFreq         uint // kHz
	HardwareAddr    uint // MCP23S17 address pins, requires IOCON.HAEN
	InterruptPin    string
	SkipReset       bool
	Reset           mcp23x17.ResetOptions
	Dummy           bool

	chip      *mcp23x17.Chip
	sim       *mcp23x17sim.Chip
	i2c       bus.I2cBus
	sequencer *bus.Sequencer
	intPin    gpio.PinIO
	closers   []io.Closer
	hostReady bool
	hidReady  bool
}

func (e *Expander) RegisterFlags() {
	flag.StringVar(&e.Transport, "transport", e.Transport, fmt.Sprintf("Transport to the MCP23x17, one of %v", Transports))
	flag.StringVar(&e.UsbDevice, "dev", e.UsbDevice, "Specify a USB path for FT260")
	flag.StringVar(&e.I2cBus, "i2c-bus", e.I2cBus, "Name of the I2C bus for the i2c transport (empty for the first bus)")
	flag.IntVar(&e.SMBusIndex, "smbus", e.SMBusIndex, "Number of the /dev/i2c-N device for the smbus transport")
	flag.UintVar(&e.I2cAddr, "addr", e.I2cAddr, "I2C address of the MCP23017")
	flag.UintVar(&e.I2cFreq, "freq", e.I2cFreq, "The I2C bus frequency in kHz (60 - 3400)")
	flag.BoolVar(&e.NoI2cSequencer, "no-i2c-sequencer", e.NoI2cSequencer, "Disable the extra goroutine for sequencing I2C commands")
	flag.BoolVar(&e.TraceI2c, "trace-i2c", e.TraceI2c, "Log every I2C operation")
	flag.StringVar(&e.SpiPort, "spi", e.SpiPort, "SPI port for the spi transport (empty for the first port)")
	flag.UintVar(&e.SpiFreq, "spi-freq", e.SpiFreq, "The SPI clock frequency in kHz")
	flag.UintVar(&e.HardwareAddr, "hw-addr", e.HardwareAddr, "Hardware address (0..7) of the MCP23S17")
	flag.StringVar(&e.InterruptPin, "int-pin", e.InterruptPin, "Host GPIO connected to the INT output of the MCP23x17 (e.g. GPIO24)")
	flag.BoolVar(&e.SkipReset, "no-reset", e.SkipReset, "Do not reset the MCP23x17 registers on startup")
	flag.BoolVar(&e.Reset.InterruptPolarity, "int-polarity", e.Reset.InterruptPolarity, "Make the INT outputs active-high")
	flag.BoolVar(&e.Reset.InterruptOpenDrain, "int-open-drain", e.Reset.InterruptOpenDrain, "Make the INT outputs open-drain")
	flag.BoolVar(&e.Reset.InterruptMirror, "int-mirror", e.Reset.InterruptMirror, "Connect the INT outputs of both banks")
	flag.BoolVar(&e.Dummy, "dummy", e.Dummy, "Use a simulated MCP23x17 with bank A wired to bank B")
}

func (e *Expander) Setup() error {
	transport, err := e.openTransport()
	if err != nil {
		e.Cleanup()
		return err
	}
	e.chip = mcp23x17.New(transport)
	if e.SkipReset {
		log.Println("Skipping reset of MCP23x17")
	} else if err := e.chip.Reset(e.Reset); err != nil {
		e.Cleanup()
		return errors.Wrap(err, "Failed to reset MCP23x17")
	}
	if e.InterruptPin != "" && !e.Dummy {
		if err := e.openInterruptPin(); err != nil {
			e.Cleanup()
			return err
		}
	}
	log.Println("Successfully initialized MCP23x17")
	return nil
}

func (e *Expander) openTransport() (mcp23x17.RegisterTransport, error) {
	if e.Dummy {
		log.Println("Dummy MCP23x17: using simulation with bank A wired to bank B")
		e.sim = mcp23x17sim.New()
		e.sim.ConnectBanks()
		e.sim.Dummy = true
		return e.sim, nil
	}
	switch e.Transport {
	case TransportFT260:
		if err := ft260.Init(); err != nil {
			return nil, errors.Wrap(err, "Failed to initialize USB HID library")
		}
		e.hidReady = true
		usb, err := ft260.OpenPath(e.UsbDevice)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, usb)
		if err := usb.Configure(uint16(e.I2cFreq)); err != nil {
			return nil, err
		}
		if err := usb.Validate(uint16(e.I2cFreq)); err != nil {
			return nil, err
		}
		return e.openI2c(usb)
	case TransportI2C:
		if err := e.initHost(); err != nil {
			return nil, err
		}
		b, err := bus.OpenPeriph(e.I2cBus, physic.Frequency(e.I2cFreq)*physic.KiloHertz)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, b)
		return e.openI2c(b)
	case TransportSMBus:
		r, err := smbus.Open(e.SMBusIndex, byte(e.I2cAddr))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, r)
		return r, nil
	case TransportSPI:
		if err := e.initHost(); err != nil {
			return nil, err
		}
		r, port, err := mcp23s17.Open(e.SpiPort, physic.Frequency(e.SpiFreq)*physic.KiloHertz, byte(e.HardwareAddr))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, port)
		log.Printf("Opened MCP23S17 on SPI %v", r)
		return r, nil
	default:
		return nil, fmt.Errorf("Unknown transport '%v', available transports: %v", e.Transport, Transports)
	}
}

func (e *Expander) openI2c(b bus.I2cBus) (mcp23x17.RegisterTransport, error) {
	if e.TraceI2c {
		b = &bus.Trace{Bus: b}
	}
	e.i2c = b
	if !e.NoI2cSequencer {
		e.sequencer = bus.NewSequencer(b, e.I2cRequestQueue)
		e.i2c = e.sequencer
	}
	log.Printf("Opening MCP23017 at I2C address %#02x", e.I2cAddr)
	return mcp23017.New(e.i2c, byte(e.I2cAddr))
}

func (e *Expander) initHost() error {
	if !e.hostReady {
		if _, err := host.Init(); err != nil {
			return errors.Wrap(err, "Failed to initialize periph.io host drivers")
		}
		e.hostReady = true
	}
	return nil
}

// The INT outputs are active-low unless configured as active-high push-pull
func (e *Expander) interruptActiveHigh() bool {
	return e.Reset.InterruptPolarity && !e.Reset.InterruptOpenDrain
}

func (e *Expander) openInterruptPin() error {
	if err := e.initHost(); err != nil {
		return err
	}
	p := gpioreg.ByName(e.InterruptPin)
	if p == nil {
		return fmt.Errorf("Host GPIO '%v' not found", e.InterruptPin)
	}
	pull, edge := gpio.PullUp, gpio.FallingEdge
	if e.interruptActiveHigh() {
		pull, edge = gpio.PullDown, gpio.RisingEdge
	}
	if err := p.In(pull, edge); err != nil {
		return errors.Wrapf(err, "Failed to configure host GPIO %v for interrupts", p)
	}
	e.intPin = p
	return nil
}

// WaitForInterrupt blocks until the INT line of the chip becomes active, or the timeout expires.
// It returns immediately if the line is already active.
func (e *Expander) WaitForInterrupt(timeout time.Duration) (bool, error) {
	if e.sim != nil {
		return e.waitForSimulatedInterrupt(timeout), nil
	}
	if e.intPin == nil {
		return false, errors.New("No interrupt pin configured")
	}
	active := gpio.Low
	if e.interruptActiveHigh() {
		active = gpio.High
	}
	if e.intPin.Read() == active {
		return true, nil
	}
	return e.intPin.WaitForEdge(timeout), nil
}

func (e *Expander) waitForSimulatedInterrupt(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if e.sim.InterruptActive(mcp23x17.BankA) || e.sim.InterruptActive(mcp23x17.BankB) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (e *Expander) Chip() *mcp23x17.Chip {
	return e.chip
}

// Sim returns the simulated chip in dummy mode, nil otherwise.
func (e *Expander) Sim() *mcp23x17sim.Chip {
	return e.sim
}

// Bus returns the I2C bus for the ft260 and i2c transports, nil otherwise.
func (e *Expander) Bus() bus.I2cBus {
	return e.i2c
}

type registerDumper interface {
	ReadAll() ([]byte, error)
}

// Registers reads all register addresses of the chip, bypassing the cache.
func (e *Expander) Registers() ([]byte, error) {
	transport := e.chip.Transport()
	if dumper, ok := transport.(registerDumper); ok {
		return dumper.ReadAll()
	}
	res := make([]byte, int(mcp23x17.MaxAddress)+1)
	for addr := range res {
		val, err := transport.ReadRegister(byte(addr))
		if err != nil {
			return nil, err
		}
		res[addr] = val
	}
	return res, nil
}

func (e *Expander) Cleanup() {
	if e.intPin != nil {
		golib.Printerr(e.intPin.Halt())
		e.intPin = nil
	}
	if e.sequencer != nil {
		e.sequencer.Close()
		e.sequencer = nil
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		golib.Printerr(e.closers[i].Close())
	}
	e.closers = nil
	if e.hidReady {
		golib.Printerr(ft260.Shutdown())
		e.hidReady = false
	}
}
