package mcp23x17

import "github.com/pkg/errors"

// RegisterTransport performs single register accesses on the physical chip.
// Implementations exist per bus (I2C, SPI, SMBus). Errors are passed on to the
// caller unchanged, retrying is up to the transport.
type RegisterTransport interface {
	WriteRegister(addr byte, val byte) error
	ReadRegister(addr byte) (byte, error)
}

var (
	ErrPinClaimed          = errors.New("pin is already claimed")
	ErrPinNotClaimed       = errors.New("pin must be claimed before use")
	ErrPullDownUnsupported = errors.New("MCP23x17 pins only have pull-up resistors")
)
