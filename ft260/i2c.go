package ft260

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	ReportID_I2CStatus    = 0xC0 // Feature In
	ReportID_I2CRead      = 0xC2 // Output
	ReportID_I2CInOut     = 0xD0 // 0xD0 - 0xDE, Input, Output
	ReportID_I2CInOut_Max = 0xDE

	// Every report ID above 0xD0 carries 4 more byte of payload
	I2CMaxPayload = (1 + ReportID_I2CInOut_Max - ReportID_I2CInOut) * 4

	I2CMaxRead     = 0xFFFF
	inputReportLen = 64
)

const (
	I2C_StatusControllerBusy = byte(1 << iota)
	I2C_StatusError
	I2C_StatusNoSlaveAck
	I2C_StatusNoDataAck
	I2C_StatusArbitrationLost
	I2C_StatusControllerIdle
	I2C_StatusBusBusy
)

const (
	I2C_MasterNone         = 0x0
	I2C_MasterStart        = 0x2
	I2C_MasterRepStart     = 0x3
	I2C_MasterStop         = 0x4
	I2C_MasterStartStop    = 0x6
	I2C_MasterRepStartStop = 0x7
)

var (
	ErrNoSlaveAck      = errors.New("FT260: I2C slave address not acknowledged")
	ErrNoDataAck       = errors.New("FT260: I2C data not acknowledged")
	ErrArbitrationLost = errors.New("FT260: I2C arbitration lost")
	ErrBusy            = errors.New("FT260: I2C controller stays busy")
)

func I2cMasterCodeString(code byte) string {
	switch code {
	case I2C_MasterNone:
		return "Nothing"
	case I2C_MasterStart:
		return "Start"
	case I2C_MasterRepStart:
		return "Repeated Start"
	case I2C_MasterStop:
		return "Stop"
	case I2C_MasterStartStop:
		return "Start + Stop"
	case I2C_MasterRepStartStop:
		return "Repeated Start + Stop"
	default:
		return fmt.Sprintf("Unknown I2C Master code %v", code)
	}
}

// Result of ReportID_I2CStatus Feature In
type ReportI2cStatus struct {
	BusStatus byte   // Bitmask of I2C_Status...
	BusSpeed  uint16 // 2 byte: LSB+MSB
	// 1 reserved
}

func (r *ReportI2cStatus) ReportID() byte {
	return ReportID_I2CStatus
}

func (r *ReportI2cStatus) ReportLen() int {
	return 5
}

func (r *ReportI2cStatus) Unmarshall(b []byte) error {
	r.BusStatus = b[0]
	r.BusSpeed = uint16(b[1]) + uint16(b[2])<<8
	return nil
}

func (r *ReportI2cStatus) Busy() bool {
	return r.BusStatus&I2C_StatusControllerBusy != 0
}

// Err translates the error bits of the last transfer
func (r *ReportI2cStatus) Err() error {
	switch {
	case r.BusStatus&I2C_StatusError == 0:
		return nil
	case r.BusStatus&I2C_StatusNoSlaveAck != 0:
		return ErrNoSlaveAck
	case r.BusStatus&I2C_StatusNoDataAck != 0:
		return ErrNoDataAck
	case r.BusStatus&I2C_StatusArbitrationLost != 0:
		return ErrArbitrationLost
	default:
		return fmt.Errorf("FT260: I2C error (status %#02x)", r.BusStatus)
	}
}

// Data of ReportID_I2CRead Interrupt Out
type OperationI2cRead struct {
	SlaveAddr byte   // 0..127
	Condition byte   // I2C_Master...
	Len       uint16 // data length (little endian)
}

func (r *OperationI2cRead) ReportID() byte {
	return ReportID_I2CRead
}

func (r *OperationI2cRead) ReportLen() int {
	return 5
}

func (r *OperationI2cRead) Marshall(b []byte) error {
	if r.SlaveAddr&0x80 != 0 {
		return fmt.Errorf("Invalid I2C slave address: %02x", r.SlaveAddr)
	}
	b[0] = r.SlaveAddr
	b[1] = r.Condition
	b[2], b[3] = byte(r.Len), byte(r.Len>>8)
	return nil
}

// Data of ReportID_I2CInOut Interrupt Out
type OperationI2cWrite struct {
	SlaveAddr byte // 0..127
	Condition byte // I2C_Master...
	// 1 byte payload len
	Payload []byte
}

func (r *OperationI2cWrite) ReportID() byte {
	if len(r.Payload) == 0 {
		return ReportID_I2CInOut
	}
	return ReportID_I2CInOut + byte((len(r.Payload)-1)/4)
}

func (r *OperationI2cWrite) ReportLen() int {
	return len(r.Payload) + 4
}

func (r *OperationI2cWrite) Marshall(b []byte) error {
	if len(r.Payload) > I2CMaxPayload {
		return fmt.Errorf("Payload len %v exceeds maximum size of %v", len(r.Payload), I2CMaxPayload)
	}
	if r.SlaveAddr&0x80 != 0 {
		return fmt.Errorf("Invalid I2C slave address: %02x", r.SlaveAddr)
	}
	b[0] = r.SlaveAddr
	b[1] = r.Condition
	b[2] = byte(len(r.Payload))
	copy(b[3:], r.Payload)
	return nil
}

func (f *Ft260) I2cStatus() (*ReportI2cStatus, error) {
	var status ReportI2cStatus
	return &status, f.Read(&status)
}

func (f *Ft260) waitI2cIdle() error {
	for i := 0; i < f.StatusPolls; i++ {
		status, err := f.I2cStatus()
		if err != nil {
			return err
		}
		if !status.Busy() {
			return status.Err()
		}
	}
	return ErrBusy
}

// Split data into chunks that fit into one report, with matching start/stop conditions
func i2cSplitTransaction(stop bool, data []byte) ([][]byte, []byte) {
	var payload [][]byte
	var conditions []byte
	for start := 0; start < len(data); start += I2CMaxPayload {
		end := start + I2CMaxPayload
		if end > len(data) {
			end = len(data)
		}
		payload = append(payload, data[start:end])
		conditions = append(conditions, I2C_MasterNone)
	}
	if len(conditions) > 0 {
		conditions[0] |= I2C_MasterStart
		if stop {
			conditions[len(conditions)-1] |= I2C_MasterStop
		}
	}
	return payload, conditions
}

func (f *Ft260) i2cWrite(addr byte, stop bool, data []byte) error {
	payload, conditions := i2cSplitTransaction(stop, data)
	if len(payload) == 0 {
		// Address only, used for probing
		payload, conditions = [][]byte{nil}, []byte{I2C_MasterStartStop}
	}
	for i, chunk := range payload {
		log.Debugf("FT260: I2C write of %v byte to %#02x (%v)", len(chunk), addr, I2cMasterCodeString(conditions[i]))
		err := f.Write(&OperationI2cWrite{
			SlaveAddr: addr,
			Condition: conditions[i],
			Payload:   chunk,
		})
		if err == nil {
			err = f.waitI2cIdle()
		}
		if err != nil {
			return errors.Wrapf(err, "Writing to I2C slave %#02x", addr)
		}
	}
	return nil
}

func (f *Ft260) i2cRead(addr byte, condition byte, data []byte) error {
	if len(data) > I2CMaxRead {
		return fmt.Errorf("FT260: I2C read of %v byte exceeds maximum of %v", len(data), I2CMaxRead)
	}
	log.Debugf("FT260: I2C read of %v byte from %#02x (%v)", len(data), addr, I2cMasterCodeString(condition))
	err := f.Write(&OperationI2cRead{
		SlaveAddr: addr,
		Condition: condition,
		Len:       uint16(len(data)),
	})
	for received := 0; err == nil && received < len(data); {
		var n int
		n, err = f.readInput(data[received:])
		received += n
	}
	if err == nil {
		err = f.waitI2cIdle()
	}
	return errors.Wrapf(err, "Reading from I2C slave %#02x", addr)
}

// Receives one input report, which contains up to I2CMaxPayload byte
func (f *Ft260) readInput(data []byte) (int, error) {
	buf := make([]byte, inputReportLen)
	n, err := f.dev.Read(buf)
	if err != nil {
		return 0, err
	}
	if n < 2 || buf[0] < ReportID_I2CInOut || buf[0] > ReportID_I2CInOut_Max {
		return 0, fmt.Errorf("FT260: unexpected I2C input report (%v byte, report ID %#02x)", n, buf[0])
	}
	l := int(buf[1])
	if l == 0 || l+2 > n || l > len(data) {
		return 0, fmt.Errorf("FT260: invalid I2C input report length %v (report size %v, expected at most %v)", l, n, len(data))
	}
	return copy(data, buf[2:2+l]), nil
}

func (f *Ft260) I2cWrite(addr byte, data ...byte) error {
	return f.i2cWrite(addr, true, data)
}

func (f *Ft260) I2cRead(addr byte, data []byte) error {
	return f.i2cRead(addr, I2C_MasterStartStop, data)
}

// I2cWriteRead writes without stop condition and reads after a repeated start
func (f *Ft260) I2cWriteRead(addr byte, out, in []byte) error {
	if err := f.i2cWrite(addr, false, out); err != nil {
		return err
	}
	return f.i2cRead(addr, I2C_MasterRepStartStop, in)
}

func (f *Ft260) I2cGet(addr byte, registerAddr byte, size int) ([]byte, error) {
	res := make([]byte, size)
	if err := f.I2cWriteRead(addr, []byte{registerAddr}, res); err != nil {
		return nil, err
	}
	return res, nil
}
