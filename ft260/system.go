package ft260

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	ReportID_ChipCode      = 0xA0 // Feature In
	ReportID_SystemSetting = 0xA1 // Feature In/Out

	FT260_CHIP_CODE = 0x02600200
)

// Requests for ReportID_SystemSetting Feature Out
const (
	SetSystemSetting_Clock           = 0x01 // Clock...
	SetSystemSetting_EnableWakeupInt = 0x05 // bool

	SetSystemSetting_GPIO_2 = 0x06 // GPIO_2_...
	SetSystemSetting_GPIO_A = 0x08 // GPIO_A_...
	SetSystemSetting_GPIO_G = 0x09 // GPIO_G_...

	SetSystemSetting_I2CReset    = 0x20 // <empty>
	SetSystemSetting_I2CSetClock = 0x22 // LSB+MSB of clock speed (60K-3400K bps)
)

const (
	Clock12MHz = byte(0)
	Clock24MHz = byte(1)
	Clock48MHz = byte(2)

	GPIO_2_Normal = byte(0)
	GPIO_A_Normal = byte(0)
	GPIO_G_Normal = byte(0)
)

// Result of ReportID_ChipCode Feature In
type ReportChipCode struct {
	ChipCode uint32 // 02600200
	// 8 reserved byte
}

func (r *ReportChipCode) ReportID() byte {
	return ReportID_ChipCode
}

func (r *ReportChipCode) ReportLen() int {
	return 13
}

// The chip code is transmitted with the most significant byte first
func (r *ReportChipCode) Unmarshall(b []byte) error {
	r.ChipCode = uint32(b[0])<<24 + uint32(b[1])<<16 + uint32(b[2])<<8 + uint32(b[3])
	return nil
}

// Result of ReportID_SystemSetting Feature In
type ReportSystemStatus struct {
	ChipMode          byte // Bit 0: DCNF0, Bit 1: DCNF1
	Clock             byte // 0..2 (Clock...MHz)
	Suspended         bool
	PowerStatus       bool // Device Ready?
	I2CEnable         bool
	UartMode          byte
	HidOverI2cEnable  bool
	GPIO2Function     byte // GPIO_2_...
	GPIOAFunction     byte // GPIO_A_...
	GPIOGFunction     byte // GPIO_G_...
	EnableWakeupInt   bool // If disabled: pin acts as GPIO3
	EnablePowerSaving bool // Enabled: reduce clock to 30kHz after 5 sec idle
}

func (r *ReportSystemStatus) ReportID() byte {
	return ReportID_SystemSetting
}

func (r *ReportSystemStatus) ReportLen() int {
	// This should be 20 byte, but the device returns an error for less than 25...
	return 25
}

func (r *ReportSystemStatus) Unmarshall(b []byte) (err error) {
	r.ChipMode = b[0]
	r.Clock = b[1]
	r.Suspended = _readBool(b, 2, &err)
	r.PowerStatus = _readBool(b, 3, &err)
	r.I2CEnable = _readBool(b, 4, &err)
	r.UartMode = b[5]
	r.HidOverI2cEnable = _readBool(b, 6, &err)
	r.GPIO2Function = b[7]
	r.GPIOAFunction = b[8]
	r.GPIOGFunction = b[9]
	r.EnableWakeupInt = _readBool(b, 11, &err)
	r.EnablePowerSaving = _readBool(b, 13, &err)
	return
}

type SetSystemStatus struct {
	Request byte
	Value   interface{}
}

func (r *SetSystemStatus) ReportID() byte {
	return ReportID_SystemSetting
}

func (r *SetSystemStatus) ReportLen() int {
	switch r.Request {
	case SetSystemSetting_I2CReset:
		return 2
	case SetSystemSetting_I2CSetClock:
		return 4
	default:
		return 3
	}
}

func (r *SetSystemStatus) Marshall(b []byte) error {
	b[0] = r.Request
	switch r.Request {
	case SetSystemSetting_I2CReset:
		// No payload

	case SetSystemSetting_Clock, SetSystemSetting_GPIO_2, SetSystemSetting_GPIO_A, SetSystemSetting_GPIO_G:
		val, ok := r.Value.(byte)
		if !ok {
			return fmt.Errorf("System Setting Request ID %02x expects type %T, but got value of type %T (%v)", r.Request, byte(0), r.Value, r.Value)
		}
		b[1] = val

	case SetSystemSetting_EnableWakeupInt:
		val, ok := r.Value.(bool)
		if !ok {
			return fmt.Errorf("System Setting Request ID %02x expects type %T, but got value of type %T (%v)", r.Request, false, r.Value, r.Value)
		}
		if val {
			b[1] = 1
		} else {
			b[1] = 0
		}

	case SetSystemSetting_I2CSetClock:
		val, ok := r.Value.(uint16)
		if !ok {
			return fmt.Errorf("System Setting Request ID %02x expects type %T, but got value of type %T (%v)", r.Request, uint16(0), r.Value, r.Value)
		}
		b[1], b[2] = byte(val), byte(val>>8)
	default:
		return fmt.Errorf("Unsupported system setting request ID: %02x", r.Request)
	}
	return nil
}

// Configure prepares the device for I2C master operation at the given bus speed (kHz)
// and resets the I2C bus in case it was disturbed.
func (f *Ft260) Configure(i2cFreq uint16) (err error) {
	f.writeConfigValue(&err, SetSystemSetting_Clock, Clock48MHz)
	f.writeConfigValue(&err, SetSystemSetting_I2CReset, nil)
	f.writeConfigValue(&err, SetSystemSetting_I2CSetClock, i2cFreq)
	f.writeConfigValue(&err, SetSystemSetting_GPIO_2, GPIO_2_Normal)
	f.writeConfigValue(&err, SetSystemSetting_GPIO_A, GPIO_A_Normal)
	f.writeConfigValue(&err, SetSystemSetting_GPIO_G, GPIO_G_Normal)
	f.writeConfigValue(&err, SetSystemSetting_EnableWakeupInt, false)
	return
}

func (f *Ft260) writeConfigValue(outErr *error, request byte, val interface{}) {
	if *outErr == nil {
		*outErr = f.Write(&SetSystemStatus{
			Request: request,
			Value:   val,
		})
	}
}

// Validate checks the chip code and verifies the settings made by Configure()
func (f *Ft260) Validate(i2cFreq uint16) error {
	var code ReportChipCode
	if err := f.Read(&code); err != nil {
		return err
	}
	if code.ChipCode != FT260_CHIP_CODE {
		return fmt.Errorf("Unexpected chip code %08x (expected %08x)", code.ChipCode, FT260_CHIP_CODE)
	}

	var status ReportSystemStatus
	if err := f.Read(&status); err != nil {
		return err
	}
	if status.Clock != Clock48MHz {
		return fmt.Errorf("FT260: unexpected clock value %02x (expected %02x)", status.Clock, Clock48MHz)
	}
	if status.GPIO2Function != GPIO_2_Normal {
		return fmt.Errorf("FT260: unexpected GPIO 2 function %02x (expected %02x)", status.GPIO2Function, GPIO_2_Normal)
	}
	if status.EnableWakeupInt {
		return errors.New("FT260: wakeup interrupt is enabled")
	}
	if status.Suspended {
		return errors.New("FT260: device is suspended")
	}
	if !status.PowerStatus {
		return errors.New("FT260: device is powered off")
	}
	if !status.I2CEnable {
		return errors.New("FT260: I2C is not enabled on the device")
	}

	i2cStatus, err := f.I2cStatus()
	if err != nil {
		return err
	}
	if i2cStatus.BusSpeed != i2cFreq {
		return fmt.Errorf("FT260: unexpected I2C bus speed %v (expected %v)", i2cStatus.BusSpeed, i2cFreq)
	}
	return nil
}
