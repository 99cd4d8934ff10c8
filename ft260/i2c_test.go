package ft260

import (
	"errors"
	"testing"

	"github.com/antongulenko/portexpander/bus"
	"github.com/stretchr/testify/assert"
)

var _ bus.I2cBus = new(Ft260)

func Test_i2c_split_transactions(t *testing.T) {
	a := assert.New(t)
	test := func(stop bool, data []byte, expectedPayload [][]byte, expectedConditions []byte) {
		payload, conditions := i2cSplitTransaction(stop, data)
		a.Equal(expectedPayload, payload, "Payload differs")
		a.Equal(expectedConditions, conditions, "Conditions differ")
	}

	test(true, nil, nil, nil)
	test(false, nil, nil, nil)
	test(true, []byte{}, nil, nil)
	test(false, []byte{}, nil, nil)

	test(true, []byte{44}, [][]byte{{44}}, []byte{I2C_MasterStartStop})
	test(false, []byte{44}, [][]byte{{44}}, []byte{I2C_MasterStart})

	data := make([]byte, 130)
	for i := byte(0); i < byte(len(data)); i++ {
		data[i] = i + 10
	}

	// 59 byte
	test(true, data[:59], [][]byte{data[:59]}, []byte{I2C_MasterStartStop})
	test(false, data[:59], [][]byte{data[:59]}, []byte{I2C_MasterStart})

	// 60 byte
	test(true, data[:60], [][]byte{data[:60]}, []byte{I2C_MasterStartStop})
	test(false, data[:60], [][]byte{data[:60]}, []byte{I2C_MasterStart})

	// 61 byte
	test(true, data[:61], [][]byte{data[:60], data[60:61]}, []byte{I2C_MasterStart, I2C_MasterStop})
	test(false, data[:61], [][]byte{data[:60], data[60:61]}, []byte{I2C_MasterStart, I2C_MasterNone})

	// 121 byte
	test(true, data[:121], [][]byte{data[:60], data[60:120], data[120:121]}, []byte{I2C_MasterStart, I2C_MasterNone, I2C_MasterStop})
	test(false, data[:121], [][]byte{data[:60], data[60:120], data[120:121]}, []byte{I2C_MasterStart, I2C_MasterNone, I2C_MasterNone})

	// 130 byte
	test(true, data, [][]byte{data[:60], data[60:120], data[120:]}, []byte{I2C_MasterStart, I2C_MasterNone, I2C_MasterStop})
	test(false, data, [][]byte{data[:60], data[60:120], data[120:]}, []byte{I2C_MasterStart, I2C_MasterNone, I2C_MasterNone})
}

type testDevice struct {
	written [][]byte
	inputs  [][]byte
	status  []byte // Returned one after the other, the last one repeats
	speed   uint16
	closed  bool
}

func (d *testDevice) Write(b []byte) (int, error) {
	d.written = append(d.written, append([]byte(nil), b...))
	return len(b), nil
}

func (d *testDevice) Read(b []byte) (int, error) {
	switch b[0] {
	case ReportID_I2CStatus:
		status := I2C_StatusControllerIdle
		if len(d.status) > 0 {
			status = d.status[0]
			if len(d.status) > 1 {
				d.status = d.status[1:]
			}
		}
		return copy(b, []byte{ReportID_I2CStatus, status, byte(d.speed), byte(d.speed >> 8), 0}), nil
	case ReportID_ChipCode:
		copy(b, []byte{ReportID_ChipCode, 0x02, 0x60, 0x02, 0x00})
		return len(b), nil
	case ReportID_SystemSetting:
		copy(b, []byte{ReportID_SystemSetting, 0x01, Clock48MHz, 0, 1, 1})
		return len(b), nil
	default:
		if len(d.inputs) == 0 {
			return 0, errors.New("no input report")
		}
		in := d.inputs[0]
		d.inputs = d.inputs[1:]
		return copy(b, in), nil
	}
}

func (d *testDevice) Close() error {
	d.closed = true
	return nil
}

func TestI2cWrite(t *testing.T) {
	a := assert.New(t)
	dev := new(testDevice)
	f := New(dev)

	a.NoError(f.I2cWrite(0x20, 0x0A, 0x42))
	a.Equal([][]byte{{0xD0, 0x20, I2C_MasterStartStop, 2, 0x0A, 0x42}}, dev.written)

	dev.written = nil
	data := make([]byte, 61)
	data[60] = 0xEE
	a.NoError(f.I2cWrite(0x21, data...))
	a.Len(dev.written, 2)
	a.Equal(byte(0xDE), dev.written[0][0])
	a.Len(dev.written[0], 64)
	a.Equal([]byte{0x21, I2C_MasterStart, 60}, dev.written[0][1:4])
	a.Equal([]byte{0xD0, 0x21, I2C_MasterStop, 1, 0xEE}, dev.written[1])

	// Report IDs grow with every 4 byte of payload
	for _, c := range []struct {
		size int
		id   byte
	}{{1, 0xD0}, {4, 0xD0}, {5, 0xD1}, {8, 0xD1}, {9, 0xD2}, {57, 0xDE}} {
		op := OperationI2cWrite{Payload: make([]byte, c.size)}
		a.Equal(c.id, op.ReportID(), "payload size %v", c.size)
	}

	a.Error(f.I2cWrite(0x80, 1))
	a.NoError(f.Close())
	a.True(dev.closed)

	a.Equal("Start + Stop", I2cMasterCodeString(I2C_MasterStartStop))
	a.Equal("Repeated Start + Stop", I2cMasterCodeString(I2C_MasterRepStartStop))
	a.Equal("Unknown I2C Master code 5", I2cMasterCodeString(5))
}

func TestI2cGet(t *testing.T) {
	a := assert.New(t)
	dev := &testDevice{
		inputs: [][]byte{{0xD0, 2, 0xAB, 0xCD}},
	}
	f := New(dev)
	res, err := f.I2cGet(0x20, 0x12, 2)
	a.NoError(err)
	a.Equal([]byte{0xAB, 0xCD}, res)
	a.Equal([][]byte{
		{0xD0, 0x20, I2C_MasterStart, 1, 0x12},
		{ReportID_I2CRead, 0x20, I2C_MasterRepStartStop, 2, 0},
	}, dev.written)
}

func TestI2cReadMultipleReports(t *testing.T) {
	a := assert.New(t)
	first := make([]byte, 62)
	first[0], first[1] = 0xDE, 60
	for i := range first[2:] {
		first[2+i] = byte(i)
	}
	dev := &testDevice{
		inputs: [][]byte{first, {0xD2, 10, 60, 61, 62, 63, 64, 65, 66, 67, 68, 69}},
	}
	f := New(dev)
	data := make([]byte, 70)
	a.NoError(f.I2cRead(0x27, data))
	for i, val := range data {
		a.Equal(byte(i), val)
	}
	a.Equal([][]byte{{ReportID_I2CRead, 0x27, I2C_MasterStartStop, 70, 0}}, dev.written)

	dev.inputs = [][]byte{{0xD0, 3, 1, 2, 3}}
	a.Error(f.I2cRead(0x27, make([]byte, 2)), "more data than requested")
	dev.inputs = [][]byte{{0xA0, 1, 1}}
	a.Error(f.I2cRead(0x27, make([]byte, 1)), "wrong report ID")
}

func TestI2cErrors(t *testing.T) {
	a := assert.New(t)
	dev := &testDevice{
		status: []byte{I2C_StatusControllerBusy, I2C_StatusError | I2C_StatusNoSlaveAck},
	}
	f := New(dev)
	err := f.I2cWrite(0x20, 0)
	a.True(errors.Is(err, ErrNoSlaveAck), "%v", err)

	dev.status = []byte{I2C_StatusControllerBusy}
	f.StatusPolls = 3
	err = f.I2cWrite(0x20, 0)
	a.True(errors.Is(err, ErrBusy), "%v", err)

	dev.status = []byte{I2C_StatusError | I2C_StatusNoDataAck}
	_, err = f.I2cGet(0x20, 0, 1)
	a.True(errors.Is(err, ErrNoDataAck), "%v", err)
}

func TestConfigure(t *testing.T) {
	a := assert.New(t)
	dev := &testDevice{speed: 400}
	f := New(dev)
	a.NoError(f.Configure(400))
	a.Len(dev.written, 7)
	a.Equal([]byte{ReportID_SystemSetting, SetSystemSetting_Clock, Clock48MHz}, dev.written[0])
	a.Equal([]byte{ReportID_SystemSetting, SetSystemSetting_I2CReset}, dev.written[1])
	a.Equal([]byte{ReportID_SystemSetting, SetSystemSetting_I2CSetClock, 0x90, 0x01}, dev.written[2])
	a.NoError(f.Validate(400))
	a.Error(f.Validate(100))

	a.Error(f.Write(&SetSystemStatus{Request: SetSystemSetting_Clock, Value: true}))
}
