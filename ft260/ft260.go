// Package ft260 accesses the I2C master of the FTDI FT260 USB bridge through its HID reports.
package ft260

import (
	"fmt"

	"github.com/antongulenko/hid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FTDIVendorId   = 0x0403
	FT260ProductId = 0x6030
)

type Ft260Driver struct {
	Vendor  uint16
	Product uint16
	Path    string // Optional, selects one of multiple devices
}

func (d *Ft260Driver) Open() (*Ft260, error) {
	if !hid.Supported() {
		return nil, errors.New("USB HID is not supported on this platform")
	}
	vendor, product := d.Vendor, d.Product
	if vendor == 0 {
		vendor = FTDIVendorId
	}
	if product == 0 {
		product = FT260ProductId
	}
	devices := hid.Enumerate(vendor, product)
	if d.Path != "" {
		var matching []hid.DeviceInfo
		for _, info := range devices {
			if info.Path == d.Path {
				matching = append(matching, info)
			}
		}
		devices = matching
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("No USB HID device found with vendorID=%04x productID=%04x path='%v'", vendor, product, d.Path)
	}
	if len(devices) > 1 {
		log.Warnf("Multiple devices connected with vendorID=%04x productID=%04x, using first", vendor, product)
	}
	info := devices[0]
	log.Printf("Opening USB HID device %v (USB %v): %v (%04x) from %v (%04x), Release %v",
		info.Path, info.Interface, info.Product, info.ProductID, info.Manufacturer, info.VendorID, info.Release)
	dev, err := info.Open()
	if err != nil {
		return nil, err
	}
	return New(hidDevice{dev}), nil
}

// Init prepares the HID library, must be called before opening devices.
func Init() error {
	return hid.Init()
}

// Shutdown releases the HID library after all devices are closed.
func Shutdown() error {
	return hid.Shutdown()
}

type hidDevice struct {
	*hid.Device
}

func (d hidDevice) Close() error {
	d.Device.Close()
	return nil
}

func Open() (*Ft260, error) {
	return (&Ft260Driver{}).Open()
}

func OpenPath(path string) (*Ft260, error) {
	return (&Ft260Driver{Path: path}).Open()
}

// Device is the subset of a HID device used here
type Device interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type Ft260 struct {
	dev Device

	// Number of status reports to wait for the I2C controller to become idle
	StatusPolls int
}

func New(dev Device) *Ft260 {
	return &Ft260{
		dev:         dev,
		StatusPolls: 100,
	}
}

func (f *Ft260) Close() error {
	return f.dev.Close()
}

type ReportIn interface {
	Unmarshall(data []byte) error
	ReportID() byte
	ReportLen() int
}

type ReportOut interface {
	Marshall(data []byte) error
	ReportID() byte
	ReportLen() int
}

// Write sends a report. Marshall() fills the bytes after the report ID.
func (f *Ft260) Write(report ReportOut) error {
	data := make([]byte, report.ReportLen())
	if err := report.Marshall(data[1:]); err != nil {
		return err
	}
	data[0] = report.ReportID()
	n, err := f.dev.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("ft260: wrong write len (%v instead of %v)", n, len(data))
	}
	return err
}

// Read receives a report of fixed size. Unmarshall() receives the bytes after the report ID.
func (f *Ft260) Read(report ReportIn) error {
	data := make([]byte, report.ReportLen())
	data[0] = report.ReportID()
	n, err := f.dev.Read(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("ft260: wrong read len (%v instead of %v)", n, len(data))
	}
	if err == nil && data[0] != report.ReportID() {
		return fmt.Errorf("Unexpected report id (expected %#02x, received %#02x)", report.ReportID(), data[0])
	}
	if err == nil {
		err = report.Unmarshall(data[1:])
	}
	return err
}

func _readBool(b []byte, index int, e *error) bool {
	if *e == nil {
		val := b[index]
		if val == 0 {
			return false
		} else if val == 1 {
			return true
		} else {
			*e = fmt.Errorf("Expected 0 or 1 for byte at index %v, but got %02x", index, val)
		}
	}
	return false
}
