// Package device owns the stalk hardware link: HID discovery, the open
// handle, timed reads, and reconnect-on-failure supervision.
package device

import "time"

// DeviceInfo describes one enumerated HID device.
type DeviceInfo struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Product   string
}

// Handle is an open device. Read blocks up to timeout and returns 0 bytes
// when no report arrived in time; I/O failures return an error.
type Handle interface {
	Read(buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// Transport enumerates and opens HID devices. The real implementation
// wraps hidapi; tests script a fake.
type Transport interface {
	Enumerate() ([]DeviceInfo, error)
	Open(info DeviceInfo) (Handle, error)
}
