package device

import (
	"fmt"
	"time"

	hid "github.com/sstallion/go-hid"
)

// HidapiTransport implements Transport over the hidapi library.
type HidapiTransport struct{}

// NewHidapiTransport initializes the hidapi backend. Callers should pair
// this with hid.Exit via Shutdown when the process ends.
func NewHidapiTransport() (*HidapiTransport, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", err)
	}
	return &HidapiTransport{}, nil
}

// Shutdown releases the hidapi backend.
func (t *HidapiTransport) Shutdown() {
	hid.Exit()
}

func (t *HidapiTransport) Enumerate() ([]DeviceInfo, error) {
	var infos []DeviceInfo
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		infos = append(infos, DeviceInfo{
			Path:      info.Path,
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Product:   info.ProductStr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("HID enumeration failed: %w", err)
	}
	return infos, nil
}

// Open opens the device by path (stable within one enumeration pass) and
// switches it to non-blocking mode.
func (t *HidapiTransport) Open(info DeviceInfo) (Handle, error) {
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s (%04x:%04x): %w",
			info.Product, info.VendorID, info.ProductID, err)
	}
	if err := dev.SetNonblocking(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to set non-blocking mode: %w", err)
	}
	return &hidapiHandle{dev: dev}, nil
}

type hidapiHandle struct {
	dev *hid.Device
}

func (h *hidapiHandle) Read(buf []byte, timeout time.Duration) (int, error) {
	return h.dev.ReadWithTimeout(buf, timeout)
}

func (h *hidapiHandle) Close() error {
	return h.dev.Close()
}
