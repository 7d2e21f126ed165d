package device

import (
	"time"
)

// FakeTransport is a test double that serves scripted devices and reports.
// Exported so the core monitor tests can drive full cycles without
// hardware.
type FakeTransport struct {
	// Devices returned by Enumerate.
	Devices []DeviceInfo

	// EnumerateErr, if set, fails enumeration.
	EnumerateErr error

	// OpenErr, if set, fails Open.
	OpenErr error

	// Handle served by Open.
	Handle *FakeHandle

	OpenCount int
}

func (f *FakeTransport) Enumerate() ([]DeviceInfo, error) {
	if f.EnumerateErr != nil {
		return nil, f.EnumerateErr
	}
	return f.Devices, nil
}

func (f *FakeTransport) Open(info DeviceInfo) (Handle, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.OpenCount++
	return f.Handle, nil
}

// FakeHandle serves scripted read results. Each Read consumes the next
// entry; when the script is exhausted it reports no data.
type FakeHandle struct {
	Reads  []FakeRead
	index  int
	Closed bool
}

// FakeRead is one scripted Read result. A nil Report with a nil Err means
// "no data within the timeout".
type FakeRead struct {
	Report []byte
	Err    error
}

func (f *FakeHandle) Read(buf []byte, timeout time.Duration) (int, error) {
	if f.index >= len(f.Reads) {
		return 0, nil
	}
	r := f.Reads[f.index]
	f.index++
	if r.Err != nil {
		return 0, r.Err
	}
	return copy(buf, r.Report), nil
}

func (f *FakeHandle) Close() error {
	f.Closed = true
	return nil
}
