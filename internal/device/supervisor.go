package device

import (
	"sync"
	"time"

	"stalks-service/internal/logger"
	"stalks-service/internal/types"
)

// Defaults for the supervisor configuration.
const (
	DefaultProductName    = "MOZA Multi-function Stalk"
	DefaultReadTimeout    = 50 * time.Millisecond
	DefaultReconnectDelay = 2 * time.Second
	DefaultMaxReadErrors  = 5
	DefaultReportSize     = 64
)

// Config tunes the supervisor. Zero fields fall back to the defaults.
type Config struct {
	// ProductName is matched exactly against the enumerated product
	// string. No fuzzy matching: rigs commonly expose several similarly
	// named HID interfaces and opening the wrong one reads garbage.
	ProductName string

	ReadTimeout    time.Duration
	ReconnectDelay time.Duration
	MaxReadErrors  int
	ReportSize     int
}

func (c *Config) applyDefaults() {
	if c.ProductName == "" {
		c.ProductName = DefaultProductName
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReadErrors == 0 {
		c.MaxReadErrors = DefaultMaxReadErrors
	}
	if c.ReportSize == 0 {
		c.ReportSize = DefaultReportSize
	}
}

// Status is a point-in-time view of the device link, read by the
// foreground status loop.
type Status struct {
	State      types.ConnectionState
	Device     string
	ReadErrors int
}

// Supervisor owns the device handle lifecycle. All mutating calls come
// from the single monitor goroutine; the mutex only protects Status reads
// from the foreground.
type Supervisor struct {
	cfg       Config
	transport Transport
	logger    *logger.Logger

	mu         sync.RWMutex
	handle     Handle
	device     DeviceInfo
	connected  bool
	readErrors int
}

func NewSupervisor(transport Transport, cfg Config, l *logger.Logger) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:       cfg,
		transport: transport,
		logger:    l.WithTag("device"),
	}
}

// Connected reports whether a handle is currently open.
func (s *Supervisor) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ReconnectDelay is how long the caller should wait after a failed
// EnsureConnected before trying again.
func (s *Supervisor) ReconnectDelay() time.Duration {
	return s.cfg.ReconnectDelay
}

// EnsureConnected is a no-op when already connected. Otherwise it
// discovers the device by exact product-name match and opens it. On
// failure it returns false and the caller waits ReconnectDelay before the
// next attempt, which throttles enumeration storms.
func (s *Supervisor) EnsureConnected() bool {
	if s.Connected() {
		return true
	}

	s.Disconnect()

	info, ok := s.discover()
	if !ok {
		return false
	}

	handle, err := s.transport.Open(info)
	if err != nil {
		s.logger.Warnf("Failed to open device: %v", err)
		return false
	}

	s.mu.Lock()
	s.handle = handle
	s.device = info
	s.connected = true
	s.readErrors = 0
	s.mu.Unlock()

	s.logger.Infof("Connected to %s (%04x:%04x)", info.Product, info.VendorID, info.ProductID)
	return true
}

func (s *Supervisor) discover() (DeviceInfo, bool) {
	devices, err := s.transport.Enumerate()
	if err != nil {
		s.logger.Warnf("Error enumerating HID devices: %v", err)
		return DeviceInfo{}, false
	}

	for _, dev := range devices {
		if dev.Product == s.cfg.ProductName {
			return dev, true
		}
	}

	s.logger.Infof("Device %q not found among %d HID devices", s.cfg.ProductName, len(devices))
	for i, dev := range devices {
		if i >= 10 {
			break
		}
		s.logger.Debugf("  %s - %04x:%04x", dev.Product, dev.VendorID, dev.ProductID)
	}
	return DeviceInfo{}, false
}

// Read polls the device for one report, bounded by the configured read
// timeout. Returns (nil, nil) when no report arrived in time. Consecutive
// I/O failures are counted; reaching the threshold forces a disconnect so
// the next cycle re-discovers the device instead of spinning on a
// half-dead handle. Any successful read resets the counter.
func (s *Supervisor) Read() ([]byte, error) {
	s.mu.RLock()
	handle := s.handle
	connected := s.connected
	s.mu.RUnlock()

	if !connected || handle == nil {
		return nil, nil
	}

	buf := make([]byte, s.cfg.ReportSize)
	n, err := handle.Read(buf, s.cfg.ReadTimeout)
	if err != nil {
		s.mu.Lock()
		s.readErrors++
		errors := s.readErrors
		s.mu.Unlock()

		s.logger.Warnf("Device read error (%d/%d): %v", errors, s.cfg.MaxReadErrors, err)
		if errors >= s.cfg.MaxReadErrors {
			s.logger.Warnf("Max read errors reached, device may be disconnected")
			s.Disconnect()
		}
		return nil, err
	}

	s.mu.Lock()
	s.readErrors = 0
	s.mu.Unlock()

	if n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// Disconnect closes the handle. Close failures are logged and swallowed;
// closing an already-dead handle must not propagate.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.connected = false
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			s.logger.Warnf("Error closing device: %v", err)
		}
	}
}

// Status returns a snapshot of the link state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{State: types.Disconnected, ReadErrors: s.readErrors}
	if s.connected {
		st.State = types.Connected
		st.Device = s.device.Product
	}
	return st
}
