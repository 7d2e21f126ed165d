package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"stalks-service/internal/logger"
)

const (
	// ShmPath is where the telemetry plugin's shared memory appears on
	// Linux (and under Proton for the Windows builds of the simulator).
	ShmPath = "/dev/shm/SCS/SCSTelemetry"

	shmSize = 32 * 1024
)

// Byte offsets into the telemetry plugin's shared-memory map.
// Booleans are single bytes, floats are little-endian float32.
const (
	offSdkActive = 0

	offBlinkerLeftActive  = 1548
	offBlinkerRightActive = 1549
	offBlinkerLeftOn      = 1550
	offBlinkerRightOn     = 1551
	offLightsParking      = 1552
	offLightsBeamLow      = 1553
	offLightsHazards      = 1555

	offRainIntensity = 2324
)

// SharedMemorySource maps the telemetry segment and decodes snapshots
// from it. Implements Source.
type SharedMemorySource struct {
	path   string
	logger *logger.Logger

	// Init may run from a background retry loop while the monitor reads.
	mu   sync.RWMutex
	file *os.File
	buf  []byte
}

func NewSharedMemorySource(path string, l *logger.Logger) *SharedMemorySource {
	if path == "" {
		path = ShmPath
	}
	return &SharedMemorySource{path: path, logger: l.WithTag("telemetry")}
}

func (s *SharedMemorySource) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("telemetry shared memory not available: %w", err)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, shmSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to map telemetry shared memory: %w", err)
	}

	s.file = f
	s.buf = buf
	s.logger.Infof("Mapped telemetry shared memory at %s", s.path)
	return nil
}

func (s *SharedMemorySource) Get() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buf == nil {
		return nil, fmt.Errorf("telemetry not initialized")
	}
	if s.buf[offSdkActive] == 0 {
		return nil, fmt.Errorf("telemetry SDK inactive")
	}
	snap := decode(s.buf)
	return &snap, nil
}

func (s *SharedMemorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		if err := unix.Munmap(s.buf); err != nil {
			s.logger.Warnf("Failed to unmap telemetry shared memory: %v", err)
		}
		s.buf = nil
	}
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

func decode(buf []byte) Snapshot {
	return Snapshot{
		BlinkerLeftActive:  buf[offBlinkerLeftActive] != 0,
		BlinkerRightActive: buf[offBlinkerRightActive] != 0,
		BlinkerLeftOn:      buf[offBlinkerLeftOn] != 0,
		BlinkerRightOn:     buf[offBlinkerRightOn] != 0,
		LightsParking:      buf[offLightsParking] != 0,
		LightsBeamLow:      buf[offLightsBeamLow] != 0,
		LightsHazards:      buf[offLightsHazards] != 0,
		RainIntensity:      float32frombytes(buf[offRainIntensity:]),
	}
}

func float32frombytes(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
