package controls

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"stalks-service/internal/logger"
)

// ShmPath is the simulator input plugin's control segment on Linux.
const ShmPath = "/dev/shm/SCS/SCSControls"

type slotKind int

const (
	slotFloat slotKind = iota // 4 bytes, little-endian float32
	slotBool                  // 1 byte
)

type slot struct {
	name string
	kind slotKind
}

// slots mirrors the input plugin's control table. Offsets are implied by
// declaration order: floats first, then one byte per boolean control.
// The order must match the plugin exactly; do not reorder.
var slots = []slot{
	{"steering", slotFloat},
	{"aforward", slotFloat},
	{"abackward", slotFloat},
	{"clutch", slotFloat},
	{"pause", slotBool},
	{"parkingbrake", slotBool},
	{"wipers", slotBool},
	{"cruiectrl", slotBool},
	{"cruiectrlinc", slotBool},
	{"cruiectrldec", slotBool},
	{"cruiectrlres", slotBool},
	{"light", slotBool},
	{"hblight", slotBool},
	{"lblinker", slotBool},
	{"rblinker", slotBool},
	{"lblinkerh", slotBool},
	{"rblinkerh", slotBool},
	{"quickpark", slotBool},
	{"drive", slotBool},
	{"reverse", slotBool},
	{"cycl_zoom", slotBool},
	{"tripreset", slotBool},
	{"wipersback", slotBool},
	{"wipers0", slotBool},
	{"wipers1", slotBool},
	{"wipers2", slotBool},
	{"wipers3", slotBool},
	{"wipers4", slotBool},
	{"horn", slotBool},
	{"airhorn", slotBool},
	{"lighthorn", slotBool},
	{"cam1", slotBool},
	{"cam2", slotBool},
	{"cam3", slotBool},
	{"cam4", slotBool},
	{"cam5", slotBool},
	{"cam6", slotBool},
	{"cam7", slotBool},
	{"cam8", slotBool},
	{"mapzoom_in", slotBool},
	{"mapzoom_out", slotBool},
	{"accmode", slotBool},
	{"showmirrors", slotBool},
	{"flasher4way", slotBool},
	{"activate", slotBool},
	{"assistact1", slotBool},
	{"assistact2", slotBool},
	{"assistact3", slotBool},
	{"assistact4", slotBool},
	{"assistact5", slotBool},
}

var (
	slotOffsets = make(map[string]int, len(slots))
	shmSize     int
)

func init() {
	off := 0
	for _, s := range slots {
		slotOffsets[s.name] = off
		switch s.kind {
		case slotFloat:
			off += 4
		case slotBool:
			off++
		}
	}
	shmSize = off
}

// SharedMemorySink writes boolean controls into the mapped segment.
// Implements Sink.
type SharedMemorySink struct {
	path   string
	logger *logger.Logger

	// Init may run from a background retry loop while the monitor writes.
	mu   sync.RWMutex
	file *os.File
	buf  []byte
}

func NewSharedMemorySink(path string, l *logger.Logger) *SharedMemorySink {
	if path == "" {
		path = ShmPath
	}
	return &SharedMemorySink{path: path, logger: l.WithTag("controls")}
}

func (s *SharedMemorySink) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("controls shared memory not available: %w", err)
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, shmSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to map controls shared memory: %w", err)
	}

	s.file = f
	s.buf = buf
	s.logger.Infof("Mapped controls shared memory at %s (%d bytes)", s.path, shmSize)
	return nil
}

func (s *SharedMemorySink) Set(out Output, value bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buf == nil {
		return fmt.Errorf("controls not initialized")
	}
	off, ok := slotOffsets[string(out)]
	if !ok {
		return fmt.Errorf("unknown control output: %s", out)
	}
	var b byte
	if value {
		b = 1
	}
	s.buf[off] = b
	return nil
}

func (s *SharedMemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		if err := unix.Munmap(s.buf); err != nil {
			s.logger.Warnf("Failed to unmap controls shared memory: %v", err)
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
