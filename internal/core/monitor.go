package core

import (
	"time"

	"stalks-service/internal/device"
	"stalks-service/internal/logger"
	"stalks-service/internal/report"
	"stalks-service/internal/stalk"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

const (
	// DefaultReadErrorPause keeps a flapping device from spinning the loop.
	DefaultReadErrorPause = 100 * time.Millisecond

	// DefaultStopTimeout bounds the wait for the worker to finish its cycle.
	DefaultStopTimeout = 3 * time.Second
)

// Config tunes the monitor loop.
type Config struct {
	ReadErrorPause time.Duration
	StopTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReadErrorPause == 0 {
		c.ReadErrorPause = DefaultReadErrorPause
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
}

// Status is a point-in-time view of the whole bridge.
type Status struct {
	Device     device.Status
	Desired    types.Desired
	BlinkCount int
}

// Monitor runs the bridge: it supervises the device link, turns HID reports
// into button events, advances the turn-signal automation, and reconciles the
// simulated vehicle. All stalk state is mutated from its single worker
// goroutine.
type Monitor struct {
	cfg        Config
	link       DeviceLink
	source     telemetry.Source
	automation *stalk.Automation
	reconciler Reconciler
	messaging  MessagingClient
	differ     *report.Differ
	logger     *logger.Logger

	// injectable for tests
	sleep func(time.Duration)
	now   func() time.Time

	stop chan struct{}
	done chan struct{}

	// worker-goroutine state
	wasConnected  bool
	published     types.Desired
	publishedOnce bool
}

func NewMonitor(link DeviceLink, source telemetry.Source, automation *stalk.Automation,
	reconciler Reconciler, messaging MessagingClient, cfg Config, l *logger.Logger) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:        cfg,
		link:       link,
		source:     source,
		automation: automation,
		reconciler: reconciler,
		messaging:  messaging,
		differ:     report.NewDiffer(),
		logger:     l.WithTag("monitor"),
		sleep:      time.Sleep,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (m *Monitor) Start() {
	m.logger.Infof("Starting monitor loop")
	go m.run()
}

// Stop asks the worker to finish its current cycle and waits for it, bounded
// by the configured stop timeout.
func (m *Monitor) Stop() {
	close(m.stop)
	select {
	case <-m.done:
		m.logger.Infof("Monitor loop stopped")
	case <-time.After(m.cfg.StopTimeout):
		m.logger.Warnf("Timeout waiting for monitor loop to stop")
	}
	m.link.Disconnect()
}

// Status reports the current bridge state for the foreground status loop.
func (m *Monitor) Status() Status {
	return Status{
		Device:     m.link.Status(),
		Desired:    m.automation.Desired(),
		BlinkCount: m.automation.BlinkCount(),
	}
}

func (m *Monitor) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		default:
			m.cycle()
		}
	}
}

// cycle is one pass of the monitor loop. Order matters: connection first,
// then input, then vehicle feedback, then outputs.
func (m *Monitor) cycle() {
	wasUp := m.link.Connected()
	if !m.link.EnsureConnected() {
		if m.wasConnected {
			m.wasConnected = false
			m.publishConnection()
		}
		m.sleep(m.link.ReconnectDelay())
		return
	}
	if !wasUp {
		// Fresh handle: the next report is a baseline, not a change.
		m.differ.Reset()
		m.publishConnection()
	}
	m.wasConnected = true

	data, err := m.link.Read()
	if err != nil {
		m.logger.Warnf("Read failed: %v", err)
		m.sleep(m.cfg.ReadErrorPause)
		return
	}

	snap, err := m.source.Get()
	if err != nil {
		// Simulator not running or telemetry stale. Button state still
		// advances; vehicle-driven automation waits.
		m.logger.Debugf("No telemetry: %v", err)
		snap = nil
	}

	now := m.now()
	if data != nil {
		for _, ev := range m.differ.Diff(data) {
			if ev.Edge == report.Pressed {
				m.automation.HandlePress(ev.ButtonID, now)
			}
		}
	}
	m.automation.ResolveCooldown(now)
	m.automation.ObserveVehicle(snap)

	if snap != nil {
		if err := m.reconciler.Reconcile(m.automation.Desired(), snap); err != nil {
			m.logger.Warnf("Reconciliation failed: %v", err)
		}
	}

	m.publishDesired()
}

func (m *Monitor) publishConnection() {
	if m.messaging == nil {
		return
	}
	st := m.link.Status()
	if err := m.messaging.SetConnectionState(st.State, st.Device); err != nil {
		m.logger.Warnf("Failed to publish connection state: %v", err)
	}
}

// publishDesired mirrors changed stalk state fields to Redis.
func (m *Monitor) publishDesired() {
	if m.messaging == nil {
		return
	}
	desired := m.automation.Desired()
	if m.publishedOnce && desired == m.published {
		return
	}
	if !m.publishedOnce || desired.Indicator != m.published.Indicator {
		if err := m.messaging.SetIndicatorState(desired.Indicator); err != nil {
			m.logger.Warnf("Failed to publish indicator state: %v", err)
		}
	}
	if !m.publishedOnce || desired.Lights != m.published.Lights {
		if err := m.messaging.SetLightState(desired.Lights); err != nil {
			m.logger.Warnf("Failed to publish light state: %v", err)
		}
	}
	if !m.publishedOnce || desired.Wipers != m.published.Wipers {
		if err := m.messaging.SetWiperState(desired.Wipers); err != nil {
			m.logger.Warnf("Failed to publish wiper state: %v", err)
		}
	}
	m.published = desired
	m.publishedOnce = true
}
