package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stalks-service/internal/device"
	"stalks-service/internal/logger"
	"stalks-service/internal/stalk"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

type fakeSource struct {
	snap *telemetry.Snapshot
	err  error
}

func (f *fakeSource) Init() error                       { return nil }
func (f *fakeSource) Get() (*telemetry.Snapshot, error) { return f.snap, f.err }
func (f *fakeSource) Close() error                      { return nil }

type fakeReconciler struct {
	calls   int
	desired types.Desired
	snap    *telemetry.Snapshot
	err     error
}

func (f *fakeReconciler) Reconcile(desired types.Desired, snap *telemetry.Snapshot) error {
	f.calls++
	f.desired = desired
	f.snap = snap
	return f.err
}

type fakeMessaging struct {
	events []string
}

func (f *fakeMessaging) SetIndicatorState(state types.IndicatorState) error {
	f.events = append(f.events, "blinker:"+string(state))
	return nil
}

func (f *fakeMessaging) SetLightState(state types.LightState) error {
	f.events = append(f.events, "lights:"+state.String())
	return nil
}

func (f *fakeMessaging) SetWiperState(state types.WiperState) error {
	f.events = append(f.events, "wipers:"+state.String())
	return nil
}

func (f *fakeMessaging) SetConnectionState(state types.ConnectionState, deviceName string) error {
	f.events = append(f.events, fmt.Sprintf("connection:%s:%s", state, deviceName))
	return nil
}

// pressReport builds a 64-byte report with the given buttons held.
func pressReport(buttons ...int) []byte {
	buf := make([]byte, device.DefaultReportSize)
	for _, b := range buttons {
		buf[b/8] |= 1 << (b % 8)
	}
	return buf
}

type monitorFixture struct {
	monitor    *Monitor
	supervisor *device.Supervisor
	transport  *device.FakeTransport
	handle     *device.FakeHandle
	source     *fakeSource
	reconciler *fakeReconciler
	messaging  *fakeMessaging
	sleeps     []time.Duration
}

func newMonitorFixture(t *testing.T, reads []device.FakeRead) *monitorFixture {
	t.Helper()
	log := logger.NewLogger(nil, logger.LogLevelNone)

	handle := &device.FakeHandle{Reads: reads}
	transport := &device.FakeTransport{
		Devices: []device.DeviceInfo{{
			Path:    "/dev/hidraw0",
			Product: device.DefaultProductName,
		}},
		Handle: handle,
	}
	supervisor := device.NewSupervisor(transport, device.Config{}, log)

	automation := stalk.New(stalk.Config{}, log)
	if err := automation.Start(context.Background()); err != nil {
		t.Fatalf("automation start failed: %v", err)
	}

	f := &monitorFixture{
		supervisor: supervisor,
		transport:  transport,
		handle:     handle,
		source:     &fakeSource{snap: &telemetry.Snapshot{}},
		reconciler: &fakeReconciler{},
		messaging:  &fakeMessaging{},
	}
	f.monitor = NewMonitor(supervisor, f.source, automation, f.reconciler, f.messaging, Config{}, log)
	f.monitor.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func TestCycleButtonPressDrivesReconciliation(t *testing.T) {
	f := newMonitorFixture(t, []device.FakeRead{
		{Report: pressReport()},
		{Report: pressReport(stalk.ButtonIndicatorLeft)},
	})

	f.monitor.cycle() // baseline
	if got := f.monitor.Status().Desired.Indicator; got != types.IndicatorOff {
		t.Fatalf("indicator after baseline = %s, want off", got)
	}

	f.monitor.cycle() // press
	st := f.monitor.Status()
	if st.Desired.Indicator != types.IndicatorLeft {
		t.Fatalf("indicator after press = %s, want left", st.Desired.Indicator)
	}
	if f.reconciler.calls != 2 {
		t.Fatalf("reconciler calls = %d, want 2", f.reconciler.calls)
	}
	if f.reconciler.desired.Indicator != types.IndicatorLeft {
		t.Fatalf("reconciled indicator = %s, want left", f.reconciler.desired.Indicator)
	}
	if f.reconciler.snap == nil {
		t.Fatal("reconciler got nil snapshot")
	}
}

func TestFirstReportIsBaseline(t *testing.T) {
	// Buttons already held at connect time must not fire as presses.
	f := newMonitorFixture(t, []device.FakeRead{
		{Report: pressReport(stalk.ButtonIndicatorRight)},
	})

	f.monitor.cycle()
	if got := f.monitor.Status().Desired.Indicator; got != types.IndicatorOff {
		t.Fatalf("indicator after held-at-connect report = %s, want off", got)
	}
}

func TestDisconnectedSleepsReconnectDelay(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.transport.Devices = nil

	f.monitor.cycle()
	if f.reconciler.calls != 0 {
		t.Fatalf("reconciler called while disconnected")
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != device.DefaultReconnectDelay {
		t.Fatalf("sleeps = %v, want [%v]", f.sleeps, device.DefaultReconnectDelay)
	}
}

func TestTelemetryErrorSkipsReconciliation(t *testing.T) {
	f := newMonitorFixture(t, []device.FakeRead{
		{Report: pressReport()},
		{Report: pressReport(stalk.ButtonIndicatorLeft)},
	})
	f.source.snap = nil
	f.source.err = errors.New("simulator not running")

	f.monitor.cycle()
	f.monitor.cycle()

	// Button state advances even without telemetry.
	if got := f.monitor.Status().Desired.Indicator; got != types.IndicatorLeft {
		t.Fatalf("indicator = %s, want left", got)
	}
	if f.reconciler.calls != 0 {
		t.Fatalf("reconciler calls = %d, want 0", f.reconciler.calls)
	}
}

func TestReadErrorPausesLoop(t *testing.T) {
	f := newMonitorFixture(t, []device.FakeRead{
		{Err: errors.New("read failed")},
	})

	f.monitor.cycle()
	if f.reconciler.calls != 0 {
		t.Fatalf("reconciler called after read error")
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != DefaultReadErrorPause {
		t.Fatalf("sleeps = %v, want [%v]", f.sleeps, DefaultReadErrorPause)
	}
}

func TestReconnectResetsReportBaseline(t *testing.T) {
	f := newMonitorFixture(t, []device.FakeRead{
		{Report: pressReport()},
		{Report: pressReport(stalk.ButtonIndicatorLeft)},
		// After the reconnect below: right held, but as a fresh baseline.
		{Report: pressReport(stalk.ButtonIndicatorRight)},
	})

	f.monitor.cycle()
	f.monitor.cycle()
	if got := f.monitor.Status().Desired.Indicator; got != types.IndicatorLeft {
		t.Fatalf("indicator = %s, want left", got)
	}

	f.supervisor.Disconnect()
	f.monitor.cycle()
	if got := f.monitor.Status().Desired.Indicator; got != types.IndicatorLeft {
		t.Fatalf("indicator after reconnect baseline = %s, want left (unchanged)", got)
	}
	if f.transport.OpenCount != 2 {
		t.Fatalf("open count = %d, want 2", f.transport.OpenCount)
	}
}

func TestPublishesConnectionAndStateChanges(t *testing.T) {
	f := newMonitorFixture(t, []device.FakeRead{
		{Report: pressReport()},
		{Report: pressReport(stalk.ButtonIndicatorLeft)},
	})

	f.monitor.cycle()
	want := []string{
		"connection:connected:" + device.DefaultProductName,
		"blinker:off",
		"lights:low-beam",
		"wipers:off",
	}
	if len(f.messaging.events) != len(want) {
		t.Fatalf("events after first cycle = %v, want %v", f.messaging.events, want)
	}
	for i, ev := range want {
		if f.messaging.events[i] != ev {
			t.Fatalf("event[%d] = %s, want %s", i, f.messaging.events[i], ev)
		}
	}

	f.monitor.cycle()
	last := f.messaging.events[len(f.messaging.events)-1]
	if last != "blinker:left" {
		t.Fatalf("last event = %s, want blinker:left", last)
	}
}

func TestNilMessagingTolerated(t *testing.T) {
	f := newMonitorFixture(t, []device.FakeRead{
		{Report: pressReport()},
	})
	f.monitor.messaging = nil

	f.monitor.cycle()
	if f.reconciler.calls != 1 {
		t.Fatalf("reconciler calls = %d, want 1", f.reconciler.calls)
	}
}

func TestStartStop(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.transport.Devices = nil
	f.monitor.sleep = func(time.Duration) { time.Sleep(time.Millisecond) }

	f.monitor.Start()
	time.Sleep(10 * time.Millisecond)
	f.monitor.Stop()

	select {
	case <-f.monitor.done:
	default:
		t.Fatal("worker goroutine still running after Stop")
	}
}
