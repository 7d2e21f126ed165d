package controls

import (
	"errors"
	"testing"
	"time"

	"stalks-service/internal/logger"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

// fakeSink records every write and tracks live output levels.
type fakeSink struct {
	writes []write
	levels map[Output]bool

	// failOn makes Set fail once for the given output.
	failOn Output
	failed bool
}

type write struct {
	out   Output
	value bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{levels: make(map[Output]bool)}
}

func (f *fakeSink) Set(out Output, value bool) error {
	if out == f.failOn && !f.failed {
		f.failed = true
		return errors.New("write failed")
	}
	f.writes = append(f.writes, write{out, value})
	f.levels[out] = value
	return nil
}

func (f *fakeSink) wiperLevelsHeld() int {
	n := 0
	for _, out := range WiperOutputs {
		if f.levels[out] {
			n++
		}
	}
	return n
}

func newTestReconciler(sink Sink) *Reconciler {
	l := logger.NewLogger(nil, logger.LogLevelError)
	r := NewReconciler(sink, l)
	r.sleep = func(time.Duration) {}
	return r
}

func TestReconcileNilSnapshot(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	if err := r.Reconcile(types.Desired{Indicator: types.IndicatorLeft}, nil); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(sink.writes) != 0 {
		t.Errorf("Expected no writes without telemetry, got %v", sink.writes)
	}
}

func TestReconcileIndicatorActivateRight(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	snap := &telemetry.Snapshot{}
	err := r.reconcileIndicators(types.IndicatorRight, snap)
	if err != nil {
		t.Fatalf("reconcileIndicators failed: %v", err)
	}

	// Pulse: rblinker high then low. Left is never touched.
	if len(sink.writes) != 2 {
		t.Fatalf("Expected 2 writes, got %v", sink.writes)
	}
	if sink.writes[0] != (write{OutRightBlinker, true}) || sink.writes[1] != (write{OutRightBlinker, false}) {
		t.Errorf("Expected rblinker pulse, got %v", sink.writes)
	}
}

func TestReconcileIndicatorAlreadyActive(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	snap := &telemetry.Snapshot{BlinkerRightActive: true}
	if err := r.reconcileIndicators(types.IndicatorRight, snap); err != nil {
		t.Fatalf("reconcileIndicators failed: %v", err)
	}
	if len(sink.writes) != 0 {
		t.Errorf("Expected no pulse when already converged, got %v", sink.writes)
	}
}

func TestReconcileIndicatorDeferredWhileLit(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	// Left is active and currently lit; desired off. The toggle must wait
	// for the dark phase of the blink cycle.
	snap := &telemetry.Snapshot{BlinkerLeftActive: true, BlinkerLeftOn: true}
	if err := r.reconcileIndicators(types.IndicatorOff, snap); err != nil {
		t.Fatalf("reconcileIndicators failed: %v", err)
	}
	if len(sink.writes) != 0 {
		t.Errorf("Expected no pulse mid-blink, got %v", sink.writes)
	}

	snap = &telemetry.Snapshot{BlinkerLeftActive: true}
	if err := r.reconcileIndicators(types.IndicatorOff, snap); err != nil {
		t.Fatalf("reconcileIndicators failed: %v", err)
	}
	if len(sink.writes) != 2 || sink.writes[0] != (write{OutLeftBlinker, true}) {
		t.Errorf("Expected lblinker pulse once dark, got %v", sink.writes)
	}
}

func TestReconcileIndicatorHazardsUntouched(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	snap := &telemetry.Snapshot{
		BlinkerLeftActive:  true,
		BlinkerRightActive: true,
		LightsHazards:      true,
	}
	if err := r.reconcileIndicators(types.IndicatorOff, snap); err != nil {
		t.Fatalf("reconcileIndicators failed: %v", err)
	}
	if len(sink.writes) != 0 {
		t.Errorf("Hazards own the blinkers; expected no writes, got %v", sink.writes)
	}
}

func TestReconcileIndicatorIdempotent(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	// Converged state: repeated calls emit nothing.
	snap := &telemetry.Snapshot{BlinkerLeftActive: true}
	for i := 0; i < 3; i++ {
		if err := r.reconcileIndicators(types.IndicatorLeft, snap); err != nil {
			t.Fatalf("reconcileIndicators failed: %v", err)
		}
	}
	if len(sink.writes) != 0 {
		t.Errorf("Expected no writes for converged state, got %v", sink.writes)
	}
}

func TestReconcileLightsCycles(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	// Actual off, desired low beam: one toggle pulse per pass.
	snap := &telemetry.Snapshot{}
	if err := r.reconcileLights(types.LightsLowBeam, snap); err != nil {
		t.Fatalf("reconcileLights failed: %v", err)
	}
	if len(sink.writes) != 2 || sink.writes[0] != (write{OutLightToggle, true}) || sink.writes[1] != (write{OutLightToggle, false}) {
		t.Errorf("Expected single light toggle pulse, got %v", sink.writes)
	}
}

func TestReconcileLightsConverged(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	snap := &telemetry.Snapshot{LightsBeamLow: true}
	if err := r.reconcileLights(types.LightsLowBeam, snap); err != nil {
		t.Fatalf("reconcileLights failed: %v", err)
	}
	if len(sink.writes) != 0 {
		t.Errorf("Expected no writes when lights converged, got %v", sink.writes)
	}
}

func TestReconcileLightsLowBeamAtStartupUntouched(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	// A truck already running low beams, against the automation's startup
	// desired state: the light toggle must stay quiet.
	desired := types.Desired{
		Indicator: types.IndicatorOff,
		Lights:    types.LightsLowBeam,
		Wipers:    types.WipersOff,
	}
	snap := &telemetry.Snapshot{LightsBeamLow: true}
	if err := r.Reconcile(desired, snap); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	for _, w := range sink.writes {
		if w.out == OutLightToggle {
			t.Fatalf("Light toggle written during converged startup pass: %v", sink.writes)
		}
	}
}

func TestReconcileWipersExclusive(t *testing.T) {
	sink := newFakeSink()
	r := newTestReconciler(sink)

	states := []types.WiperState{
		types.WipersOff, types.WipersIntermittent, types.WipersLow,
		types.WipersHigh, types.WipersManual, types.WipersOff,
	}
	snap := &telemetry.Snapshot{}
	for _, s := range states {
		if err := r.reconcileWipers(s, snap); err != nil {
			t.Fatalf("reconcileWipers(%s) failed: %v", s, err)
		}
		if held := sink.wiperLevelsHeld(); held != 1 {
			t.Errorf("After %s: %d wiper levels held, want exactly 1", s, held)
		}
	}
}

func TestReconcileWipersSelection(t *testing.T) {
	cases := []struct {
		state types.WiperState
		rain  float32
		want  Output
	}{
		{types.WipersOff, 0, OutTripReset},
		{types.WipersOff, 0.5, OutWipersBack}, // rain sensor gate
		{types.WipersIntermittent, 0, OutWipersBack},
		{types.WipersLow, 0, OutWipersLow},
		{types.WipersManual, 0, OutWipersLow},
		{types.WipersHigh, 0, OutWipersHigh},
	}

	for _, c := range cases {
		sink := newFakeSink()
		r := newTestReconciler(sink)
		snap := &telemetry.Snapshot{RainIntensity: c.rain}
		if err := r.reconcileWipers(c.state, snap); err != nil {
			t.Fatalf("reconcileWipers(%s) failed: %v", c.state, err)
		}
		if !sink.levels[c.want] {
			t.Errorf("%s (rain=%v): expected %s held, levels=%v", c.state, c.rain, c.want, sink.levels)
		}
	}
}

func TestPulseReleasesOnError(t *testing.T) {
	sink := newFakeSink()
	sink.failOn = OutRightBlinker
	r := newTestReconciler(sink)

	err := r.pulse(OutLeftBlinker, OutRightBlinker)
	if err == nil {
		t.Fatal("Expected error from failing sink")
	}
	// The left output was raised before the failure; it must be released.
	if sink.levels[OutLeftBlinker] {
		t.Error("lblinker left high after failed pulse")
	}
}

func TestSlotOffsets(t *testing.T) {
	// Four floats precede the booleans.
	cases := map[string]int{
		"steering":   0,
		"clutch":     12,
		"pause":      16,
		"light":      23,
		"lblinker":   25,
		"rblinker":   26,
		"tripreset":  33,
		"wipersback": 34,
		"wipers0":    35,
		"wipers1":    36,
		"assistact5": 61,
	}
	for name, want := range cases {
		if got := slotOffsets[name]; got != want {
			t.Errorf("Offset of %s: got %d, want %d", name, got, want)
		}
	}
	if shmSize != 62 {
		t.Errorf("Segment size: got %d, want 62", shmSize)
	}
}
