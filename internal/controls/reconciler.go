package controls

import (
	"time"

	"stalks-service/internal/logger"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

// DefaultSettleTime is how long a pulsed control is held high before it is
// released; the input plugin samples edges, not levels.
const DefaultSettleTime = 50 * time.Millisecond

// Reconciler converges the simulated vehicle onto the desired
// indicator/light/wiper state, emitting the minimal set of control writes
// per cycle. All comparisons run against the vehicle's own telemetry, so
// the reconciler self-corrects if the game and the stalk drift apart.
type Reconciler struct {
	sink   Sink
	logger *logger.Logger
	settle time.Duration
	sleep  func(time.Duration)
}

func NewReconciler(sink Sink, l *logger.Logger) *Reconciler {
	return &Reconciler{
		sink:   sink,
		logger: l.WithTag("reconcile"),
		settle: DefaultSettleTime,
		sleep:  time.Sleep,
	}
}

// Reconcile runs one convergence pass. A nil snapshot means telemetry was
// unavailable this cycle; nothing is written.
func (r *Reconciler) Reconcile(desired types.Desired, snap *telemetry.Snapshot) error {
	if snap == nil {
		return nil
	}
	if err := r.reconcileIndicators(desired.Indicator, snap); err != nil {
		return err
	}
	if err := r.reconcileLights(desired.Lights, snap); err != nil {
		return err
	}
	return r.reconcileWipers(desired.Wipers, snap)
}

// reconcileIndicators pulses the blinker toggle controls until the
// vehicle's active flags match the desired direction. No pulse is sent
// while either light is mid-blink ("on") since the game ignores toggles
// during the lit phase, and none while hazards own the blinkers.
func (r *Reconciler) reconcileIndicators(desired types.IndicatorState, snap *telemetry.Snapshot) error {
	if snap.LightsHazards {
		return nil
	}

	var pulseLeft, pulseRight bool
	switch desired {
	case types.IndicatorLeft:
		pulseLeft = !snap.BlinkerLeftActive
	case types.IndicatorRight:
		pulseRight = !snap.BlinkerRightActive
	case types.IndicatorOff:
		pulseLeft = snap.BlinkerLeftActive
		pulseRight = snap.BlinkerRightActive
	}

	if !pulseLeft && !pulseRight {
		return nil
	}
	if snap.BlinkerLeftOn || snap.BlinkerRightOn {
		return nil
	}

	var outs []Output
	if pulseLeft {
		outs = append(outs, OutLeftBlinker)
	}
	if pulseRight {
		outs = append(outs, OutRightBlinker)
	}
	r.logger.Debugf("Pulsing indicators: left=%v right=%v", pulseLeft, pulseRight)
	return r.pulse(outs...)
}

// reconcileLights steps the cycling light control one position towards the
// desired selector state. The control cycles off -> parking -> low beam,
// so convergence may take several cycles.
func (r *Reconciler) reconcileLights(desired types.LightState, snap *telemetry.Snapshot) error {
	actual := types.LightsOff
	if snap.LightsBeamLow {
		actual = types.LightsLowBeam
	} else if snap.LightsParking {
		actual = types.LightsParking
	}

	if actual == desired {
		return nil
	}

	r.logger.Debugf("Cycling lights: actual=%s desired=%s", actual, desired)
	if err := r.pulse(OutLightToggle); err != nil {
		return err
	}
	// Space consecutive toggles so the plugin sees distinct edges.
	r.sleep(r.settle)
	return nil
}

// reconcileWipers holds exactly one of the mutually exclusive wiper level
// outputs. All others are cleared first so no two levels ever overlap.
func (r *Reconciler) reconcileWipers(desired types.WiperState, snap *telemetry.Snapshot) error {
	var selected Output
	switch {
	case desired == types.WipersOff && snap.Rain():
		selected = OutWipersBack // rain sensor mode
	case desired == types.WipersOff:
		selected = OutTripReset
	case desired == types.WipersIntermittent:
		selected = OutWipersBack
	case desired == types.WipersLow, desired == types.WipersManual:
		selected = OutWipersLow
	case desired == types.WipersHigh:
		selected = OutWipersHigh
	default:
		selected = OutTripReset
	}

	for _, out := range WiperOutputs {
		if out == selected {
			continue
		}
		if err := r.sink.Set(out, false); err != nil {
			return err
		}
	}
	return r.sink.Set(selected, true)
}

// pulse raises the given outputs, waits the settle time, and releases
// them. The release runs even when a write fails part-way, so no control
// is ever left high across the error path.
func (r *Reconciler) pulse(outs ...Output) (err error) {
	defer func() {
		for _, out := range outs {
			if rerr := r.sink.Set(out, false); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	for _, out := range outs {
		if err = r.sink.Set(out, true); err != nil {
			return err
		}
	}
	r.sleep(r.settle)
	return nil
}
