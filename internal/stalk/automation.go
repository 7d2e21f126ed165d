package stalk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"stalks-service/internal/fsm"
	"stalks-service/internal/logger"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

// Defaults for the turn-signal automation timings.
const (
	DefaultCooldown             = 150 * time.Millisecond
	DefaultAutodisableBlinks    = 3
	DefaultAutodisableThreshold = 1
)

// Config tunes the turn-signal automation.
type Config struct {
	// Cooldown is the window after a cancel press during which direction
	// presses are deferred instead of applied. The lever self-returns to
	// center after a tap, which fires a cancel press; without the window
	// that cancel would immediately kill the indicator the tap just armed.
	Cooldown time.Duration

	// AutodisableBlinks is the number of observed blink-off edges after
	// which an armed indicator cancels itself.
	AutodisableBlinks int

	// AutodisableThreshold arms auto-cancel: a cancel press arriving while
	// fewer than this many blinks have been observed keeps the indicator
	// active and lets the blink counter turn it off later.
	AutodisableThreshold int
}

func (c *Config) applyDefaults() {
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.AutodisableBlinks == 0 {
		c.AutodisableBlinks = DefaultAutodisableBlinks
	}
	if c.AutodisableThreshold == 0 {
		c.AutodisableThreshold = DefaultAutodisableThreshold
	}
}

// Automation owns the desired stalk state: the indicator state machine plus
// the light and wiper selector positions. All inputs funnel through it --
// button presses, per-cycle cooldown resolution, and vehicle feedback for
// blink counting.
type Automation struct {
	cfg     Config
	logger  *logger.Logger
	machine *librefsm.Machine

	mu sync.Mutex

	lights types.LightState
	wipers types.WiperState

	// autodisable arms the blink counter; set by a cancel press that lands
	// before the threshold, cleared by any explicit direction change.
	autodisable bool
	blinkCount  int

	// leftPending/rightPending record direction presses deferred by the
	// cooldown window. A later press simply sets the other flag too; the
	// resolver drains them one per cycle.
	leftPending  bool
	rightPending bool

	// lastTurnSignal is the time of the most recent cancel press, the
	// anchor of the cooldown window.
	lastTurnSignal time.Time

	prevBlinkerObserved bool
}

// Ensure Automation implements fsm.Actions
var _ fsm.Actions = (*Automation)(nil)

// New creates a stopped Automation; call Start before feeding it events.
func New(cfg Config, log *logger.Logger) *Automation {
	cfg.applyDefaults()
	return &Automation{
		cfg:    cfg,
		logger: log,
		// Trucks normally drive with low beams on; starting anywhere else
		// would cycle a running vehicle's lights before the driver touches
		// the collar.
		lights: types.LightsLowBeam,
	}
}

// Start builds and starts the indicator state machine.
func (a *Automation) Start(ctx context.Context) error {
	machine, err := fsm.NewDefinition(a).Build()
	if err != nil {
		return fmt.Errorf("failed to build indicator FSM: %w", err)
	}
	if err := machine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start indicator FSM: %w", err)
	}
	a.machine = machine
	return nil
}

// Indicator returns the current indicator state.
func (a *Automation) Indicator() types.IndicatorState {
	return stateToIndicator(a.machine.CurrentState())
}

// Lights returns the current light selector position.
func (a *Automation) Lights() types.LightState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lights
}

// Wipers returns the current wiper selector position.
func (a *Automation) Wipers() types.WiperState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wipers
}

// BlinkCount returns the number of blink-off edges observed since the
// indicator last changed direction.
func (a *Automation) BlinkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blinkCount
}

// Desired returns the full desired stalk state for reconciliation.
func (a *Automation) Desired() types.Desired {
	a.mu.Lock()
	lights, wipers := a.lights, a.wipers
	a.mu.Unlock()
	return types.Desired{
		Indicator: a.Indicator(),
		Lights:    lights,
		Wipers:    wipers,
	}
}

// HandlePress routes a single button press. Unknown button IDs are ignored.
func (a *Automation) HandlePress(buttonID int, now time.Time) {
	switch buttonID {
	case ButtonIndicatorRight:
		a.pressDirection(types.IndicatorRight, fsm.EvRightPress, now)
	case ButtonIndicatorLeft:
		a.pressDirection(types.IndicatorLeft, fsm.EvLeftPress, now)
	case ButtonIndicatorCancel:
		a.pressCancel(now)
	case ButtonLightsOff:
		a.setLights(types.LightsOff)
	case ButtonLightsParking:
		a.setLights(types.LightsParking)
	case ButtonLightsLowBeam:
		a.setLights(types.LightsLowBeam)
	case ButtonWipersManual:
		a.setWipers(types.WipersManual)
	case ButtonWipersOff:
		a.setWipers(types.WipersOff)
	case ButtonWipersIntermittent:
		a.setWipers(types.WipersIntermittent)
	case ButtonWipersLow:
		a.setWipers(types.WipersLow)
	case ButtonWipersHigh:
		a.setWipers(types.WipersHigh)
	default:
		a.logger.Debugf("Ignoring press of unmapped button %d", buttonID)
	}
}

func (a *Automation) pressDirection(dir types.IndicatorState, ev librefsm.EventID, now time.Time) {
	a.mu.Lock()
	if now.Sub(a.lastTurnSignal) <= a.cfg.Cooldown {
		if dir == types.IndicatorRight {
			a.rightPending = true
		} else {
			a.leftPending = true
		}
		a.mu.Unlock()
		a.logger.Debugf("Deferring %s indicator press, cooldown active", dir)
		return
	}
	a.autodisable = false
	a.mu.Unlock()

	if a.Indicator() != dir {
		a.sendEvent(ev)
	}
}

func (a *Automation) pressCancel(now time.Time) {
	a.mu.Lock()
	a.lastTurnSignal = now
	a.leftPending = false
	a.rightPending = false
	if a.blinkCount < a.cfg.AutodisableThreshold {
		// The lever just self-returned after a tap. Keep the indicator
		// active and let the blink counter cancel it.
		a.autodisable = true
		a.mu.Unlock()
		a.logger.Debugf("Cancel before blink threshold, arming auto-cancel")
		return
	}
	a.autodisable = false
	a.mu.Unlock()

	if a.Indicator() != types.IndicatorOff {
		a.sendEvent(fsm.EvCancel)
		a.logger.Infof("Indicators cancelled by stalk")
	}
}

// ResolveCooldown applies a direction press that was deferred by the cooldown
// window, once the window has elapsed. It drains at most one pending flag per
// call; with both directions pending, right resolves first and left on the
// following cycle, so the later press ends up in effect.
func (a *Automation) ResolveCooldown(now time.Time) {
	a.mu.Lock()
	if now.Sub(a.lastTurnSignal) <= a.cfg.Cooldown {
		a.mu.Unlock()
		return
	}
	var dir types.IndicatorState
	var ev librefsm.EventID
	switch {
	case a.rightPending:
		dir, ev = types.IndicatorRight, fsm.EvRightPress
		a.rightPending = false
	case a.leftPending:
		dir, ev = types.IndicatorLeft, fsm.EvLeftPress
		a.leftPending = false
	default:
		a.mu.Unlock()
		return
	}
	a.autodisable = false
	a.mu.Unlock()

	if a.Indicator() != dir {
		a.sendEvent(ev)
	}
	a.logger.Debugf("Applied deferred %s indicator press", dir)
}

// ObserveVehicle counts blink-off edges from the vehicle's blinker feedback
// and auto-cancels an armed indicator after the configured number of blinks.
// A nil snapshot is a no-op.
func (a *Automation) ObserveVehicle(snap *telemetry.Snapshot) {
	if snap == nil {
		return
	}
	dir := a.Indicator()

	observed := false
	if !snap.LightsHazards {
		switch dir {
		case types.IndicatorLeft:
			observed = snap.BlinkerLeftActive && snap.BlinkerLeftOn
		case types.IndicatorRight:
			observed = snap.BlinkerRightActive && snap.BlinkerRightOn
		}
	}

	a.mu.Lock()
	fire := false
	if dir != types.IndicatorOff && a.prevBlinkerObserved && !observed {
		a.blinkCount++
		fire = a.autodisable && a.blinkCount >= a.cfg.AutodisableBlinks
	}
	a.prevBlinkerObserved = observed
	count := a.blinkCount
	a.mu.Unlock()

	if fire {
		a.sendEvent(fsm.EvAutoCancel)
		a.logger.Infof("Indicators off after %d blinks (auto-cancel)", count)
	}
}

// RequestIndicator applies an externally requested indicator state, bypassing
// the stalk cooldown. Used by remote commands.
func (a *Automation) RequestIndicator(dir types.IndicatorState) error {
	a.mu.Lock()
	a.leftPending = false
	a.rightPending = false
	a.autodisable = false
	a.mu.Unlock()

	current := a.Indicator()
	if current == dir {
		return nil
	}
	switch dir {
	case types.IndicatorLeft:
		a.sendEvent(fsm.EvLeftPress)
	case types.IndicatorRight:
		a.sendEvent(fsm.EvRightPress)
	case types.IndicatorOff:
		a.sendEvent(fsm.EvCancel)
	default:
		return fmt.Errorf("unknown indicator state: %s", dir)
	}
	return nil
}

// RequestWipers applies an externally requested wiper level.
func (a *Automation) RequestWipers(state types.WiperState) {
	a.setWipers(state)
}

func (a *Automation) setLights(state types.LightState) {
	a.mu.Lock()
	changed := a.lights != state
	a.lights = state
	a.mu.Unlock()
	if changed {
		a.logger.Infof("Lights set to %s", state)
	}
}

func (a *Automation) setWipers(state types.WiperState) {
	a.mu.Lock()
	changed := a.wipers != state
	a.wipers = state
	a.mu.Unlock()
	if changed {
		a.logger.Infof("Wipers set to %s", state)
	}
}

func (a *Automation) sendEvent(ev librefsm.EventID) {
	if err := a.machine.SendSync(librefsm.Event{ID: ev}); err != nil {
		a.logger.Errorf("Indicator FSM rejected %s: %v", ev, err)
	}
}

// EnterLeft is the FSM enter action for the left-indicating state.
func (a *Automation) EnterLeft(c *librefsm.Context) error {
	a.resetBlinkTracking()
	a.logger.Infof("Indicators set to left")
	return nil
}

// EnterRight is the FSM enter action for the right-indicating state.
func (a *Automation) EnterRight(c *librefsm.Context) error {
	a.resetBlinkTracking()
	a.logger.Infof("Indicators set to right")
	return nil
}

// EnterOff is the FSM enter action for the idle state.
func (a *Automation) EnterOff(c *librefsm.Context) error {
	a.mu.Lock()
	a.blinkCount = 0
	a.prevBlinkerObserved = false
	a.autodisable = false
	a.mu.Unlock()
	return nil
}

// resetBlinkTracking zeroes the blink counter on a direction change so the
// auto-cancel count starts fresh.
func (a *Automation) resetBlinkTracking() {
	a.mu.Lock()
	a.blinkCount = 0
	a.prevBlinkerObserved = false
	a.mu.Unlock()
}

func stateToIndicator(state librefsm.StateID) types.IndicatorState {
	switch state {
	case fsm.StateLeft:
		return types.IndicatorLeft
	case fsm.StateRight:
		return types.IndicatorRight
	default:
		return types.IndicatorOff
	}
}
