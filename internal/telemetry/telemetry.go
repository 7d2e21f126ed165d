// Package telemetry reads the simulated vehicle state published by the
// game's telemetry plugin through a shared-memory segment.
package telemetry

// Snapshot is one poll of the simulated vehicle state. It is replaced
// wholesale every cycle and never mutated in place. A nil *Snapshot means
// telemetry was unavailable for the cycle; all consumers must treat that
// as "no vehicle-state-driven work this cycle".
type Snapshot struct {
	// Blinker telemetry. "Active" means the indicator is engaged,
	// "On" means its light is lit right now within the blink cycle.
	BlinkerLeftActive  bool
	BlinkerRightActive bool
	BlinkerLeftOn      bool
	BlinkerRightOn     bool
	LightsHazards      bool

	LightsParking bool
	LightsBeamLow bool

	// RainIntensity ranges 0..1; the wiper rain-sensor gate treats
	// anything above a small epsilon as rain.
	RainIntensity float32
}

// Rain reports whether the rain sensor should engage.
func (s *Snapshot) Rain() bool {
	return s != nil && s.RainIntensity > 0.01
}

// Source supplies vehicle snapshots.
type Source interface {
	// Init attaches to the telemetry backend. Fails while the simulator
	// or its telemetry plugin is not running; callers retry.
	Init() error

	// Get returns the current snapshot, or an error when telemetry is
	// unavailable. Errors are recoverable; the caller skips
	// vehicle-state-driven work for the cycle.
	Get() (*Snapshot, error)

	Close() error
}
