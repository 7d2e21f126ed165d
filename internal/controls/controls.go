// Package controls drives the simulated vehicle's input surface. Outputs
// are named boolean controls consumed by the simulator's input plugin;
// blinker and light controls are edge-triggered (pulse then release),
// wiper controls are held levels.
package controls

// Output identifies a control the bridge is allowed to write. The sink
// exposes many more named controls; keeping the set closed here prevents
// typo'd control names from silently writing the wrong slot.
type Output string

const (
	OutLeftBlinker  Output = "lblinker"
	OutRightBlinker Output = "rblinker"
	OutLightToggle  Output = "light"

	// Wiper level outputs. OutTripReset doubles as the wiper-off/reset
	// control on the stalk hardware this bridge targets.
	OutWipersBack Output = "wipersback"
	OutWipersLow  Output = "wipers0"
	OutWipersHigh Output = "wipers1"
	OutTripReset  Output = "tripreset"
)

// WiperOutputs is the mutually exclusive level group; at most one may be
// held true at any time.
var WiperOutputs = []Output{OutWipersBack, OutWipersLow, OutWipersHigh, OutTripReset}

// Sink writes named boolean controls to the simulated vehicle.
type Sink interface {
	Set(out Output, value bool) error
}
