package types

// IndicatorState is the desired turn-signal direction. It is owned
// exclusively by the stalk automation; everything else reads snapshots.
type IndicatorState string

const (
	IndicatorOff   IndicatorState = "off"
	IndicatorLeft  IndicatorState = "left"
	IndicatorRight IndicatorState = "right"
)

// LightState is the desired headlight selector position.
type LightState int

const (
	LightsOff LightState = iota
	LightsParking
	LightsLowBeam
)

func (s LightState) String() string {
	switch s {
	case LightsOff:
		return "off"
	case LightsParking:
		return "parking"
	case LightsLowBeam:
		return "low-beam"
	default:
		return "unknown"
	}
}

// WiperState is the desired wiper selector position. WipersOff doubles as
// rain-sensor mode when the simulated vehicle reports rain.
type WiperState int

const (
	WipersManual WiperState = iota - 1
	WipersOff
	WipersIntermittent
	WipersLow
	WipersHigh
)

func (s WiperState) String() string {
	switch s {
	case WipersManual:
		return "manual"
	case WipersOff:
		return "off"
	case WipersIntermittent:
		return "intermittent"
	case WipersLow:
		return "low"
	case WipersHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Desired bundles the three control surfaces the reconciler converges
// the simulated vehicle towards.
type Desired struct {
	Indicator IndicatorState
	Lights    LightState
	Wipers    WiperState
}

// ConnectionState tracks the device link.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connected    ConnectionState = "connected"
)
