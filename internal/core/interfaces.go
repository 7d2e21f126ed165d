package core

import (
	"time"

	"stalks-service/internal/device"
	"stalks-service/internal/telemetry"
	"stalks-service/internal/types"
)

// DeviceLink is the connection supervisor surface the monitor drives.
type DeviceLink interface {
	Connected() bool
	EnsureConnected() bool
	Read() ([]byte, error)
	ReconnectDelay() time.Duration
	Disconnect()
	Status() device.Status
}

// Reconciler converges the simulated vehicle towards the desired stalk state.
type Reconciler interface {
	Reconcile(desired types.Desired, snap *telemetry.Snapshot) error
}

// MessagingClient is the optional Redis mirror. The monitor tolerates a nil
// client and publish errors alike.
type MessagingClient interface {
	SetIndicatorState(state types.IndicatorState) error
	SetLightState(state types.LightState) error
	SetWiperState(state types.WiperState) error
	SetConnectionState(state types.ConnectionState, deviceName string) error
}
