package telemetry

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	buf := make([]byte, shmSize)
	buf[offBlinkerLeftActive] = 1
	buf[offBlinkerLeftOn] = 1
	buf[offLightsBeamLow] = 1
	binary.LittleEndian.PutUint32(buf[offRainIntensity:], math.Float32bits(0.4))

	snap := decode(buf)

	if !snap.BlinkerLeftActive || !snap.BlinkerLeftOn {
		t.Error("Left blinker flags not decoded")
	}
	if snap.BlinkerRightActive || snap.BlinkerRightOn {
		t.Error("Right blinker flags should be false")
	}
	if !snap.LightsBeamLow || snap.LightsParking || snap.LightsHazards {
		t.Error("Light flags not decoded correctly")
	}
	if !snap.Rain() {
		t.Errorf("Expected rain with intensity %v", snap.RainIntensity)
	}
}

func TestRainNilSnapshot(t *testing.T) {
	var snap *Snapshot
	if snap.Rain() {
		t.Error("Nil snapshot must not report rain")
	}
}

func TestRainEpsilon(t *testing.T) {
	snap := &Snapshot{RainIntensity: 0.005}
	if snap.Rain() {
		t.Error("Trace rain below epsilon should not engage the sensor")
	}
}
