package stalk

// Button IDs on the stalk's HID report (byte*8 + bit). The light and wiper
// selectors are rotary collars that expose one button per detent; the
// indicator lever exposes up/center/down as three buttons, with the center
// button firing every time the lever self-returns.
const (
	ButtonLightsOff     = 0
	ButtonLightsParking = 1
	ButtonLightsLowBeam = 2

	ButtonIndicatorRight  = 7
	ButtonIndicatorCancel = 8
	ButtonIndicatorLeft   = 9

	ButtonWipersManual       = 19
	ButtonWipersOff          = 20
	ButtonWipersIntermittent = 21
	ButtonWipersLow          = 22
	ButtonWipersHigh         = 23
)
