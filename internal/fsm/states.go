package fsm

import "github.com/librescoot/librefsm"

// Indicator states
const (
	StateOff   librefsm.StateID = "off"
	StateLeft  librefsm.StateID = "left"
	StateRight librefsm.StateID = "right"
)

// Indicator events. Press events are only delivered once the stalk
// automation has resolved the cooldown window; the machine itself never
// sees debounce bounce.
const (
	EvLeftPress  librefsm.EventID = "left-press"
	EvRightPress librefsm.EventID = "right-press"
	EvCancel     librefsm.EventID = "cancel"
	EvAutoCancel librefsm.EventID = "auto-cancel"
)
