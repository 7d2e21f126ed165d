package fsm

import "github.com/librescoot/librefsm"

// Actions defines the state entry hooks for the indicator machine.
// The stalk automation implements this interface; the entry actions are
// where the blink counter is reset atomically with a direction change.
type Actions interface {
	EnterLeft(c *librefsm.Context) error
	EnterRight(c *librefsm.Context) error
	EnterOff(c *librefsm.Context) error
}
