package fsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the indicator FSM definition.
//
// Cancel behaviour is split between two events: EvCancel is sent when the
// center press should shut the indicator off immediately, EvAutoCancel when
// the blink-driven auto-cancel completes. Both land in StateOff; keeping
// them distinct makes the transition log readable.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateOff,
			librefsm.WithOnEnter(actions.EnterOff),
		).
		State(StateLeft,
			librefsm.WithOnEnter(actions.EnterLeft),
		).
		State(StateRight,
			librefsm.WithOnEnter(actions.EnterRight),
		).

		// Direction presses
		Transition(StateOff, EvLeftPress, StateLeft).
		Transition(StateOff, EvRightPress, StateRight).
		Transition(StateLeft, EvRightPress, StateRight).
		Transition(StateRight, EvLeftPress, StateLeft).

		// Center press past the autodisable threshold
		Transition(StateLeft, EvCancel, StateOff).
		Transition(StateRight, EvCancel, StateOff).

		// Blink-driven auto-cancel
		Transition(StateLeft, EvAutoCancel, StateOff).
		Transition(StateRight, EvAutoCancel, StateOff).
		Initial(StateOff)
}
