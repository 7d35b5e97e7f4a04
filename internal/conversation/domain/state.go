// Package domain provides core business rules for the conversation
// bounded context: the funnel state machine, intent and action spaces,
// and lifecycle-stage mapping.
package domain

// State is a conversation's position in the qualification funnel.
type State string

const (
	StateGreeting          State = "GREETING"
	StateQualifying        State = "QUALIFYING"
	StateAssessmentOffered State = "ASSESSMENT_OFFERED"
	StateDiscoveryOffered  State = "DISCOVERY_OFFERED"
	StateSlotSelection     State = "SLOT_SELECTION"
	StateBooked            State = "BOOKED"
	StateNurturing         State = "NURTURING"
	StateEscalated         State = "ESCALATED"
	StateCompleted         State = "COMPLETED"
)

// InitialState is assigned to a conversation on first inbound message.
const InitialState = StateGreeting

var knownStates = map[State]struct{}{
	StateGreeting:          {},
	StateQualifying:        {},
	StateAssessmentOffered: {},
	StateDiscoveryOffered:  {},
	StateSlotSelection:     {},
	StateBooked:            {},
	StateNurturing:         {},
	StateEscalated:         {},
	StateCompleted:         {},
}

// terminalStates are states where no further automated turns should occur.
// BOOKED may be reopened by a human or by the reschedule flow.
var terminalStates = map[State]struct{}{
	StateBooked:    {},
	StateEscalated: {},
	StateCompleted: {},
}

// IsKnown reports whether s is a defined funnel state.
func IsKnown(s State) bool {
	_, ok := knownStates[s]
	return ok
}

// IsTerminal reports whether s ends automated processing for the bot.
func IsTerminal(s State) bool {
	_, ok := terminalStates[s]
	return ok
}

// forwardTransitions is the allowed forward edge set of the funnel.
// The side branches (NURTURING, ESCALATED, COMPLETED) are reachable from
// any non-terminal state once sufficient signal exists and are therefore
// not enumerated per-state here.
var forwardTransitions = map[State][]State{
	StateGreeting:          {StateQualifying, StateAssessmentOffered, StateDiscoveryOffered},
	StateQualifying:        {StateQualifying, StateAssessmentOffered, StateDiscoveryOffered, StateSlotSelection},
	StateAssessmentOffered: {StateQualifying, StateDiscoveryOffered, StateSlotSelection},
	StateDiscoveryOffered:  {StateSlotSelection, StateQualifying},
	StateSlotSelection:     {StateBooked, StateQualifying, StateSlotSelection},
	StateBooked:            {StateSlotSelection, StateCompleted},
	StateNurturing:         {StateQualifying, StateDiscoveryOffered, StateSlotSelection},
}

// CanTransition reports whether moving from one state to the next is valid.
// Staying in place is always valid, and the side branches are reachable
// from everywhere except the other terminal states.
func CanTransition(from, to State) bool {
	if !IsKnown(from) || !IsKnown(to) {
		return false
	}
	if from == to {
		return true
	}
	switch to {
	case StateNurturing, StateEscalated, StateCompleted:
		// Side branches: allowed unless the conversation already ended.
		return from != StateEscalated && from != StateCompleted
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns the state that results from requesting next while in
// from. Invalid or unknown requests leave the conversation where it is,
// so the state machine can never reach an undefined value.
func Transition(from, to State) State {
	if CanTransition(from, to) {
		return to
	}
	if IsKnown(from) {
		return from
	}
	return InitialState
}

// TransitionString renders a transition for message metadata.
func TransitionString(from, to State) string {
	return string(from) + "->" + string(to)
}
