package domain

// LifecycleStage is the coarse sales-funnel label used by the lead
// projection and by the decision agent, distinct from but mapped to
// conversation state.
type LifecycleStage string

const (
	LifecycleNew        LifecycleStage = "new"
	LifecycleQualifying LifecycleStage = "qualifying"
	LifecycleAssessment LifecycleStage = "assessment"
	LifecycleBooked     LifecycleStage = "booked"
	LifecycleNurturing  LifecycleStage = "nurturing"
	LifecycleEscalated  LifecycleStage = "escalated"
	LifecycleClosed     LifecycleStage = "closed"
)

// LifecycleForState maps a conversation state to its lifecycle stage.
func LifecycleForState(s State) LifecycleStage {
	switch s {
	case StateGreeting:
		return LifecycleNew
	case StateQualifying, StateDiscoveryOffered, StateSlotSelection:
		return LifecycleQualifying
	case StateAssessmentOffered:
		return LifecycleAssessment
	case StateBooked:
		return LifecycleBooked
	case StateNurturing:
		return LifecycleNurturing
	case StateEscalated:
		return LifecycleEscalated
	case StateCompleted:
		return LifecycleClosed
	default:
		return LifecycleNew
	}
}

// StateForLifecycle resolves an agent-reported lifecycle label to a
// conversation state when the agent reports a stage instead of a raw
// state hint. Unknown labels resolve to the zero State so callers keep
// the current state.
func StateForLifecycle(stage LifecycleStage) State {
	switch stage {
	case LifecycleNew:
		return StateGreeting
	case LifecycleQualifying:
		return StateQualifying
	case LifecycleAssessment:
		return StateAssessmentOffered
	case LifecycleBooked:
		return StateBooked
	case LifecycleNurturing:
		return StateNurturing
	case LifecycleEscalated:
		return StateEscalated
	case LifecycleClosed:
		return StateCompleted
	default:
		return ""
	}
}

// Lead score increments awarded as qualification data accumulates.
const (
	ScoreParentName = 10
	ScoreChildName  = 10
	ScoreChildAge   = 10
	ScoreConcern    = 15
	ScoreCity       = 5
	ScoreBooking    = 25
)

// Collected-data keys accumulated across turns. The map is open; these
// are the keys the engine itself reads and scores.
const (
	DataParentName = "parent_name"
	DataChildName  = "child_name"
	DataChildAge   = "child_age"
	DataConcern    = "concern"
	DataCity       = "city"
)

// ScoreDelta returns the lead-score increment for newly collected keys.
// Keys already present in existing earn nothing, so re-extraction under
// queue retry does not inflate the score.
func ScoreDelta(existing map[string]string, extracted map[string]string) int {
	delta := 0
	for key, value := range extracted {
		if value == "" {
			continue
		}
		if _, had := existing[key]; had {
			continue
		}
		switch key {
		case DataParentName:
			delta += ScoreParentName
		case DataChildName:
			delta += ScoreChildName
		case DataChildAge:
			delta += ScoreChildAge
		case DataConcern:
			delta += ScoreConcern
		case DataCity:
			delta += ScoreCity
		}
	}
	return delta
}
