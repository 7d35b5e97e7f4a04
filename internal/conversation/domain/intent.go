package domain

// Intent is a classified conversational intent. Tier 0 produces these
// deterministically; Tier 1 maps free text onto the same space.
type Intent string

const (
	IntentGreeting      Intent = "GREETING"
	IntentBooking       Intent = "BOOKING"
	IntentSlotSelection Intent = "SLOT_SELECTION"
	IntentAssessment    Intent = "ASSESSMENT"
	IntentEscalation    Intent = "ESCALATION"
	IntentReschedule    Intent = "RESCHEDULE"
	IntentFAQ           Intent = "FAQ"
	IntentQualification Intent = "QUALIFICATION"
	IntentUnknown       Intent = "UNKNOWN"
)

// Tier identifies which classifier tier produced an intent.
type Tier int

const (
	// TierDeterministic is the zero-cost keyword/button tier.
	TierDeterministic Tier = 0
	// TierAI is the AI-assisted fallback tier.
	TierAI Tier = 1
)

// Action is a decision outcome: what the engine should do this turn.
// Mode 1 maps intents onto this space directly; the Mode 2 agent returns
// one of these as its action tag.
type Action string

const (
	ActionGreeting          Action = "GREETING"
	ActionFAQ               Action = "FAQ"
	ActionSharePricing      Action = "SHARE_PRICING"
	ActionRespondAndQualify Action = "RESPOND_AND_QUALIFY"
	ActionSendAssessment    Action = "SEND_ASSESSMENT"
	ActionOfferDiscovery    Action = "OFFER_DISCOVERY"
	ActionBookDiscovery     Action = "BOOK_DISCOVERY"
	ActionReschedule        Action = "RESCHEDULE"
	ActionEscalateHot       Action = "ESCALATE_HOT"
	ActionEscalateObjection Action = "ESCALATE_OBJECTION"
	ActionEnterNurture      Action = "ENTER_NURTURE"
	ActionSendTestimonial   Action = "SEND_TESTIMONIAL"
	ActionCloseCold         Action = "CLOSE_COLD"
	ActionUnrecognized      Action = "UNRECOGNIZED"
)

var knownActions = map[Action]struct{}{
	ActionGreeting:          {},
	ActionFAQ:               {},
	ActionSharePricing:      {},
	ActionRespondAndQualify: {},
	ActionSendAssessment:    {},
	ActionOfferDiscovery:    {},
	ActionBookDiscovery:     {},
	ActionReschedule:        {},
	ActionEscalateHot:       {},
	ActionEscalateObjection: {},
	ActionEnterNurture:      {},
	ActionSendTestimonial:   {},
	ActionCloseCold:         {},
	ActionUnrecognized:      {},
}

// IsKnownAction reports whether a is a defined action tag. Agent output
// carrying anything else is malformed and must fall back.
func IsKnownAction(a Action) bool {
	_, ok := knownActions[a]
	return ok
}

// IsEscalation reports whether the action funnels through the
// escalation ladder.
func (a Action) IsEscalation() bool {
	return a == ActionEscalateHot || a == ActionEscalateObjection
}

// DecisionPath identifies which routing path produced a reply, for
// message metadata and observability.
type DecisionPath string

const (
	PathMode1        DecisionPath = "mode1"
	PathMode2        DecisionPath = "mode2"
	PathFallbackTree DecisionPath = "fallback_tree"
)
