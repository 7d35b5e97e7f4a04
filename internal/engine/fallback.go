package engine

import (
	"fmt"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/platform/config"
)

// FallbackTree is the deterministic decision tree that runs when the
// agent is unavailable, errors, or returns something malformed. Every
// (intent, state) pair yields a usable decision, so the conversation
// never goes silent.
type FallbackTree struct {
	cfg config.FunnelConfig
}

func NewFallbackTree(cfg config.FunnelConfig) *FallbackTree {
	return &FallbackTree{cfg: cfg}
}

var defaultButtons = []agent.Button{
	{ID: ReplyStartAssessment, Title: "Free assessment"},
	{ID: ReplyBookDiscovery, Title: "Book a call"},
	{ID: "faq_pricing", Title: "Pricing"},
}

// Decide maps the classified intent and current state to a decision.
func (t *FallbackTree) Decide(conv repository.Conversation, intent ClassifiedIntent, replyID, text string) agent.Decision {
	switch intent.Intent {
	case domain.IntentGreeting:
		return agent.Decision{
			Action:     domain.ActionGreeting,
			Reply:      fmt.Sprintf("Hi! Welcome to %s. We help children fall in love with reading. How can I help you today?", t.cfg.GetBusinessName()),
			Buttons:    defaultButtons,
			Confidence: 1,
			Extracted:  intent.Extracted,
		}

	case domain.IntentFAQ:
		if entry, ok := lookupFAQ(replyID, text); ok {
			return agent.Decision{
				Action:     domain.ActionFAQ,
				Reply:      entry.Answer + " Would you like to start with the free assessment?",
				Buttons:    []agent.Button{{ID: ReplyStartAssessment, Title: "Free assessment"}, {ID: ReplyBookDiscovery, Title: "Book a call"}},
				Confidence: 1,
				Extracted:  intent.Extracted,
			}
		}
		return agent.Decision{
			Action:     domain.ActionRespondAndQualify,
			Reply:      "Good question! Our team can walk you through the details on a quick call. Meanwhile, could you tell me your child's age?",
			Confidence: 0.7,
			Extracted:  intent.Extracted,
		}

	case domain.IntentBooking:
		return agent.Decision{
			Action:     domain.ActionOfferDiscovery,
			Reply:      "Great, let's find a time for a quick discovery call.",
			Confidence: 1,
			Extracted:  intent.Extracted,
		}

	case domain.IntentSlotSelection:
		return agent.Decision{
			Action:     domain.ActionBookDiscovery,
			Confidence: 1,
			Extracted:  intent.Extracted,
		}

	case domain.IntentAssessment:
		return agent.Decision{
			Action:     domain.ActionSendAssessment,
			Reply:      fmt.Sprintf("Here's the free reading assessment: %s. It takes about 10 minutes, and I'll share the results with you right after.", t.cfg.GetAssessmentLink()),
			Confidence: 1,
			StateHint:  string(domain.StateAssessmentOffered),
			Extracted:  intent.Extracted,
		}

	case domain.IntentEscalation:
		return agent.Decision{
			Action:     domain.ActionEscalateHot,
			Reply:      "Of course — I'm connecting you with our team. Someone will message you here shortly.",
			Confidence: 1,
			Extracted:  intent.Extracted,
		}

	case domain.IntentReschedule:
		return agent.Decision{
			Action:     domain.ActionReschedule,
			Reply:      "No problem, let's find a new time.",
			Confidence: 1,
			Extracted:  intent.Extracted,
		}
	}

	return t.decideByState(conv, intent)
}

// decideByState handles qualification and unknown intents, where the
// right move depends on where the conversation is.
func (t *FallbackTree) decideByState(conv repository.Conversation, intent ClassifiedIntent) agent.Decision {
	base := agent.Decision{
		Action:     domain.ActionRespondAndQualify,
		Confidence: 0.6,
		Extracted:  intent.Extracted,
	}

	switch conv.State {
	case domain.StateGreeting:
		base.Reply = fmt.Sprintf("Lovely to hear from you! To point you in the right direction — how old is your child, and what would you like help with? %s works with readers from age 4 to 12.", t.cfg.GetBusinessName())

	case domain.StateQualifying:
		base.Reply = t.nextQualifyingQuestion(conv.CollectedData)

	case domain.StateAssessmentOffered:
		base.Reply = fmt.Sprintf("Whenever you have 10 minutes, the free assessment is here: %s. Anything I can answer in the meantime?", t.cfg.GetAssessmentLink())

	case domain.StateDiscoveryOffered, domain.StateSlotSelection:
		base.Action = domain.ActionOfferDiscovery
		base.Reply = "Let me show you the available times for a discovery call."

	case domain.StateNurturing:
		base.Action = domain.ActionSendTestimonial
		base.Reply = "A parent recently told us her 7-year-old went from avoiding books to reading every night in 8 weeks. If you'd like, the free assessment is a no-pressure way to see where your child stands."
		base.Buttons = []agent.Button{{ID: ReplyStartAssessment, Title: "Free assessment"}}

	default:
		base.Reply = "Thanks for your message! Could you tell me a bit about your child — their age and what you'd like help with?"
	}

	return base
}

func (t *FallbackTree) nextQualifyingQuestion(collected map[string]string) string {
	switch {
	case collected[domain.DataChildName] == "":
		return "Thanks! What's your child's name?"
	case collected[domain.DataChildAge] == "":
		return "And how old are they?"
	case collected[domain.DataConcern] == "":
		return "Got it. What would you most like help with — reading fluency, comprehension, or building the habit?"
	case collected[domain.DataCity] == "":
		return "One last thing — which city are you in?"
	default:
		return fmt.Sprintf("Thanks for sharing all that! The next step is our free reading assessment: %s. Shall I also set up a quick call with the team?", t.cfg.GetAssessmentLink())
	}
}
