package engine

import (
	"context"
	"regexp"
	"strings"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"
)

// ClassifiedIntent is the classifier output for one turn.
type ClassifiedIntent struct {
	Intent     domain.Intent
	Confidence float64
	Tier       domain.Tier
	Extracted  map[string]string
}

// Classifier is the two-tier intent classifier. Tier 0 is deterministic
// (button ids, keyword patterns) and free; Tier 1 asks the model.
type Classifier struct {
	tier1 agent.IntentClassifier
	log   *logger.Logger
}

func NewClassifier(tier1 agent.IntentClassifier, log *logger.Logger) *Classifier {
	return &Classifier{tier1: tier1, log: log}
}

// Button and list reply ids the funnel emits. Slot rows use the slot id
// itself, prefixed.
const (
	ReplyBookDiscovery   = "book_discovery"
	ReplyTalkToTeam      = "talk_to_team"
	ReplyStartAssessment = "start_assessment"
	ReplySlotPrefix      = "slot_"
	ReplyFAQPrefix       = "faq_"
	ReplyNotNow          = "not_now"
)

var (
	greetingPattern   = regexp.MustCompile(`(?i)^\s*(hi|hii+|hello|hey|hola|namaste|good (morning|afternoon|evening))[\s!.,]*$`)
	bookingPattern    = regexp.MustCompile(`(?i)\b(book|schedule|call me|arrange|set up)\b.*\b(call|demo|session|slot)\b|\b(book a call|talk about slots)\b`)
	escalationPattern = regexp.MustCompile(`(?i)\b(human|real person|agent|representative|talk to (someone|a person|the team)|stop messaging|complaint|refund)\b`)
	reschedulePattern = regexp.MustCompile(`(?i)\b(reschedul|postpone|change (the|my) (slot|time|call)|another (time|slot))\b`)
	faqPattern        = regexp.MustCompile(`(?i)\b(price|pricing|cost|fee|charges|how much|timings?|schedule of|curriculum|method|how does (it|this) work)\b`)
	assessmentPattern = regexp.MustCompile(`(?i)\b(assessment|reading test|evaluate|check (his|her|their) (reading|level))\b`)

	agePattern = regexp.MustCompile(`(?i)\b(?:he|she|my (?:son|daughter|child|kid))?(?:\s*is)?\s*(\d{1,2})\s*(?:years?|yrs?|yo)\b`)
)

// Classify resolves the message to an intent. Interactive replies are
// authoritative and never reach Tier 1.
func (c *Classifier) Classify(ctx context.Context, payload queue.ProcessMessagePayload, state domain.State) ClassifiedIntent {
	if payload.ReplyID != "" {
		return classifyReply(payload.ReplyID)
	}

	if result, ok := classifyText(payload.Text); ok {
		return result
	}

	if c.tier1 == nil {
		return ClassifiedIntent{Intent: domain.IntentUnknown, Tier: domain.TierDeterministic}
	}

	classification, err := c.tier1.ClassifyIntent(ctx, payload.Text, state)
	if err != nil {
		c.log.Warn("tier-1 classification failed", "error", err)
		return ClassifiedIntent{Intent: domain.IntentUnknown, Tier: domain.TierAI}
	}

	return ClassifiedIntent{
		Intent:     classification.Intent,
		Confidence: classification.Confidence,
		Tier:       domain.TierAI,
		Extracted:  classification.Extracted,
	}
}

func classifyReply(replyID string) ClassifiedIntent {
	result := ClassifiedIntent{Confidence: 1.0, Tier: domain.TierDeterministic}

	switch {
	case strings.HasPrefix(replyID, ReplySlotPrefix):
		result.Intent = domain.IntentSlotSelection
	case replyID == ReplyBookDiscovery:
		result.Intent = domain.IntentBooking
	case replyID == ReplyTalkToTeam:
		result.Intent = domain.IntentEscalation
	case replyID == ReplyStartAssessment:
		result.Intent = domain.IntentAssessment
	case strings.HasPrefix(replyID, ReplyFAQPrefix):
		result.Intent = domain.IntentFAQ
	case replyID == ReplyNotNow:
		result.Intent = domain.IntentQualification
		result.Confidence = 0.8
	default:
		result.Intent = domain.IntentUnknown
		result.Confidence = 0
	}

	return result
}

func classifyText(text string) (ClassifiedIntent, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ClassifiedIntent{Intent: domain.IntentUnknown, Tier: domain.TierDeterministic}, true
	}

	extracted := extractEntities(trimmed)

	switch {
	case greetingPattern.MatchString(trimmed):
		return ClassifiedIntent{Intent: domain.IntentGreeting, Confidence: 0.95, Tier: domain.TierDeterministic}, true
	case escalationPattern.MatchString(trimmed):
		return ClassifiedIntent{Intent: domain.IntentEscalation, Confidence: 0.9, Tier: domain.TierDeterministic, Extracted: extracted}, true
	case reschedulePattern.MatchString(trimmed):
		return ClassifiedIntent{Intent: domain.IntentReschedule, Confidence: 0.85, Tier: domain.TierDeterministic, Extracted: extracted}, true
	case bookingPattern.MatchString(trimmed):
		return ClassifiedIntent{Intent: domain.IntentBooking, Confidence: 0.85, Tier: domain.TierDeterministic, Extracted: extracted}, true
	case assessmentPattern.MatchString(trimmed):
		return ClassifiedIntent{Intent: domain.IntentAssessment, Confidence: 0.8, Tier: domain.TierDeterministic, Extracted: extracted}, true
	case faqPattern.MatchString(trimmed):
		return ClassifiedIntent{Intent: domain.IntentFAQ, Confidence: 0.8, Tier: domain.TierDeterministic, Extracted: extracted}, true
	}

	return ClassifiedIntent{}, false
}

// extractEntities pulls cheap profile facts out of the text so even
// deterministic turns accumulate qualification data.
func extractEntities(text string) map[string]string {
	var extracted map[string]string
	if match := agePattern.FindStringSubmatch(text); match != nil {
		extracted = map[string]string{domain.DataChildAge: match[1]}
	}
	return extracted
}
