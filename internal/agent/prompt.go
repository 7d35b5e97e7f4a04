package agent

import (
	"fmt"
	"strings"

	"leadchat_backend/internal/conversation/domain"
)

const decisionInstruction = `You are the conversation brain for a children's reading program. You chat
with parents on WhatsApp and decide, one turn at a time, how to move them
toward a free reading assessment or a discovery call with the team.

Rules:
- Reply in the parent's language and register. Warm, concrete, never pushy.
- Maximum 3 short sentences per reply. No markdown.
- Ask for at most one piece of missing profile information per turn.
- If the parent is clearly ready to talk to a human, or is upset, pick an
  escalation action instead of continuing to sell.
- You MUST record your decision by calling SaveDecision exactly once.
  Free-text answers without the tool call are discarded.

Allowed action tags:
GREETING, FAQ, SHARE_PRICING, RESPOND_AND_QUALIFY, SEND_ASSESSMENT,
OFFER_DISCOVERY, BOOK_DISCOVERY, RESCHEDULE, ESCALATE_HOT,
ESCALATE_OBJECTION, ENTER_NURTURE, SEND_TESTIMONIAL, CLOSE_COLD.`

// buildDecisionPrompt renders one turn's context for the decision agent.
func buildDecisionPrompt(req DecisionRequest) string {
	var sb strings.Builder

	sb.WriteString("## Conversation context\n")
	fmt.Fprintf(&sb, "State: %s\n", req.State)
	fmt.Fprintf(&sb, "Lead score: %d\n", req.LeadScore)
	if req.ContactName != "" {
		fmt.Fprintf(&sb, "Contact name: %s\n", req.ContactName)
	}
	if req.Intent != "" && req.Intent != domain.IntentUnknown {
		fmt.Fprintf(&sb, "Classified intent: %s\n", req.Intent)
	}

	if len(req.CollectedData) > 0 {
		sb.WriteString("\n## Known profile\n")
		for _, key := range []string{domain.DataParentName, domain.DataChildName, domain.DataChildAge, domain.DataConcern, domain.DataCity} {
			if value, ok := req.CollectedData[key]; ok && value != "" {
				fmt.Fprintf(&sb, "%s: %s\n", key, value)
			}
		}
	}

	if len(req.History) > 0 {
		sb.WriteString("\n## Recent messages (oldest first)\n")
		for _, turn := range req.History {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Text)
		}
	}

	sb.WriteString("\n## New message from the parent\n")
	sb.WriteString(req.Message)
	sb.WriteString("\n\nDecide this turn and call SaveDecision.")

	return sb.String()
}

// classifyPrompt renders the Tier-1 intent classification request. The
// model answers with a single JSON object and nothing else.
func classifyPrompt(text string, state domain.State) string {
	return fmt.Sprintf(`Classify one WhatsApp message from a parent talking to a children's
reading program bot. Conversation state: %s.

Message: %q

Answer with ONLY a JSON object, no prose, shaped as:
{"intent":"...","confidence":0.0,"extracted":{"parent_name":"","child_name":"","child_age":"","concern":"","city":""}}

intent must be one of: GREETING, BOOKING, SLOT_SELECTION, ASSESSMENT,
ESCALATION, RESCHEDULE, FAQ, QUALIFICATION, UNKNOWN.
Omit extracted keys that do not appear in the message.`, state, text)
}
