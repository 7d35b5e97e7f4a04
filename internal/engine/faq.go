package engine

import (
	"regexp"
	"strings"
)

// faqEntry is one canned answer topic.
type faqEntry struct {
	ReplyID string
	Pattern *regexp.Regexp
	Answer  string
}

// The FAQ table answers the questions parents ask before committing.
// Topics are matched by button reply id first, then by keyword.
var faqTable = []faqEntry{
	{
		ReplyID: "faq_pricing",
		Pattern: regexp.MustCompile(`(?i)\b(price|pricing|cost|fee|charges|how much)\b`),
		Answer:  "Our reading program starts at ₹1,999 per month, and the first assessment is completely free. On a discovery call we can match a plan to your child's level.",
	},
	{
		ReplyID: "faq_schedule",
		Pattern: regexp.MustCompile(`(?i)\b(timings?|schedule|when (are|is)|class time|how often)\b`),
		Answer:  "Sessions run twice a week for 45 minutes, and you pick the slots that suit your family. Weekend batches are available too.",
	},
	{
		ReplyID: "faq_method",
		Pattern: regexp.MustCompile(`(?i)\b(method|curriculum|how does (it|this) work|phonics|approach)\b`),
		Answer:  "We use a phonics-first method with one-on-one coaching, matched to your child's reading level from the assessment. Most children jump a full level within 3 months.",
	},
}

// lookupFAQ resolves a reply id or free text to an FAQ answer.
func lookupFAQ(replyID, text string) (faqEntry, bool) {
	if replyID != "" {
		for _, entry := range faqTable {
			if entry.ReplyID == replyID {
				return entry, true
			}
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return faqEntry{}, false
	}
	for _, entry := range faqTable {
		if entry.Pattern.MatchString(trimmed) {
			return entry, true
		}
	}
	return faqEntry{}, false
}
