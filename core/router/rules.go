package router

import "regexp"

// =============================================================================
// RULE-BASED FAST PATH
// =============================================================================

// classifyRule pairs a deterministic pattern set with an intent. All
// patterns must match for the rule to fire.
type classifyRule struct {
	intent   string
	patterns []*regexp.Regexp
}

var fastPathRules = []classifyRule{
	{
		intent: IntentNotificationSchedule,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(sms|text|remind(?:er)?|notif(?:y|ication))\b`),
			regexp.MustCompile(`(?i)\b(medication|meds|pill|dose|tablet)\b`),
		},
	},
	{
		intent: IntentAppointmentBook,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bbook(?:ing)?\b`),
			regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today|\d{1,2}(?::\d{2})?\s*(?:am|pm))\b`),
		},
	},
	{
		intent: IntentReportSummary,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(report|summar(?:y|ise|ize))\b`),
		},
	},
}

// matchFastPath runs the deterministic keyword rules in order and returns
// the first intent whose patterns all match.
func matchFastPath(message string) (string, bool) {
	for _, rule := range fastPathRules {
		matched := true
		for _, p := range rule.patterns {
			if !p.MatchString(message) {
				matched = false
				break
			}
		}
		if matched {
			return rule.intent, true
		}
	}
	return "", false
}
