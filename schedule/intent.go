// Package schedule turns natural-language scheduling requests into
// idempotent, retryable notification jobs.
//
// The pipeline is: a parsed intent (usually produced by an LLM upstream)
// goes through policy evaluation, which resolves channel, recipients, body,
// timezone and a concrete schedule, and emits a NotificationPlan ready for
// submission to the job queue.
package schedule

import (
	"strings"

	"github.com/careloop-ai/assistant-core/typeutil"
)

// =============================================================================
// ENUMS
// =============================================================================

// IntentKind classifies what the user wants sent.
type IntentKind string

const (
	IntentNotify   IntentKind = "notify"
	IntentRemind   IntentKind = "remind"
	IntentFollowUp IntentKind = "follow_up"
)

// Operation is the requested lifecycle operation.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationCancel Operation = "cancel"
	OperationQuery  Operation = "query"
)

// ScheduleKind tags the schedule union.
type ScheduleKind string

const (
	// ScheduleNow means "send immediately" (or: nothing actionable parsed;
	// policy runs natural-language inference over the raw utterance).
	ScheduleNow ScheduleKind = "now"
	// ScheduleDatetime is a concrete ISO instant.
	ScheduleDatetime ScheduleKind = "datetime"
	// ScheduleRelative is an ISO-8601 duration from now.
	ScheduleRelative ScheduleKind = "relative"
	// ScheduleCron is a recurring cron expression.
	ScheduleCron ScheduleKind = "cron"
)

// =============================================================================
// PARSED INTENT
// =============================================================================

// Schedule is the tagged union of schedule shapes a parsed intent may carry.
// Only the fields matching Kind are meaningful.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// datetime
	ISO string `json:"iso,omitempty"`

	// relative: ISO-8601 duration, pattern P(nD)?T?(nH)?(nM)?
	Duration string `json:"duration,omitempty"`

	// cron
	Cron  string `json:"cron,omitempty"`
	Limit int    `json:"limit,omitempty"`

	// datetime and cron may carry their own timezone
	TZ string `json:"tz,omitempty"`
}

// ParsedIntent is the structured scheduling intent extracted from free text.
type ParsedIntent struct {
	Intent         IntentKind        `json:"intent"`
	Channel        string            `json:"channel,omitempty"`
	Recipients     []string          `json:"recipients,omitempty"`
	Schedule       *Schedule         `json:"schedule,omitempty"`
	TemplateKey    string            `json:"template_key,omitempty"`
	Message        string            `json:"message,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	Operation      Operation         `json:"operation"`
	NotificationID string            `json:"notification_id,omitempty"`
}

// ParsedIntentFromMap builds a ParsedIntent from a decoded LLM JSON object.
// Unknown keys are ignored; missing fields take zero values, with the
// operation defaulting to create.
func ParsedIntentFromMap(m map[string]any) *ParsedIntent {
	pi := &ParsedIntent{
		Intent:         IntentKind(strings.ToLower(typeutil.StringDefault(m["intent"], string(IntentNotify)))),
		Channel:        strings.ToLower(typeutil.StringDefault(m["channel"], "")),
		Recipients:     typeutil.StringSlice(m["recipients"]),
		TemplateKey:    typeutil.StringDefault(m["template_key"], ""),
		Message:        typeutil.StringDefault(m["message"], ""),
		Variables:      typeutil.StringMap(m["variables"]),
		Timezone:       typeutil.StringDefault(m["timezone"], ""),
		Operation:      Operation(strings.ToLower(typeutil.StringDefault(m["operation"], string(OperationCreate)))),
		NotificationID: typeutil.StringDefault(m["notification_id"], ""),
	}

	switch pi.Operation {
	case OperationCreate, OperationUpdate, OperationCancel, OperationQuery:
	default:
		pi.Operation = OperationCreate
	}
	switch pi.Intent {
	case IntentNotify, IntentRemind, IntentFollowUp:
	default:
		pi.Intent = IntentNotify
	}

	if sched, ok := typeutil.Map(m["schedule"]); ok {
		s := &Schedule{
			Kind:     ScheduleKind(strings.ToLower(typeutil.StringDefault(sched["kind"], string(ScheduleNow)))),
			ISO:      typeutil.StringDefault(sched["iso"], ""),
			Duration: typeutil.StringDefault(sched["duration"], ""),
			Cron:     typeutil.StringDefault(sched["cron"], ""),
			TZ:       typeutil.StringDefault(sched["tz"], ""),
		}
		if limit, ok := typeutil.Int(sched["limit"]); ok {
			s.Limit = limit
		}
		switch s.Kind {
		case ScheduleNow, ScheduleDatetime, ScheduleRelative, ScheduleCron:
		default:
			s.Kind = ScheduleNow
		}
		pi.Schedule = s
	}

	return pi
}
