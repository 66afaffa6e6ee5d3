package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/core/collab"
	"github.com/careloop-ai/assistant-core/llm"
	"github.com/careloop-ai/assistant-core/schedule"
)

const parseIntentPrompt = `Extract the scheduling request from the message
into JSON. Use exactly these fields:

{
  "intent": "notify" | "remind" | "follow_up",
  "operation": "create" | "update" | "cancel" | "query",
  "channel": "sms",
  "recipients": ["+61400000000"],
  "message": "<text to send, empty if not stated>",
  "template_key": "<template name or empty>",
  "variables": {},
  "timezone": "<IANA zone or empty>",
  "schedule": {"kind": "now" | "datetime" | "relative" | "cron",
               "iso": "", "duration": "", "cron": "", "tz": "", "limit": 0},
  "notification_id": "<only if the user referenced a specific one>"
}

Only include recipients that appear in the message. Return ONLY the JSON.

Message: %q
JSON:`

// NotificationHandler parses scheduling utterances and drives the
// scheduler's plan lifecycle.
type NotificationHandler struct {
	provider  llm.Provider
	scheduler *schedule.Scheduler
	logger    agent.Logger
}

// NewNotificationHandler creates the notification handler. Logger may be nil.
func NewNotificationHandler(provider llm.Provider, scheduler *schedule.Scheduler, logger agent.Logger) *NotificationHandler {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &NotificationHandler{provider: provider, scheduler: scheduler, logger: logger}
}

func (h *NotificationHandler) Name() string { return "notification" }

func (h *NotificationHandler) Capabilities() []string {
	return []string{"schedule SMS notifications", "update or cancel scheduled notifications", "list scheduled notifications"}
}

// Process parses the utterance into a scheduling intent and executes the
// requested lifecycle operation.
func (h *NotificationHandler) Process(ctx context.Context, input agent.AgentInput) (agent.AgentOutput, error) {
	intent, usage := h.parseIntent(ctx, input.Message)

	switch intent.Operation {
	case schedule.OperationCancel:
		return h.cancel(ctx, input, intent, usage)
	case schedule.OperationUpdate:
		return h.update(ctx, input, intent, usage)
	case schedule.OperationQuery:
		return h.query(ctx, input, usage)
	default:
		return h.create(ctx, input, intent, usage)
	}
}

// parseIntent extracts a ParsedIntent via the LLM, repairing malformed
// JSON. Failure degrades to a create intent over the raw utterance.
func (h *NotificationHandler) parseIntent(ctx context.Context, message string) (*schedule.ParsedIntent, int) {
	res, err := llm.GenerateWithOptionalUsage(ctx, h.provider, fmt.Sprintf(parseIntentPrompt, message), llm.Options{
		Temperature: llm.Temp(0),
	})
	if err != nil {
		h.logger.Warn("intent_parse_llm_error", "error", err.Error())
		return &schedule.ParsedIntent{Intent: schedule.IntentNotify, Operation: schedule.OperationCreate}, 0
	}

	raw := strings.TrimSpace(res.Text)
	var obj map[string]any
	if json.Unmarshal([]byte(raw), &obj) != nil {
		if repaired, rerr := jsonrepair.JSONRepair(raw); rerr == nil {
			_ = json.Unmarshal([]byte(repaired), &obj)
		}
	}
	if obj == nil {
		h.logger.Warn("intent_parse_unparseable", "response_length", len(raw))
		return &schedule.ParsedIntent{Intent: schedule.IntentNotify, Operation: schedule.OperationCreate}, res.Usage.TotalTokens
	}
	return schedule.ParsedIntentFromMap(obj), res.Usage.TotalTokens
}

func (h *NotificationHandler) create(ctx context.Context, input agent.AgentInput, intent *schedule.ParsedIntent, usage int) (agent.AgentOutput, error) {
	outcome, err := h.scheduler.Create(ctx, input.UserID, input.Message, input.Timezone(), intent)
	if err != nil {
		return agent.AgentOutput{
			Reply: fmt.Sprintf("I couldn't schedule that: %s.", err.Error()),
			Actions: []agent.Action{{
				Type:    "schedule_notification",
				Status:  agent.ActionStatusFailed,
				Payload: map[string]any{"reason": err.Error()},
			}},
			UsageTotalTokens: usage,
		}, nil
	}

	reply := fmt.Sprintf("Done. I'll send %q to %s%s.",
		outcome.Plan.Body, strings.Join(outcome.Plan.To, ", "), describeWhen(outcome.Plan))

	return agent.AgentOutput{
		Reply: reply,
		Actions: []agent.Action{{
			Type:   "schedule_notification",
			Status: agent.ActionStatusDone,
			Payload: map[string]any{
				"notification_id": outcome.NotificationID,
				"job_id":          outcome.JobID,
			},
		}},
		SharedData: map[string]any{
			collab.SharedKeyNotificationSchedule: scheduleSummary(outcome),
		},
		UsageTotalTokens: usage,
	}, nil
}

func (h *NotificationHandler) cancel(ctx context.Context, input agent.AgentInput, intent *schedule.ParsedIntent, usage int) (agent.AgentOutput, error) {
	rec, err := h.scheduler.Cancel(ctx, input.UserID, input.Message, intent.NotificationID)
	if err != nil {
		if out, handled := h.matchFailure(err, usage); handled {
			return out, nil
		}
		return agent.AgentOutput{}, err
	}

	return agent.AgentOutput{
		Reply: fmt.Sprintf("Canceled the notification scheduled%s.", describeWhen(rec.Plan)),
		Actions: []agent.Action{{
			Type:    "cancel_notification",
			Status:  agent.ActionStatusDone,
			Payload: map[string]any{"notification_id": rec.NotificationID},
		}},
		UsageTotalTokens: usage,
	}, nil
}

func (h *NotificationHandler) update(ctx context.Context, input agent.AgentInput, intent *schedule.ParsedIntent, usage int) (agent.AgentOutput, error) {
	outcome, err := h.scheduler.Update(ctx, input.UserID, input.Message, input.Timezone(), intent)
	if err != nil {
		if out, handled := h.matchFailure(err, usage); handled {
			return out, nil
		}
		return agent.AgentOutput{
			Reply: fmt.Sprintf("I couldn't update that notification: %s.", err.Error()),
			Actions: []agent.Action{{
				Type:    "update_notification",
				Status:  agent.ActionStatusFailed,
				Payload: map[string]any{"reason": err.Error()},
			}},
			UsageTotalTokens: usage,
		}, nil
	}

	return agent.AgentOutput{
		Reply: fmt.Sprintf("Updated. The notification will now go out%s.", describeWhen(outcome.Plan)),
		Actions: []agent.Action{{
			Type:   "update_notification",
			Status: agent.ActionStatusDone,
			Payload: map[string]any{
				"notification_id": outcome.NotificationID,
				"job_id":          outcome.JobID,
			},
		}},
		SharedData: map[string]any{
			collab.SharedKeyNotificationSchedule: scheduleSummary(outcome),
		},
		UsageTotalTokens: usage,
	}, nil
}

func (h *NotificationHandler) query(ctx context.Context, input agent.AgentInput, usage int) (agent.AgentOutput, error) {
	result, err := h.scheduler.Query(ctx, input.UserID)
	if err != nil {
		return agent.AgentOutput{}, err
	}

	var scheduled []*schedule.PlanRecord
	for _, rec := range result.Plans {
		if rec.Status == schedule.PlanScheduled {
			scheduled = append(scheduled, rec)
		}
	}
	if len(scheduled) == 0 {
		return agent.AgentOutput{
			Reply:            "You have no scheduled notifications.",
			UsageTotalTokens: usage,
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d scheduled notification(s):\n", len(scheduled))
	for _, rec := range scheduled {
		fmt.Fprintf(&b, "- %q%s\n", rec.Plan.Body, describeWhen(rec.Plan))
	}
	return agent.AgentOutput{
		Reply:            strings.TrimSpace(b.String()),
		UsageTotalTokens: usage,
	}, nil
}

// matchFailure turns ambiguity in cancel/update target resolution into a
// pending action plus a clarifying question instead of an error.
func (h *NotificationHandler) matchFailure(err error, usage int) (agent.AgentOutput, bool) {
	var question string
	switch {
	case errors.Is(err, schedule.ErrAmbiguousMatch):
		question = "You have more than one notification that could match. Which date is the one you mean?"
	case errors.Is(err, schedule.ErrNoDateToken):
		question = "Which notification do you mean? Please mention its date, for example \"the one on July 3\"."
	case errors.Is(err, schedule.ErrNoPlanMatched):
		question = "I couldn't find a scheduled notification on that date. Could you check the date?"
	default:
		return agent.AgentOutput{}, false
	}

	return agent.AgentOutput{
		Reply: question,
		Actions: []agent.Action{{
			Type:    "resolve_notification",
			Status:  agent.ActionStatusPending,
			Payload: map[string]any{"reason": err.Error()},
		}},
		Followups: []agent.Followup{{
			Type: agent.FollowupTypeQuestion,
			Text: question,
		}},
		UsageTotalTokens: usage,
	}, true
}

func describeWhen(plan *schedule.NotificationPlan) string {
	switch {
	case plan.Repeat != nil:
		return fmt.Sprintf(" on the schedule %q", plan.Repeat.Cron)
	case plan.ScheduleAt != nil:
		return " at " + plan.ScheduleAt.Format("Mon 2 Jan 15:04")
	default:
		return " right away"
	}
}

func scheduleSummary(outcome *schedule.Outcome) map[string]any {
	summary := map[string]any{
		"notification_id": outcome.NotificationID,
		"job_id":          outcome.JobID,
		"body":            outcome.Plan.Body,
		"recipients":      outcome.Plan.To,
	}
	if outcome.Plan.ScheduleAt != nil {
		summary["schedule_at"] = outcome.Plan.ScheduleAt.Format(time.RFC3339)
	}
	if outcome.Plan.Repeat != nil {
		summary["cron"] = outcome.Plan.Repeat.Cron
	}
	return summary
}

var _ agent.Handler = (*NotificationHandler)(nil)
