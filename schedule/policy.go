package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// =============================================================================
// POLICY ERRORS
// =============================================================================

// Policy hard failures. Message text is part of the user-facing contract.
var (
	ErrNoRecipients = errors.New("No valid recipient phone numbers found")
	ErrEmptyBody    = errors.New("Notification body is empty")
)

// =============================================================================
// POLICY CONTEXT
// =============================================================================

// PolicyContext carries the per-request environment for policy evaluation.
type PolicyContext struct {
	// Utterance is the raw user text, used for natural-language schedule
	// inference when the intent carries no actionable schedule.
	Utterance string

	// DefaultTimezone applies when neither the intent nor its schedule
	// names one.
	DefaultTimezone string

	// RetryAttempts and RetryBackoff configure the plan's retry policy.
	// Zero values take the built-in defaults (3 attempts, 5s backoff).
	RetryAttempts int
	RetryBackoff  time.Duration

	// Now overrides the clock for tests. Nil means time.Now.
	Now func() time.Time
}

func (c PolicyContext) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 5 * time.Second
)

// =============================================================================
// TEMPLATES
// =============================================================================

// Built-in message templates, rendered with {{var}} substitution.
var messageTemplates = map[string]string{
	"medication_reminder":  "Hi {{name}}, this is a reminder to take your {{medication}}.",
	"appointment_reminder": "Hi {{name}}, you have an appointment {{when}}.",
	"check_in":             "Hi {{name}}, just checking in. How are you feeling today?",
}

var templateVarRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

func renderTemplate(body string, vars map[string]string) string {
	return templateVarRe.ReplaceAllStringFunc(body, func(m string) string {
		name := templateVarRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// =============================================================================
// RECIPIENT VALIDATION
// =============================================================================

var phoneRe = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

func normalizePhone(raw string) (string, bool) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	if phoneRe.MatchString(cleaned) {
		return cleaned, true
	}
	return "", false
}

// =============================================================================
// POLICY EVALUATION
// =============================================================================

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// EvaluatePolicy resolves a parsed intent into a concrete NotificationPlan.
//
// Resolution order: channel, recipients, body, timezone, schedule, retry.
// Recipient and body failures are hard errors; everything else degrades
// with a note recorded on the plan.
func EvaluatePolicy(intent *ParsedIntent, pctx PolicyContext) (*NotificationPlan, error) {
	plan := &NotificationPlan{}

	// 1. Channel. Only SMS delivery exists; anything else is coerced.
	plan.Channel = "sms"
	if intent.Channel != "" && intent.Channel != "sms" {
		plan.PolicyNotes = append(plan.PolicyNotes,
			fmt.Sprintf("channel %q is not supported, using sms", intent.Channel))
	}

	// 2. Recipients. Invalid entries are dropped; none left is a hard failure.
	for _, r := range intent.Recipients {
		if phone, ok := normalizePhone(r); ok {
			plan.To = append(plan.To, phone)
		} else {
			plan.PolicyNotes = append(plan.PolicyNotes,
				fmt.Sprintf("dropped invalid recipient %q", r))
		}
	}
	if len(plan.To) == 0 {
		return nil, ErrNoRecipients
	}

	// 3. Body: explicit message, then template, then the raw utterance.
	body := strings.TrimSpace(intent.Message)
	if body == "" && intent.TemplateKey != "" {
		if tpl, ok := messageTemplates[intent.TemplateKey]; ok {
			body = tpl
		} else {
			plan.PolicyNotes = append(plan.PolicyNotes,
				fmt.Sprintf("unknown template %q", intent.TemplateKey))
		}
	}
	if body == "" {
		body = strings.TrimSpace(pctx.Utterance)
	}
	body = renderTemplate(body, intent.Variables)
	if body == "" {
		return nil, ErrEmptyBody
	}
	plan.Body = body

	// 4. Timezone: intent, then schedule, then configured default, then UTC.
	tzName := intent.Timezone
	if tzName == "" && intent.Schedule != nil {
		tzName = intent.Schedule.TZ
	}
	if tzName == "" {
		tzName = pctx.DefaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		plan.PolicyNotes = append(plan.PolicyNotes,
			fmt.Sprintf("unknown timezone %q, using UTC", tzName))
		loc = time.UTC
		tzName = "UTC"
	}

	// 5. Schedule.
	if err := resolveSchedule(intent, pctx, plan, loc, tzName); err != nil {
		return nil, err
	}

	plan.Labels = append(plan.Labels, string(intent.Intent))
	if plan.Repeat != nil {
		plan.Labels = append(plan.Labels, "recurring")
	}

	// 6. Retry policy and idempotency key.
	plan.Retry = RetryPolicy{Attempts: pctx.RetryAttempts, Backoff: pctx.RetryBackoff}
	if plan.Retry.Attempts <= 0 {
		plan.Retry.Attempts = defaultRetryAttempts
	}
	if plan.Retry.Backoff <= 0 {
		plan.Retry.Backoff = defaultRetryBackoff
	}
	plan.IdempotencyKey = plan.ComputeIdempotencyKey()

	return plan, nil
}

func resolveSchedule(intent *ParsedIntent, pctx PolicyContext, plan *NotificationPlan, loc *time.Location, tzName string) error {
	now := pctx.now().In(loc)

	sched := intent.Schedule
	kind := ScheduleNow
	if sched != nil {
		kind = sched.Kind
	}

	switch kind {
	case ScheduleDatetime:
		at, err := parseDatetimeISO(sched.ISO, loc)
		if err != nil {
			return err
		}
		if !at.After(now) {
			plan.PolicyNotes = append(plan.PolicyNotes,
				"requested time is in the past, sending immediately")
			return nil
		}
		plan.ScheduleAt = &at
		return nil

	case ScheduleRelative:
		d, err := ParseISODuration(sched.Duration)
		if err != nil {
			return err
		}
		at := now.Add(d)
		plan.ScheduleAt = &at
		return nil

	case ScheduleCron:
		if _, err := cronParser.Parse(sched.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", sched.Cron, err)
		}
		plan.Repeat = &RepeatSpec{Cron: sched.Cron, TZ: tzName, Limit: sched.Limit}
		return nil

	default: // now, or nothing parsed: fall back to the utterance
		if at, ok := InferScheduleTime(pctx.Utterance, now, loc); ok {
			plan.ScheduleAt = &at
		}
		return nil
	}
}
