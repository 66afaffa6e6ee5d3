package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// NOTIFICATION PLAN
// =============================================================================

// RepeatSpec describes a recurring schedule.
type RepeatSpec struct {
	Cron  string `json:"cron"`
	TZ    string `json:"tz,omitempty"`
	Limit int    `json:"limit,omitempty"` // 0 means unbounded
}

// RetryPolicy controls delivery retries for a plan's job.
type RetryPolicy struct {
	Attempts  int           `json:"attempts"`
	Backoff   time.Duration `json:"backoff"`
	Immediate bool          `json:"immediate,omitempty"`
}

// NotificationPlan is the fully resolved output of policy evaluation,
// ready to be enqueued. Equal plans produce equal idempotency keys.
type NotificationPlan struct {
	Channel        string      `json:"channel"`
	To             []string    `json:"to"`
	Body           string      `json:"body"`
	ScheduleAt     *time.Time  `json:"schedule_at,omitempty"` // nil means immediate
	Repeat         *RepeatSpec `json:"repeat,omitempty"`
	Retry          RetryPolicy `json:"retry"`
	IdempotencyKey string      `json:"idempotency_key"`
	Labels         []string    `json:"labels,omitempty"`
	PolicyNotes    []string    `json:"policy_notes,omitempty"`
}

// ComputeIdempotencyKey derives a stable key from the delivery-relevant
// fields of the plan: recipients, body, schedule instant and repeat spec.
// Recipient order does not affect the key.
func (p *NotificationPlan) ComputeIdempotencyKey() string {
	to := make([]string, len(p.To))
	copy(to, p.To)
	sort.Strings(to)

	var b strings.Builder
	b.WriteString(strings.Join(to, ","))
	b.WriteString("|")
	b.WriteString(p.Body)
	b.WriteString("|")
	if p.ScheduleAt != nil {
		b.WriteString(p.ScheduleAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("|")
	if p.Repeat != nil {
		fmt.Fprintf(&b, "%s@%s#%d", p.Repeat.Cron, p.Repeat.TZ, p.Repeat.Limit)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
