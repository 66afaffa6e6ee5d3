package schedule

import (
	"context"
	"time"
)

// =============================================================================
// PLAN LIFECYCLE
// =============================================================================

// PlanStatus is the lifecycle state of a stored plan.
type PlanStatus string

const (
	PlanScheduled PlanStatus = "scheduled"
	PlanCanceled  PlanStatus = "canceled"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// PlanRecord is a stored plan with its queue binding.
type PlanRecord struct {
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Plan           *NotificationPlan `json:"plan"`
	JobID          string            `json:"job_id"`
	Status         PlanStatus        `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// =============================================================================
// PROTOCOLS
// =============================================================================

// QueueCounts is a snapshot of queue depth by state.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// JobQueue accepts notification plans for asynchronous delivery.
//
// Enqueue is idempotent on the key: submitting a plan whose key matches a
// live (waiting, delayed or active) job returns that job's ID without
// creating a new one.
type JobQueue interface {
	Enqueue(ctx context.Context, plan *NotificationPlan, idempotencyKey string) (jobID string, err error)
	Remove(ctx context.Context, jobID string) bool
	Counts(ctx context.Context) QueueCounts
}

// PlanStore persists plan records keyed by notification ID.
type PlanStore interface {
	SavePlan(ctx context.Context, rec *PlanRecord) error
	ListPlans(ctx context.Context, userID string) ([]*PlanRecord, error)
	GetPlan(ctx context.Context, notificationID string) (*PlanRecord, error)
	SetStatus(ctx context.Context, notificationID string, status PlanStatus) error
}

// Dead-letter reasons.
const (
	DeadLetterPolicyRejected = "POLICY_REJECTED"
	DeadLetterEnqueueFailed  = "ENQUEUE_FAILED"
)

// DeadLetter records plans that could not enter the queue, with the reason.
type DeadLetter interface {
	Put(ctx context.Context, reason string, payload map[string]any)
}
