package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/observability"
)

// =============================================================================
// SCHEDULER
// =============================================================================

// Config tunes a Scheduler.
type Config struct {
	DefaultTimezone string
	RetryAttempts   int
	RetryBackoff    time.Duration
}

// Scheduler orchestrates the plan lifecycle: policy evaluation, queue
// submission, persistence and dead-lettering.
type Scheduler struct {
	queue  JobQueue
	store  PlanStore
	dead   DeadLetter
	logger agent.Logger
	cfg    Config
	nowFn  func() time.Time
}

// NewScheduler creates a Scheduler. Logger may be nil.
func NewScheduler(queue JobQueue, store PlanStore, dead DeadLetter, logger agent.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &Scheduler{
		queue:  queue,
		store:  store,
		dead:   dead,
		logger: logger,
		cfg:    cfg,
		nowFn:  time.Now,
	}
}

// WithClock overrides the scheduler clock. Intended for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.nowFn = now
	return s
}

// Outcome reports a successful create or update.
type Outcome struct {
	NotificationID string            `json:"notification_id"`
	JobID          string            `json:"job_id"`
	Plan           *NotificationPlan `json:"plan"`
}

func (s *Scheduler) policyContext(utterance, timezone string) PolicyContext {
	tz := timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	return PolicyContext{
		Utterance:       utterance,
		DefaultTimezone: tz,
		RetryAttempts:   s.cfg.RetryAttempts,
		RetryBackoff:    s.cfg.RetryBackoff,
		Now:             s.nowFn,
	}
}

// Create evaluates policy for the intent and enqueues the resulting plan.
// Policy failures and queue failures are dead-lettered before returning.
func (s *Scheduler) Create(ctx context.Context, userID, utterance, userTimezone string, intent *ParsedIntent) (*Outcome, error) {
	plan, err := EvaluatePolicy(intent, s.policyContext(utterance, userTimezone))
	if err != nil {
		s.deadLetter(ctx, DeadLetterPolicyRejected, userID, utterance, err)
		return nil, err
	}

	jobID, err := s.queue.Enqueue(ctx, plan, plan.IdempotencyKey)
	if err != nil {
		s.deadLetter(ctx, DeadLetterEnqueueFailed, userID, utterance, err)
		observability.RecordJobEnqueued("failed")
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	observability.RecordJobEnqueued("accepted")

	notificationID := intent.NotificationID
	if notificationID == "" {
		notificationID = "ntf_" + uuid.New().String()[:16]
	}

	now := s.nowFn()
	rec := &PlanRecord{
		NotificationID: notificationID,
		UserID:         userID,
		Plan:           plan,
		JobID:          jobID,
		Status:         PlanScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.SavePlan(ctx, rec); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	s.logger.Info("notification_scheduled",
		"notification_id", notificationID,
		"job_id", jobID,
		"user_id", userID,
		"recipients", len(plan.To))

	return &Outcome{NotificationID: notificationID, JobID: jobID, Plan: plan}, nil
}

// Cancel removes a scheduled notification. When notificationID is empty the
// target is resolved by matching the utterance against the user's scheduled
// plans; matching errors (ErrNoDateToken, ErrAmbiguousMatch, ErrNoPlanMatched)
// are returned for the caller to turn into follow-up questions.
func (s *Scheduler) Cancel(ctx context.Context, userID, utterance, notificationID string) (*PlanRecord, error) {
	rec, err := s.resolveTarget(ctx, userID, utterance, notificationID)
	if err != nil {
		return nil, err
	}

	if removed := s.queue.Remove(ctx, rec.JobID); !removed {
		s.logger.Warn("job_already_gone", "job_id", rec.JobID, "notification_id", rec.NotificationID)
	}
	if err := s.store.SetStatus(ctx, rec.NotificationID, PlanCanceled); err != nil {
		return nil, fmt.Errorf("cancel plan: %w", err)
	}
	rec.Status = PlanCanceled

	s.logger.Info("notification_canceled",
		"notification_id", rec.NotificationID,
		"user_id", userID)
	return rec, nil
}

// Update replaces the schedule of an existing notification: the old job is
// removed and a new plan, evaluated from the fresh intent, takes over the
// same notification ID.
func (s *Scheduler) Update(ctx context.Context, userID, utterance, userTimezone string, intent *ParsedIntent) (*Outcome, error) {
	rec, err := s.resolveTarget(ctx, userID, utterance, intent.NotificationID)
	if err != nil {
		return nil, err
	}

	// Carry fields the update did not restate.
	if len(intent.Recipients) == 0 {
		intent.Recipients = rec.Plan.To
	}
	if intent.Message == "" && intent.TemplateKey == "" {
		intent.Message = rec.Plan.Body
	}

	plan, err := EvaluatePolicy(intent, s.policyContext(utterance, userTimezone))
	if err != nil {
		s.deadLetter(ctx, DeadLetterPolicyRejected, userID, utterance, err)
		return nil, err
	}

	s.queue.Remove(ctx, rec.JobID)

	jobID, err := s.queue.Enqueue(ctx, plan, plan.IdempotencyKey)
	if err != nil {
		s.deadLetter(ctx, DeadLetterEnqueueFailed, userID, utterance, err)
		observability.RecordJobEnqueued("failed")
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	observability.RecordJobEnqueued("accepted")

	rec.Plan = plan
	rec.JobID = jobID
	rec.Status = PlanScheduled
	rec.UpdatedAt = s.nowFn()
	if err := s.store.SavePlan(ctx, rec); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	s.logger.Info("notification_updated",
		"notification_id", rec.NotificationID,
		"job_id", jobID,
		"user_id", userID)

	return &Outcome{NotificationID: rec.NotificationID, JobID: jobID, Plan: plan}, nil
}

// QueryResult reports a user's plans together with queue depth.
type QueryResult struct {
	Plans  []*PlanRecord `json:"plans"`
	Counts QueueCounts   `json:"counts"`
}

// Query lists the user's plans and a queue snapshot.
func (s *Scheduler) Query(ctx context.Context, userID string) (*QueryResult, error) {
	plans, err := s.store.ListPlans(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return &QueryResult{Plans: plans, Counts: s.queue.Counts(ctx)}, nil
}

func (s *Scheduler) resolveTarget(ctx context.Context, userID, utterance, notificationID string) (*PlanRecord, error) {
	if notificationID != "" {
		rec, err := s.store.GetPlan(ctx, notificationID)
		if err != nil {
			return nil, fmt.Errorf("load plan %s: %w", notificationID, err)
		}
		return rec, nil
	}

	plans, err := s.store.ListPlans(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	loc, err := time.LoadLocation(s.cfg.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return MatchPlan(plans, utterance, s.nowFn(), loc)
}

func (s *Scheduler) deadLetter(ctx context.Context, reason, userID, utterance string, cause error) {
	if s.dead == nil {
		return
	}
	s.dead.Put(ctx, reason, map[string]any{
		"user_id":   userID,
		"utterance": utterance,
		"error":     cause.Error(),
		"at":        s.nowFn().UTC().Format(time.RFC3339),
	})
	observability.RecordDeadLetter(reason)
	s.logger.Warn("notification_dead_lettered", "reason", reason, "error", cause.Error())
}
