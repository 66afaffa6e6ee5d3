// Package queue provides the in-memory notification job queue.
//
// Jobs move through waiting/delayed -> active -> completed/failed. Delivery
// retries follow the plan's retry policy, and recurring plans are re-armed
// from their cron expression until the repeat limit is reached.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/careloop-ai/assistant-core/core/agent"
	"github.com/careloop-ai/assistant-core/schedule"
)

// Sender delivers a plan's message. The queue retries failed sends per the
// plan's retry policy.
type Sender func(ctx context.Context, plan *schedule.NotificationPlan) error

type jobState string

const (
	stateWaiting   jobState = "waiting"
	stateDelayed   jobState = "delayed"
	stateActive    jobState = "active"
	stateCompleted jobState = "completed"
	stateFailed    jobState = "failed"
	stateRemoved   jobState = "removed"
)

type job struct {
	id       string
	key      string
	plan     *schedule.NotificationPlan
	state    jobState
	timer    *time.Timer
	fired    int // repeat occurrences delivered so far
	cronNext cron.Schedule
}

// InMemoryJobQueue implements schedule.JobQueue.
type InMemoryJobQueue struct {
	mu     sync.Mutex
	jobs   map[string]*job
	byKey  map[string]string // idempotency key -> live job ID
	sender Sender
	logger agent.Logger
	parser cron.Parser
	wg     sync.WaitGroup
	closed bool
}

// NewInMemoryJobQueue creates a queue. A nil sender makes delivery a no-op
// that always succeeds; logger may be nil.
func NewInMemoryJobQueue(sender Sender, logger agent.Logger) *InMemoryJobQueue {
	if sender == nil {
		sender = func(context.Context, *schedule.NotificationPlan) error { return nil }
	}
	if logger == nil {
		logger = agent.NopLogger{}
	}
	return &InMemoryJobQueue{
		jobs:   make(map[string]*job),
		byKey:  make(map[string]string),
		sender: sender,
		logger: logger,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Enqueue implements schedule.JobQueue. A key matching a live job returns
// that job's ID without enqueuing again.
func (q *InMemoryJobQueue) Enqueue(ctx context.Context, plan *schedule.NotificationPlan, idempotencyKey string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existingID, ok := q.byKey[idempotencyKey]; ok {
		if j, live := q.jobs[existingID]; live && isLive(j.state) {
			q.logger.Debug("job_deduplicated", "job_id", existingID, "key", idempotencyKey)
			return existingID, nil
		}
	}

	j := &job{
		id:   "job_" + uuid.New().String()[:16],
		key:  idempotencyKey,
		plan: plan,
	}

	var delay time.Duration
	now := time.Now()
	switch {
	case plan.Repeat != nil:
		sched, err := q.parser.Parse(plan.Repeat.Cron)
		if err != nil {
			return "", err
		}
		j.cronNext = sched
		delay = q.cronDelay(j, now)
		j.state = stateDelayed
	case plan.ScheduleAt != nil && plan.ScheduleAt.After(now):
		delay = plan.ScheduleAt.Sub(now)
		j.state = stateDelayed
	default:
		j.state = stateWaiting
	}

	q.jobs[j.id] = j
	q.byKey[idempotencyKey] = j.id
	q.armLocked(j, delay)

	q.logger.Debug("job_enqueued", "job_id", j.id, "state", string(j.state), "delay_ms", delay.Milliseconds())
	return j.id, nil
}

// Remove implements schedule.JobQueue. Returns false when the job is gone
// or already terminal.
func (q *InMemoryJobQueue) Remove(ctx context.Context, jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok || !isLive(j.state) {
		return false
	}
	q.stopTimerLocked(j)
	j.state = stateRemoved
	delete(q.byKey, j.key)
	return true
}

// Counts implements schedule.JobQueue.
func (q *InMemoryJobQueue) Counts(ctx context.Context) schedule.QueueCounts {
	q.mu.Lock()
	defer q.mu.Unlock()

	var c schedule.QueueCounts
	for _, j := range q.jobs {
		switch j.state {
		case stateWaiting:
			c.Waiting++
		case stateDelayed:
			c.Delayed++
		case stateActive:
			c.Active++
		case stateCompleted:
			c.Completed++
		case stateFailed:
			c.Failed++
		}
	}
	return c
}

// Close stops accepting work and waits for in-flight deliveries.
func (q *InMemoryJobQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, j := range q.jobs {
		q.stopTimerLocked(j)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// stopTimerLocked stops a job's pending timer. A successful Stop means the
// callback will never run, so its WaitGroup slot is released here.
// Caller holds q.mu.
func (q *InMemoryJobQueue) stopTimerLocked(j *job) {
	if j.timer == nil {
		return
	}
	if j.timer.Stop() {
		q.wg.Done()
	}
	j.timer = nil
}

func isLive(s jobState) bool {
	return s == stateWaiting || s == stateDelayed || s == stateActive
}

func (q *InMemoryJobQueue) cronDelay(j *job, now time.Time) time.Duration {
	loc := time.UTC
	if j.plan.Repeat.TZ != "" {
		if l, err := time.LoadLocation(j.plan.Repeat.TZ); err == nil {
			loc = l
		}
	}
	return j.cronNext.Next(now.In(loc)).Sub(now)
}

// armLocked schedules the job's next activation. Caller holds q.mu.
func (q *InMemoryJobQueue) armLocked(j *job, delay time.Duration) {
	if q.closed {
		return
	}
	if delay < 0 {
		delay = 0
	}
	q.wg.Add(1)
	j.timer = time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.run(j)
	})
}

// run delivers the job with retry, then completes, fails, or re-arms a
// recurring job.
func (q *InMemoryJobQueue) run(j *job) {
	q.mu.Lock()
	if !isLive(j.state) {
		q.mu.Unlock()
		return
	}
	j.state = stateActive
	plan := j.plan
	q.mu.Unlock()

	err := q.deliver(plan)

	q.mu.Lock()
	defer q.mu.Unlock()
	if j.state != stateActive {
		return
	}

	if err != nil {
		j.state = stateFailed
		delete(q.byKey, j.key)
		q.logger.Error("job_failed", "job_id", j.id, "error", err.Error())
		return
	}

	j.fired++
	if j.cronNext != nil && (plan.Repeat.Limit == 0 || j.fired < plan.Repeat.Limit) {
		j.state = stateDelayed
		q.armLocked(j, q.cronDelay(j, time.Now()))
		q.logger.Debug("job_rearmed", "job_id", j.id, "fired", j.fired)
		return
	}

	j.state = stateCompleted
	delete(q.byKey, j.key)
	q.logger.Debug("job_completed", "job_id", j.id)
}

func (q *InMemoryJobQueue) deliver(plan *schedule.NotificationPlan) error {
	attempts := plan.Retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = agent.SafeExecute(q.logger, "notification send", func() error {
			return q.sender(context.Background(), plan)
		})
		if err == nil {
			return nil
		}
		if attempt < attempts {
			// Exponential backoff: backoff * 2^(attempt-1).
			time.Sleep(plan.Retry.Backoff << (attempt - 1))
		}
	}
	return err
}

var _ schedule.JobQueue = (*InMemoryJobQueue)(nil)
