// Package planstore persists notification plan records.
//
// Two implementations are provided: a SQLite-backed store for the daemon
// and an in-memory store for tests and ephemeral deployments.
package planstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/careloop-ai/assistant-core/schedule"
)

// NotFoundError indicates no plan record exists for the notification ID.
type NotFoundError struct {
	NotificationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plan not found: %s", e.NotificationID)
}

// MemoryStore implements schedule.PlanStore in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*schedule.PlanRecord // notification ID -> record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*schedule.PlanRecord)}
}

// SavePlan inserts or replaces the record for its notification ID.
func (s *MemoryStore) SavePlan(ctx context.Context, rec *schedule.PlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.NotificationID] = &cp
	return nil
}

// ListPlans returns the user's records, newest first.
func (s *MemoryStore) ListPlans(ctx context.Context, userID string) ([]*schedule.PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*schedule.PlanRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetPlan returns the record for the notification ID.
func (s *MemoryStore) GetPlan(ctx context.Context, notificationID string) (*schedule.PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[notificationID]
	if !ok {
		return nil, &NotFoundError{NotificationID: notificationID}
	}
	cp := *rec
	return &cp, nil
}

// SetStatus updates the record's lifecycle status.
func (s *MemoryStore) SetStatus(ctx context.Context, notificationID string, status schedule.PlanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[notificationID]
	if !ok {
		return &NotFoundError{NotificationID: notificationID}
	}
	rec.Status = status
	return nil
}

var _ schedule.PlanStore = (*MemoryStore)(nil)
