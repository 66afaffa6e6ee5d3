package planstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop-ai/assistant-core/schedule"
)

func sampleRecord(id, userID string) *schedule.PlanRecord {
	at := time.Date(2026, 7, 8, 9, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	return &schedule.PlanRecord{
		NotificationID: id,
		UserID:         userID,
		Plan: &schedule.NotificationPlan{
			Channel:        "sms",
			To:             []string{"+61412345678"},
			Body:           "take your pills",
			ScheduleAt:     &at,
			Retry:          schedule.RetryPolicy{Attempts: 3, Backoff: 5 * time.Second},
			IdempotencyKey: "abc123",
		},
		JobID:     "job_1",
		Status:    schedule.PlanScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// storeUnderTest runs the same contract against both implementations.
func storesUnderTest(t *testing.T) map[string]schedule.PlanStore {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]schedule.PlanStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestPlanStoreRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("n1", "u1")
			require.NoError(t, store.SavePlan(ctx, rec))

			got, err := store.GetPlan(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "job_1", got.JobID)
			assert.Equal(t, schedule.PlanScheduled, got.Status)
			require.NotNil(t, got.Plan.ScheduleAt)
			assert.Equal(t, rec.Plan.ScheduleAt.Unix(), got.Plan.ScheduleAt.Unix())
			assert.Equal(t, rec.Plan.To, got.Plan.To)
		})
	}
}

func TestPlanStoreSaveReplaces(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("n1", "u1")
			require.NoError(t, store.SavePlan(ctx, rec))

			rec.JobID = "job_2"
			require.NoError(t, store.SavePlan(ctx, rec))

			got, err := store.GetPlan(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, "job_2", got.JobID)

			plans, err := store.ListPlans(ctx, "u1")
			require.NoError(t, err)
			assert.Len(t, plans, 1)
		})
	}
}

func TestPlanStoreListFiltersByUser(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SavePlan(ctx, sampleRecord("n1", "u1")))
			require.NoError(t, store.SavePlan(ctx, sampleRecord("n2", "u1")))
			require.NoError(t, store.SavePlan(ctx, sampleRecord("n3", "u2")))

			plans, err := store.ListPlans(ctx, "u1")
			require.NoError(t, err)
			assert.Len(t, plans, 2)

			plans, err = store.ListPlans(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, plans)
		})
	}
}

func TestPlanStoreSetStatus(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SavePlan(ctx, sampleRecord("n1", "u1")))

			require.NoError(t, store.SetStatus(ctx, "n1", schedule.PlanCanceled))
			got, err := store.GetPlan(ctx, "n1")
			require.NoError(t, err)
			assert.Equal(t, schedule.PlanCanceled, got.Status)
		})
	}
}

func TestPlanStoreNotFound(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetPlan(ctx, "missing")
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "missing", nf.NotificationID)

			err = store.SetStatus(ctx, "missing", schedule.PlanFailed)
			assert.ErrorAs(t, err, &nf)
		})
	}
}
