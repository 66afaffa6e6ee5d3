package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/careloop-ai/assistant-core/schedule"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notification_plans (
	notification_id TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	plan_json       TEXT NOT NULL,
	job_id          TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_plans_user ON notification_plans (user_id, created_at DESC);
`

// SQLiteStore implements schedule.PlanStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the plan database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open plan store: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate plan store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SavePlan inserts or replaces the record for its notification ID.
func (s *SQLiteStore) SavePlan(ctx context.Context, rec *schedule.PlanRecord) error {
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_plans
			(notification_id, user_id, plan_json, job_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(notification_id) DO UPDATE SET
			plan_json = excluded.plan_json,
			job_id = excluded.job_id,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		rec.NotificationID, rec.UserID, string(planJSON), rec.JobID, string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// ListPlans returns the user's records, newest first.
func (s *SQLiteStore) ListPlans(ctx context.Context, userID string) ([]*schedule.PlanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id, user_id, plan_json, job_id, status, created_at, updated_at
		FROM notification_plans WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*schedule.PlanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetPlan returns the record for the notification ID.
func (s *SQLiteStore) GetPlan(ctx context.Context, notificationID string) (*schedule.PlanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT notification_id, user_id, plan_json, job_id, status, created_at, updated_at
		FROM notification_plans WHERE notification_id = ?`, notificationID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{NotificationID: notificationID}
	}
	return rec, err
}

// SetStatus updates the record's lifecycle status.
func (s *SQLiteStore) SetStatus(ctx context.Context, notificationID string, status schedule.PlanStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_plans SET status = ?, updated_at = ? WHERE notification_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), notificationID)
	if err != nil {
		return fmt.Errorf("set plan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{NotificationID: notificationID}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*schedule.PlanRecord, error) {
	var (
		rec              schedule.PlanRecord
		planJSON         string
		status           string
		created, updated string
	)
	if err := row.Scan(&rec.NotificationID, &rec.UserID, &planJSON, &rec.JobID, &status, &created, &updated); err != nil {
		return nil, err
	}
	var plan schedule.NotificationPlan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	rec.Plan = &plan
	rec.Status = schedule.PlanStatus(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &rec, nil
}

var _ schedule.PlanStore = (*SQLiteStore)(nil)
