// Package devseed populates a local development database with example
// emails and batch job history so the HTTP surface and the runner have
// something to chew on. Seeding is idempotent; every row carries a fixed
// ID and re-runs leave existing rows untouched.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// DevOwner is the identity seeded rows belong to. It matches the default
// mock-auth user so a locally started HTTP server sees the data immediately.
const DevOwner = "dev-user"

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB *sql.DB
}

// NewServices constructs the seeding dependencies using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{DB: db}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	failures += seedEmails(ctx, svcs.DB, logger)
	failures += seedBatchHistory(ctx, svcs.DB, logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

type seedEmail struct {
	ID          string
	Subject     string
	Sender      string
	Link        string
	Status      model.UnsubscribeStatus
	ResultMsg   string
	CompletedAt *time.Time
}

func defaultEmails() []seedEmail {
	done := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	return []seedEmail{
		{
			ID:      "7d3f1a2e-0001-4c6b-9a1d-000000000001",
			Subject: "Your weekly deals are here!",
			Sender:  "deals@shopmail.example.com",
			Link:    "https://shopmail.example.com/unsubscribe?u=dev-user&t=abc123",
			Status:  model.UnsubscribeStatusPending,
		},
		{
			ID:      "7d3f1a2e-0001-4c6b-9a1d-000000000002",
			Subject: "Newsletter: September product roundup",
			Sender:  "newsletter@widgetco.example.com",
			Link:    "https://widgetco.example.com/email/preferences/opt-out",
			Status:  model.UnsubscribeStatusPending,
		},
		{
			ID:      "7d3f1a2e-0001-4c6b-9a1d-000000000003",
			Subject: "Flash sale ends tonight",
			Sender:  "promo@flashdeals.example.com",
			Link:    "https://flashdeals.example.com/u/remove?id=9f82",
			Status:  model.UnsubscribeStatusPending,
		},
		{
			ID:      "7d3f1a2e-0001-4c6b-9a1d-000000000004",
			Subject: "Travel points expiring soon",
			Sender:  "rewards@airmiles.example.com",
			Link:    "https://airmiles.example.com/preferences#unsubscribe",
			Status:  model.UnsubscribeStatusPending,
		},
		{
			// No unsubscribe link; exercises the ineligible path in batch submission.
			ID:      "7d3f1a2e-0001-4c6b-9a1d-000000000005",
			Subject: "Receipt for your order #10482",
			Sender:  "orders@shopmail.example.com",
		},
		{
			ID:          "7d3f1a2e-0001-4c6b-9a1d-000000000006",
			Subject:     "Daily digest",
			Sender:      "digest@newsfeed.example.com",
			Link:        "https://newsfeed.example.com/unsubscribe/dev-user",
			Status:      model.UnsubscribeStatusCompleted,
			ResultMsg:   "Successfully unsubscribed",
			CompletedAt: &done,
		},
		{
			ID:        "7d3f1a2e-0001-4c6b-9a1d-000000000007",
			Subject:   "Exclusive member offers",
			Sender:    "members@clubmail.example.com",
			Link:      "https://clubmail.example.com/optout?token=expired",
			Status:    model.UnsubscribeStatusFailed,
			ResultMsg: "Page reported the unsubscribe link had expired",
		},
	}
}

func seedEmails(ctx context.Context, db *sql.DB, logger *slog.Logger) int {
	failures := 0
	for _, e := range defaultEmails() {
		created, err := insertEmail(ctx, db, e)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed email", "subject", e.Subject, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "email already exists"
			if created {
				msg = "created email"
			}
			logger.InfoContext(ctx, msg, "subject", e.Subject, "sender", e.Sender)
		}
	}
	return failures
}

func insertEmail(ctx context.Context, db *sql.DB, e seedEmail) (bool, error) {
	var link, status any
	if e.Link != "" {
		link = e.Link
	}
	if e.Status != "" {
		status = string(e.Status)
	}

	var result any
	if e.ResultMsg != "" {
		payload, err := json.Marshal(model.UnsubscribeResultRecord{
			Message:   e.ResultMsg,
			Timestamp: time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC),
		})
		if err != nil {
			return false, fmt.Errorf("marshal result record: %w", err)
		}
		result = payload
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO emails (id, owner, subject, sender, unsubscribe_link, unsubscribe_status, unsubscribe_completed_at, unsubscribe_result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, DevOwner, e.Subject, e.Sender, link, status, e.CompletedAt, result,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

const (
	seedBatchJobID    = "7d3f1a2e-0002-4c6b-9a1d-000000000001"
	seedTaskDoneID    = "7d3f1a2e-0003-4c6b-9a1d-000000000001"
	seedTaskFailedID  = "7d3f1a2e-0003-4c6b-9a1d-000000000002"
	seedEmailDoneID   = "7d3f1a2e-0001-4c6b-9a1d-000000000006"
	seedEmailFailedID = "7d3f1a2e-0001-4c6b-9a1d-000000000007"
)

// seedBatchHistory creates one finished batch job with its tasks and task
// results so the status endpoint and result listings render real history.
func seedBatchHistory(ctx context.Context, db *sql.DB, logger *slog.Logger) int {
	started := time.Date(2026, 8, 20, 14, 29, 0, 0, time.UTC)
	completed := time.Date(2026, 8, 20, 14, 31, 0, 0, time.UTC)

	steps := []struct {
		label string
		fn    func(context.Context, *sql.DB, time.Time, time.Time) (bool, error)
	}{
		{"batch job", insertSeedBatchJob},
		{"tasks", insertSeedTasks},
		{"task results", insertSeedTaskResults},
	}

	failures := 0
	for _, step := range steps {
		created, err := step.fn(ctx, db, started, completed)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed batch history", "step", step.label, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := step.label + " already exist"
			if created {
				msg = "created " + step.label
			}
			logger.InfoContext(ctx, msg, "batch_job_id", seedBatchJobID)
		}
	}
	return failures
}

func insertSeedBatchJob(ctx context.Context, db *sql.DB, started, completed time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, owner, total_emails, processed_count, success_count, failed_count, status, created_at, updated_at, completed_at)
		VALUES ($1, $2, 2, 2, 1, 1, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING`,
		seedBatchJobID, DevOwner, string(model.BatchJobStatusCompleted), started, completed,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func insertSeedTasks(ctx context.Context, db *sql.DB, started, completed time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO unsubscribe_tasks (id, batch_job_id, owner, email_id, unsubscribe_link, subject, sender, status, retry_count, max_retries, last_error, scheduled_at, started_at, completed_at, created_at, updated_at)
		VALUES
			($1, $3, $4, $5, 'https://newsfeed.example.com/unsubscribe/dev-user', 'Daily digest', 'digest@newsfeed.example.com', $7, 0, 3, NULL, $9, $9, $10, $9, $10),
			($2, $3, $4, $6, 'https://clubmail.example.com/optout?token=expired', 'Exclusive member offers', 'members@clubmail.example.com', $8, 3, 3, 'Page reported the unsubscribe link had expired', $9, $9, $10, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		seedTaskDoneID, seedTaskFailedID, seedBatchJobID, DevOwner,
		seedEmailDoneID, seedEmailFailedID,
		string(model.TaskStatusCompleted), string(model.TaskStatusFailed),
		started, completed,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func insertSeedTaskResults(ctx context.Context, db *sql.DB, _, completed time.Time) (bool, error) {
	// task_results has no natural key, so guard idempotency by batch job.
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_results WHERE job_id = $1)`,
		seedBatchJobID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO task_results (job_id, email_id, success, message, details, processed_at)
		VALUES
			($1, $2, TRUE, 'Successfully unsubscribed', '', $4),
			($1, $3, FALSE, 'Page reported the unsubscribe link had expired', 'link_expired notice on confirmation page', $4)`,
		seedBatchJobID, seedEmailDoneID, seedEmailFailedID, completed,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}
