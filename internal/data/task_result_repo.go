package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// TaskResultRepo provides database operations for the append-only per-email
// outcome trail.
type TaskResultRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewTaskResultRepo creates a new TaskResultRepo instance.
func NewTaskResultRepo(db *sql.DB, tp TimeProvider) *TaskResultRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &TaskResultRepo{DB: db, timeProvider: tp}
}

// Insert appends one finished task's outcome. Rows are never updated; each
// attempt that reaches a terminal outcome leaves its own trace.
func (r *TaskResultRepo) Insert(ctx context.Context, params core.InsertTaskResultParams) error {
	if params.JobID == "" {
		return ErrJobIDRequired
	}
	if params.EmailID == "" {
		return errors.New("email_id is required")
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO task_results(job_id, email_id, success, message, details, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.JobID, params.EmailID, params.Success, params.Message, params.Details,
		r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert task result: %w", err)
	}
	return nil
}

// ListByJob returns the recorded outcomes of a batch job in processing order.
func (r *TaskResultRepo) ListByJob(ctx context.Context, jobID string) ([]*model.TaskResult, error) {
	if jobID == "" {
		return nil, ErrJobIDRequired
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT job_id, email_id, success, message, details, processed_at
		FROM task_results
		WHERE job_id = $1
		ORDER BY processed_at ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var results []*model.TaskResult
	for rows.Next() {
		res := &model.TaskResult{}
		if scanErr := rows.Scan(
			&res.JobID,
			&res.EmailID,
			&res.Success,
			&res.Message,
			&res.Details,
			&res.ProcessedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan task result: %w", scanErr)
		}
		results = append(results, res)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return results, nil
}
