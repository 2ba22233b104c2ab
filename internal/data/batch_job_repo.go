package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data/pgxutil"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// BatchJobRepo provides database operations for batch job progress tracking.
type BatchJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// BatchJobRepoConfig holds configuration options for the batch job repository.
type BatchJobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewBatchJobRepo creates a new BatchJobRepo instance.
func NewBatchJobRepo(db *sql.DB, cfg BatchJobRepoConfig) *BatchJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &BatchJobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const batchJobColumns = `
  id,
  owner,
  total_emails,
  processed_count,
  success_count,
  failed_count,
  status,
  error_message,
  created_at,
  updated_at,
  completed_at
`

type batchJobRowScanner interface {
	Scan(dest ...any) error
}

func scanBatchJobFromRow(scanner batchJobRowScanner) (*model.BatchJob, error) {
	job := &model.BatchJob{}
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	if err := scanner.Scan(
		&job.ID,
		&job.Owner,
		&job.TotalEmails,
		&job.ProcessedCount,
		&job.SuccessCount,
		&job.FailedCount,
		&job.Status,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	job.ErrorMessage = cloneNullableString(errorMessage)
	job.CompletedAt = cloneNullableTime(completedAt)
	return job, nil
}

// Create creates a new batch job row in pending status.
func (r *BatchJobRepo) Create(
	ctx context.Context,
	req *model.CreateBatchJobRequest,
) (*model.BatchJob, error) {
	var job *model.BatchJob
	if txErr := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var insertErr error
			job, insertErr = r.CreateInTx(ctx, tx, req)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}
	return job, nil
}

// CreateInTx inserts a batch job row within an existing SQL transaction.
func (r *BatchJobRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	req *model.CreateBatchJobRequest,
) (*model.BatchJob, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create batch job request is required")
	}
	if req.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if req.TotalEmails <= 0 {
		return nil, errors.New("total emails must be positive")
	}

	row := sqlTx.QueryRowContext(ctx, `
		INSERT INTO batch_jobs(owner, total_emails, status)
		VALUES ($1, $2, 'pending')
		RETURNING `+batchJobColumns, req.Owner, req.TotalEmails)

	job, err := scanBatchJobFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert batch job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a batch job by its ID.
func (r *BatchJobRepo) GetByID(ctx context.Context, id string) (*model.BatchJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+batchJobColumns+`
		FROM batch_jobs
		WHERE id = $1
	`, id)

	job, err := scanBatchJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBatchJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch job: %w", err)
	}
	return job, nil
}

// GetForOwner retrieves a batch job only when it belongs to the given owner.
// Jobs belonging to someone else are indistinguishable from missing ones.
func (r *BatchJobRepo) GetForOwner(
	ctx context.Context,
	params core.GetBatchJobParams,
) (*model.BatchJob, error) {
	if params.ID == "" || params.Owner == "" {
		return nil, model.ErrBatchJobNotFound
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT `+batchJobColumns+`
		FROM batch_jobs
		WHERE id = $1 AND owner = $2
	`, params.ID, params.Owner)

	job, err := scanBatchJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBatchJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch job for owner: %w", err)
	}
	return job, nil
}

// RecordProgress applies one finished task to the batch counters in a single
// atomic UPDATE, so concurrent workers never lose increments. The status
// guard keeps counters frozen once the batch has completed, which makes
// late duplicate deliveries of the same outcome harmless.
func (r *BatchJobRepo) RecordProgress(
	ctx context.Context,
	params core.RecordProgressParams,
) (*model.BatchJob, error) {
	if params.ID == "" {
		return nil, errors.New("batch job id is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	row := r.DB.QueryRowContext(ctx, `
		UPDATE batch_jobs
		SET processed_count = processed_count + 1,
		    success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		    failed_count = failed_count + CASE WHEN $2 THEN 0 ELSE 1 END,
		    status = 'processing',
		    updated_at = $3
		WHERE id = $1 AND status != 'completed'
		RETURNING `+batchJobColumns, params.ID, params.Success, currentTime)

	job, err := scanBatchJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBatchJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record batch progress: %w", err)
	}
	return job, nil
}

// CompleteIfDone transitions the batch to completed and stamps completed_at.
// The guard restricts the transition to batches whose every task has been
// counted, and makes it fire at most once even when the last few workers
// race to finish.
func (r *BatchJobRepo) CompleteIfDone(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("batch job id is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2
		WHERE id = $1
		  AND status != 'completed'
		  AND processed_count >= total_emails
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete batch job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	if rowsAffected > 0 && r.logger != nil {
		r.logger.InfoContext(ctx, "batch job completed", "batch_job_id", id)
	}
	return rowsAffected > 0, nil
}

// ListByOwner returns the owner's batch jobs, newest first.
func (r *BatchJobRepo) ListByOwner(
	ctx context.Context,
	owner string,
	limit, offset int,
) ([]*model.BatchJob, error) {
	if owner == "" {
		return nil, errors.New("owner is required")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+batchJobColumns+`
		FROM batch_jobs
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.BatchJob
	for rows.Next() {
		job, scanErr := scanBatchJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan batch job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return jobs, nil
}
