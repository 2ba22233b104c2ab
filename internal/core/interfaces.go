package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// TaskRepository defines the interface for durable unsubscribe task queue operations.
type TaskRepository interface {
	Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error)
	GetByID(ctx context.Context, id string) (*model.Task, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Task, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, taskID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context) (*model.TaskStats, error)
	ListByBatchJob(ctx context.Context, batchJobID string) ([]*model.Task, error)
}

// TaskRepositoryTx defines optional transactional task creation support.
// The orchestrator uses it to enqueue a batch's tasks in the same transaction
// that creates the batch job row, so a crash leaves either both or neither.
type TaskRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateTaskRequest) (*model.Task, error)
}

// BatchJobRepository defines the interface for batch job data operations.
type BatchJobRepository interface {
	Create(ctx context.Context, req *model.CreateBatchJobRequest) (*model.BatchJob, error)
	GetByID(ctx context.Context, id string) (*model.BatchJob, error)
	// GetForOwner retrieves a batch job only when it belongs to the given
	// owner. A job that exists but belongs to someone else is reported the
	// same way as a missing one.
	GetForOwner(ctx context.Context, params GetBatchJobParams) (*model.BatchJob, error)
	// RecordProgress applies one finished task to the batch counters in a
	// single atomic statement and returns the post-update row.
	RecordProgress(ctx context.Context, params RecordProgressParams) (*model.BatchJob, error)
	// CompleteIfDone transitions the job to completed and stamps
	// completed_at, guarded so the transition happens at most once.
	CompleteIfDone(ctx context.Context, id string) (bool, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*model.BatchJob, error)
}

// BatchJobRepositoryTx defines optional transactional batch job creation support.
type BatchJobRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateBatchJobRequest) (*model.BatchJob, error)
}

// GetBatchJobParams groups parameters for owner-scoped batch job lookups.
type GetBatchJobParams struct {
	ID    string
	Owner string
}

// RecordProgressParams groups parameters for BatchJobRepository.RecordProgress.
type RecordProgressParams struct {
	ID      string
	Success bool
}

// InsertTaskResultParams groups parameters for TaskResultRepository.Insert.
type InsertTaskResultParams struct {
	JobID   string
	EmailID string
	Success bool
	Message string
	Details string
}

// TaskResultRepository defines the interface for the append-only per-email
// outcome trail of batch jobs.
type TaskResultRepository interface {
	Insert(ctx context.Context, params InsertTaskResultParams) error
	ListByJob(ctx context.Context, jobID string) ([]*model.TaskResult, error)
}

// EmailRepository defines the interface for the slice of the ingestion-owned
// email rows this system reads and annotates.
type EmailRepository interface {
	GetByID(ctx context.Context, id string) (*model.Email, error)
	// FindEligible returns the subset of the given email IDs that belong to
	// the owner and carry an unsubscribe link, preserving no particular order.
	FindEligible(ctx context.Context, owner string, emailIDs []string) ([]*model.Email, error)
	// ClaimForUnsubscribe conditionally marks an email in_progress and stamps
	// unsubscribe_attempted_at. Returns false when another attempt already
	// holds the claim.
	ClaimForUnsubscribe(ctx context.Context, emailID string) (bool, error)
	// ReleaseClaim puts an in_progress email back to pending so a later
	// attempt can claim it again. Returns false when no claim was held.
	ReleaseClaim(ctx context.Context, emailID string) (bool, error)
	// SetOutcome records the terminal unsubscribe outcome on the email row.
	SetOutcome(ctx context.Context, params SetEmailOutcomeParams) error
}

// SetEmailOutcomeParams groups parameters for EmailRepository.SetOutcome.
type SetEmailOutcomeParams struct {
	EmailID string
	Success bool
	Message string
	Details string
}

// DeleteOldTasksParams groups parameters for DeleteOldTasks to keep param count ≤3.
type DeleteOldTasksParams struct {
	Status    model.TaskStatus
	MaxAge    time.Duration
	BatchSize int
}

// DeleteOldTaskResultsParams groups parameters for DeleteOldTaskResults.
type DeleteOldTaskResultsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for task cleanup operations.
type ReaperRepository interface {
	// FailStalePendingTasks marks pending tasks older than maxAge as failed.
	// Processes up to batchSize tasks per call to prevent long locks.
	// Returns the number of tasks marked as failed.
	FailStalePendingTasks(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldTasks deletes tasks with the given status older than maxAge.
	// Processes up to batchSize tasks per call to prevent long locks.
	// Returns the number of tasks deleted.
	DeleteOldTasks(ctx context.Context, params DeleteOldTasksParams) (int64, error)

	// DeleteOldTaskResults deletes task_results rows older than maxAge.
	// Processes up to batchSize rows per call.
	DeleteOldTaskResults(ctx context.Context, params DeleteOldTaskResultsParams) (int64, error)
}
