package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
)

// ProgressAggregatorOptions groups dependencies for ProgressAggregator.
type ProgressAggregatorOptions struct {
	BatchJobs   core.BatchJobRepository   // Required: batch job counters
	TaskResults core.TaskResultRepository // Required: append-only outcome trail
	Emails      core.EmailRepository      // Required: per-email outcome writes
	StatusCache *core.StatusCacheService  // Optional: status snapshot invalidation
	Logger      *slog.Logger              // Optional: structured logger
}

// ProgressAggregator folds finished task outcomes into batch job counters.
//
// Every terminal task outcome flows through RecordOutcome exactly once. The
// counter updates are single conditional statements in the repository, so
// concurrent workers finishing tasks of the same batch never lose increments.
type ProgressAggregator struct {
	batchJobs   core.BatchJobRepository
	taskResults core.TaskResultRepository
	emails      core.EmailRepository
	statusCache *core.StatusCacheService
	logger      *slog.Logger
}

// NewProgressAggregator constructs a new ProgressAggregator.
func NewProgressAggregator(opts ProgressAggregatorOptions) (*ProgressAggregator, error) {
	if opts.BatchJobs == nil {
		return nil, errors.New("BatchJobRepository is required")
	}
	if opts.TaskResults == nil {
		return nil, errors.New("TaskResultRepository is required")
	}
	if opts.Emails == nil {
		return nil, errors.New("EmailRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "progress_aggregator")
	}

	return &ProgressAggregator{
		batchJobs:   opts.BatchJobs,
		taskResults: opts.TaskResults,
		emails:      opts.Emails,
		statusCache: opts.StatusCache,
		logger:      logger,
	}, nil
}

// TaskOutcome is the terminal result of one unsubscribe task.
type TaskOutcome struct {
	BatchJobID string
	EmailID    string
	Success    bool
	Message    string
	Details    string
}

// RecordOutcome persists a finished task's outcome and advances the batch.
//
// The steps are ordered so that a crash between them leaves the batch
// recoverable rather than corrupted: the audit row and email annotation land
// first, then the counters move, then completion is probed. A failure in a
// later step is returned but earlier effects are kept; RecordOutcome must not
// be retried for the same task once the counter increment has been applied.
func (a *ProgressAggregator) RecordOutcome(ctx context.Context, outcome TaskOutcome) error {
	if outcome.BatchJobID == "" {
		return errors.New("batch job id is required")
	}
	if outcome.EmailID == "" {
		return errors.New("email id is required")
	}

	if err := a.taskResults.Insert(ctx, core.InsertTaskResultParams{
		JobID:   outcome.BatchJobID,
		EmailID: outcome.EmailID,
		Success: outcome.Success,
		Message: outcome.Message,
		Details: outcome.Details,
	}); err != nil {
		return fmt.Errorf("insert task result: %w", err)
	}

	if err := a.emails.SetOutcome(ctx, core.SetEmailOutcomeParams{
		EmailID: outcome.EmailID,
		Success: outcome.Success,
		Message: outcome.Message,
		Details: outcome.Details,
	}); err != nil {
		// The batch still needs its counters moved, so log and continue.
		if a.logger != nil {
			a.logger.WarnContext(ctx, "failed to record outcome on email row",
				"email_id", outcome.EmailID,
				"error", err)
		}
	}

	job, err := a.batchJobs.RecordProgress(ctx, core.RecordProgressParams{
		ID:      outcome.BatchJobID,
		Success: outcome.Success,
	})
	if err != nil {
		return fmt.Errorf("record progress for batch job %s: %w", outcome.BatchJobID, err)
	}

	if a.logger != nil {
		a.logger.DebugContext(ctx, "batch progress recorded",
			"batch_job_id", job.ID,
			"processed", job.ProcessedCount,
			"total", job.TotalEmails,
			"success", outcome.Success)
	}

	if job.Finished() {
		completed, err := a.batchJobs.CompleteIfDone(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("complete batch job %s: %w", job.ID, err)
		}
		if completed && a.logger != nil {
			a.logger.InfoContext(ctx, "batch job completed",
				"batch_job_id", job.ID,
				"total", job.TotalEmails,
				"succeeded", job.SuccessCount,
				"failed", job.FailedCount)
		}
	}

	if err := a.statusCache.InvalidateStatus(ctx, job.ID); err != nil && a.logger != nil {
		a.logger.WarnContext(ctx, "failed to invalidate status cache",
			"batch_job_id", job.ID,
			"error", err)
	}

	return nil
}
