package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data/pgxutil"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
	apperrors "github.com/clodoaldofavaro/email-sort-app-backend/internal/errors"
)

// AttemptRunner drives one unsubscribe attempt against a link. The worker
// pool and the synchronous batch path share this contract.
type AttemptRunner interface {
	Run(ctx context.Context, link string) (unsubscribe.Result, error)
}

// BatchJobStore combines batch job reads with transactional creation.
type BatchJobStore interface {
	core.BatchJobRepository
	core.BatchJobRepositoryTx
}

// TaskStore combines task queue operations with transactional creation.
type TaskStore interface {
	core.TaskRepository
	core.TaskRepositoryTx
}

// UnsubscribeOrchestratorOptions groups dependencies for UnsubscribeOrchestrator.
type UnsubscribeOrchestratorOptions struct {
	DB          *sql.DB                   // Required: transaction boundary for batch submission
	Emails      core.EmailRepository      // Required: eligibility and claims
	BatchJobs   BatchJobStore             // Required: batch job rows
	Tasks       TaskStore                 // Required: durable task queue
	TaskResults core.TaskResultRepository // Required: per-email outcome trail
	Runner      AttemptRunner             // Optional: required only for the synchronous path
	StatusCache *core.StatusCacheService  // Optional: status snapshot caching
	Logger      *slog.Logger              // Optional: structured logger

	// SyncLimit caps how many emails the synchronous path accepts per request.
	SyncLimit int
	// SyncConcurrency caps parallel attempts on the synchronous path.
	SyncConcurrency int
	// MaxRetries is the retry budget stamped on each enqueued task.
	MaxRetries int
}

// UnsubscribeOrchestrator coordinates batch unsubscribe submissions.
//
// The asynchronous path creates one batch job row and its tasks atomically and
// returns immediately; workers drain the queue later. The synchronous path
// runs a small number of attempts inline and reports per-email outcomes in
// the response.
type UnsubscribeOrchestrator struct {
	db          *sql.DB
	emails      core.EmailRepository
	batchJobs   BatchJobStore
	tasks       TaskStore
	taskResults core.TaskResultRepository
	runner      AttemptRunner
	statusCache *core.StatusCacheService
	logger      *slog.Logger

	syncLimit       int
	syncConcurrency int
	maxRetries      int
}

// NewUnsubscribeOrchestrator constructs a new UnsubscribeOrchestrator.
func NewUnsubscribeOrchestrator(opts UnsubscribeOrchestratorOptions) (*UnsubscribeOrchestrator, error) {
	if opts.DB == nil {
		return nil, errors.New("DB is required")
	}
	if opts.Emails == nil {
		return nil, errors.New("EmailRepository is required")
	}
	if opts.BatchJobs == nil {
		return nil, errors.New("BatchJobStore is required")
	}
	if opts.Tasks == nil {
		return nil, errors.New("TaskStore is required")
	}
	if opts.TaskResults == nil {
		return nil, errors.New("TaskResultRepository is required")
	}

	syncLimit := opts.SyncLimit
	if syncLimit <= 0 {
		syncLimit = 10
	}
	syncConcurrency := opts.SyncConcurrency
	if syncConcurrency <= 0 || syncConcurrency > syncLimit {
		syncConcurrency = syncLimit
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "unsubscribe_orchestrator")
	}

	return &UnsubscribeOrchestrator{
		db:              opts.DB,
		emails:          opts.Emails,
		batchJobs:       opts.BatchJobs,
		tasks:           opts.Tasks,
		taskResults:     opts.TaskResults,
		runner:          opts.Runner,
		statusCache:     opts.StatusCache,
		logger:          logger,
		syncLimit:       syncLimit,
		syncConcurrency: syncConcurrency,
		maxRetries:      maxRetries,
	}, nil
}

// Submit accepts an asynchronous batch unsubscribe request. It filters the
// requested emails down to those the owner may act on, then creates the batch
// job row and one task per eligible email in a single transaction. Either the
// whole batch is enqueued or nothing is.
func (o *UnsubscribeOrchestrator) Submit(
	ctx context.Context,
	owner string,
	emailIDs []string,
) (*model.BatchSubmissionResponse, error) {
	eligible, err := o.eligibleEmails(ctx, owner, emailIDs)
	if err != nil {
		return nil, err
	}

	var job *model.BatchJob
	err = pgxutil.WithSQLTx(ctx, o.db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		created, txErr := o.batchJobs.CreateInTx(ctx, tx, &model.CreateBatchJobRequest{
			Owner:       owner,
			TotalEmails: len(eligible),
		})
		if txErr != nil {
			return fmt.Errorf("create batch job: %w", txErr)
		}

		for _, email := range eligible {
			req := &model.CreateTaskRequest{
				BatchJobID:      created.ID,
				Owner:           owner,
				EmailID:         email.ID,
				UnsubscribeLink: *email.UnsubscribeLink,
				Subject:         email.Subject,
				Sender:          email.Sender,
				MaxRetries:      o.maxRetries,
			}
			if _, txErr = o.tasks.CreateInTx(ctx, tx, req); txErr != nil {
				return fmt.Errorf("enqueue task for email %s: %w", email.ID, txErr)
			}
		}

		job = created
		return nil
	}})
	if err != nil {
		return nil, err
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "batch unsubscribe submitted",
			"batch_job_id", job.ID,
			"owner", owner,
			"requested", len(emailIDs),
			"enqueued", len(eligible))
	}

	return &model.BatchSubmissionResponse{
		BatchJobID:  job.ID,
		TotalEmails: job.TotalEmails,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
	}, nil
}

// SubmitSync runs a small batch of unsubscribe attempts inline and returns
// per-email outcomes. Outcomes are recorded on the email rows but no batch
// job row is created; the caller already has the results in hand.
func (o *UnsubscribeOrchestrator) SubmitSync(
	ctx context.Context,
	owner string,
	emailIDs []string,
) (*model.SyncBatchResponse, error) {
	if o.runner == nil {
		return nil, errors.New("synchronous path requires an attempt runner")
	}
	if len(emailIDs) > o.syncLimit {
		return nil, apperrors.Validationf(
			"synchronous batches accept at most %d emails, got %d", o.syncLimit, len(emailIDs))
	}

	eligible, err := o.eligibleEmails(ctx, owner, emailIDs)
	if err != nil {
		return nil, err
	}

	outcomes := make([]model.EmailOutcome, len(eligible))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.syncConcurrency)
	for i, email := range eligible {
		g.Go(func() error {
			outcome := o.attemptInline(gctx, email)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &model.SyncBatchResponse{
		Results: outcomes,
		Total:   len(outcomes),
	}
	for _, r := range outcomes {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "synchronous batch finished",
			"owner", owner,
			"total", resp.Total,
			"succeeded", resp.Succeeded,
			"failed", resp.Failed)
	}

	return resp, nil
}

// attemptInline claims an email, runs one attempt, and records the outcome.
func (o *UnsubscribeOrchestrator) attemptInline(ctx context.Context, email *model.Email) model.EmailOutcome {
	claimed, err := o.emails.ClaimForUnsubscribe(ctx, email.ID)
	if err != nil {
		return model.EmailOutcome{EmailID: email.ID, Success: false,
			Message: "Failed to start unsubscribe attempt"}
	}
	if !claimed {
		return model.EmailOutcome{EmailID: email.ID, Success: false,
			Message: "An unsubscribe attempt is already in progress"}
	}

	result, err := o.runner.Run(ctx, *email.UnsubscribeLink)
	if err != nil {
		result = unsubscribe.Result{
			Success: false,
			Message: "Unsubscribe attempt could not run",
			Details: err.Error(),
		}
	}

	if serr := o.emails.SetOutcome(ctx, core.SetEmailOutcomeParams{
		EmailID: email.ID,
		Success: result.Success,
		Message: result.Message,
		Details: result.Details,
	}); serr != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "failed to record outcome on email row",
			"email_id", email.ID,
			"error", serr)
	}

	return model.EmailOutcome{EmailID: email.ID, Success: result.Success, Message: result.Message}
}

// eligibleEmails validates the request shape and resolves the eligible subset.
func (o *UnsubscribeOrchestrator) eligibleEmails(
	ctx context.Context,
	owner string,
	emailIDs []string,
) ([]*model.Email, error) {
	if owner == "" {
		return nil, apperrors.Validation("owner is required")
	}
	if len(emailIDs) == 0 {
		return nil, apperrors.ValidationField("emailIds", "at least one email id is required")
	}

	unique := dedupe(emailIDs)
	eligible, err := o.emails.FindEligible(ctx, owner, unique)
	if err != nil {
		return nil, fmt.Errorf("find eligible emails: %w", err)
	}
	if len(eligible) == 0 {
		return nil, apperrors.NotFound(
			"none of the requested emails are eligible for unsubscribe")
	}
	return eligible, nil
}

// GetStatus returns the current status snapshot for a batch job the owner
// submitted. Snapshots are served from a short-TTL cache when present.
func (o *UnsubscribeOrchestrator) GetStatus(
	ctx context.Context,
	owner, jobID string,
) (*model.BatchJobStatusResponse, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, apperrors.Validation("owner is required")
	}

	if cached, err := o.statusCache.GetStatus(ctx, jobID); err == nil && cached != nil {
		return cached, nil
	}

	job, err := o.batchJobs.GetForOwner(ctx, core.GetBatchJobParams{ID: jobID, Owner: owner})
	if err != nil {
		if errors.Is(err, model.ErrBatchJobNotFound) {
			return nil, apperrors.NotFound("batch job not found")
		}
		return nil, fmt.Errorf("get batch job %s: %w", jobID, err)
	}

	snapshot := job.StatusResponse()
	if err := o.statusCache.PutStatus(ctx, snapshot); err != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "failed to cache status snapshot",
			"batch_job_id", jobID,
			"error", err)
	}

	return snapshot, nil
}

// GetResults returns the per-email outcome trail of a batch job the owner
// submitted, oldest first.
func (o *UnsubscribeOrchestrator) GetResults(
	ctx context.Context,
	owner, jobID string,
) ([]*model.TaskResult, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, apperrors.Validation("owner is required")
	}

	// Ownership check before exposing results.
	if _, err := o.batchJobs.GetForOwner(ctx, core.GetBatchJobParams{ID: jobID, Owner: owner}); err != nil {
		if errors.Is(err, model.ErrBatchJobNotFound) {
			return nil, apperrors.NotFound("batch job not found")
		}
		return nil, fmt.Errorf("get batch job %s: %w", jobID, err)
	}

	results, err := o.taskResults.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results for batch job %s: %w", jobID, err)
	}
	return results, nil
}

// ListJobs returns the owner's batch jobs, newest first.
func (o *UnsubscribeOrchestrator) ListJobs(
	ctx context.Context,
	owner string,
	limit, offset int,
) ([]*model.BatchJob, error) {
	if owner == "" {
		return nil, apperrors.Validation("owner is required")
	}
	jobs, err := o.batchJobs.ListByOwner(ctx, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs for owner: %w", err)
	}
	return jobs, nil
}

func validateJobID(jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return apperrors.ValidationField("jobId", "must be a valid UUID")
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
