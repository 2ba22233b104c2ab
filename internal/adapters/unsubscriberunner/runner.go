// Package unsubscriberunner hosts the bounded worker pool that drains the
// durable unsubscribe task queue and drives browser attempts.
package unsubscriberunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	domaintask "github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/task"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/observability/metrics"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/observability/statsd"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/service"
)

// RunnerOptions configures the unsubscribe worker pool adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Attempts drives one browser attempt per task. Required.
	Attempts service.AttemptRunner

	// Task processing settings
	Lease             time.Duration // per-task lease duration; defaults to 120s
	Concurrency       int           // number of worker goroutines; defaults to 1
	HeartbeatInterval time.Duration // lease extension cadence; defaults to Lease/4
	RetryBaseSeconds  int           // base of the queue's retry backoff
	PollInterval      time.Duration // fallback wakeup cadence when no notifications arrive

	// Optional dependency injections (useful for tests/decoupling)
	TasksRepo       core.TaskRepository
	EmailsRepo      core.EmailRepository
	BatchJobsRepo   core.BatchJobRepository
	TaskResultsRepo core.TaskResultRepository
	StatusCache     *core.StatusCacheService
	Metrics         statsd.Sink
}

// Runner pulls unsubscribe tasks and executes browser attempts against them.
type Runner struct {
	tasks      *service.TaskService
	emails     core.EmailRepository
	aggregator *service.ProgressAggregator
	attempts   service.AttemptRunner
	logger     *slog.Logger
	lease      time.Duration
	heartbeat  time.Duration
	workers    int
	metrics    statsd.Sink
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

type runnerDeps struct {
	tasksRepo  core.TaskRepository
	emailsRepo core.EmailRepository
	taskSvc    *service.TaskService
	aggregator *service.ProgressAggregator
}

func buildRunnerDeps(opts RunnerOptions, lease time.Duration) (runnerDeps, error) {
	deps := runnerDeps{}

	if opts.TasksRepo != nil {
		deps.tasksRepo = opts.TasksRepo
	} else {
		deps.tasksRepo = data.NewTaskRepo(opts.DB, data.RepoConfig{
			RetryBaseSeconds: opts.RetryBaseSeconds,
			Logger:           opts.Logger,
		})
	}
	deps.taskSvc = service.MustNewTaskService(service.TaskServiceOptions{
		Repo:            deps.tasksRepo,
		DefaultLease:    lease,
		Logger:          opts.Logger,
		NotifierOptions: domaintask.NotifierOptions{WaitWindow: opts.PollInterval},
	})

	if opts.EmailsRepo != nil {
		deps.emailsRepo = opts.EmailsRepo
	} else {
		deps.emailsRepo = data.NewEmailRepo(opts.DB, nil)
	}

	batchJobs := opts.BatchJobsRepo
	if batchJobs == nil {
		batchJobs = data.NewBatchJobRepo(opts.DB, data.BatchJobRepoConfig{Logger: opts.Logger})
	}
	taskResults := opts.TaskResultsRepo
	if taskResults == nil {
		taskResults = data.NewTaskResultRepo(opts.DB, nil)
	}

	aggregator, err := service.NewProgressAggregator(service.ProgressAggregatorOptions{
		BatchJobs:   batchJobs,
		TaskResults: taskResults,
		Emails:      deps.emailsRepo,
		StatusCache: opts.StatusCache,
		Logger:      opts.Logger,
	})
	if err != nil {
		return deps, fmt.Errorf("build progress aggregator: %w", err)
	}
	deps.aggregator = aggregator

	return deps, nil
}

// NewRunner wires repositories/services and constructs an unsubscribe worker pool.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.TasksRepo == nil || opts.EmailsRepo == nil ||
		opts.BatchJobsRepo == nil || opts.TaskResultsRepo == nil) {
		return nil, errors.New("either DB or all repositories must be provided")
	}
	if opts.Attempts == nil {
		return nil, errors.New("attempt runner is required")
	}

	logger := resolveLogger(opts.Logger)

	lease := opts.Lease
	if lease <= 0 {
		lease = 120 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 || heartbeat >= lease {
		heartbeat = lease / 4
	}

	deps, err := buildRunnerDeps(opts, lease)
	if err != nil {
		return nil, err
	}

	return &Runner{
		tasks:      deps.taskSvc,
		emails:     deps.emailsRepo,
		aggregator: deps.aggregator,
		attempts:   opts.Attempts,
		logger:     logger,
		lease:      lease,
		heartbeat:  heartbeat,
		workers:    workers,
		metrics:    opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes tasks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting unsubscribe runner",
		"workers", r.workers, "lease", r.lease, "heartbeat", r.heartbeat)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.tasks.StopAllListeners()

	unsub, ch := r.tasks.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		task, err := r.tasks.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if task != nil {
				r.processTask(ctx, task)
			}
		case errors.Is(err, model.ErrNoTasksAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// processTask runs one attempt on a reserved task and settles its outcome.
func (r *Runner) processTask(ctx context.Context, task *model.Task) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitTaskLifecycle(r.metrics, metrics.TaskMetric{
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	claimed, err := r.emails.ClaimForUnsubscribe(ctx, task.EmailID)
	if err != nil {
		r.failAttempt(ctx, task, fmt.Errorf("claim email: %w", err))
		emit("failed", metrics.ResultError, err)
		return
	}
	if !claimed {
		// Another attempt holds the claim. The task is settled without a
		// browser attempt so the batch still accounts for this email.
		r.settle(ctx, task, unsubscribe.Result{
			Success: false,
			Message: "An unsubscribe attempt is already in progress",
		})
		emit("completed", metrics.ResultNoop, nil)
		return
	}

	result, err := r.runAttempt(ctx, task)
	if err != nil {
		r.failAttempt(ctx, task, err)
		emit("failed", metrics.ResultError, err)
		return
	}

	r.settle(ctx, task, result)
	outcome := metrics.ResultSuccess
	if !result.Success {
		outcome = metrics.ResultError
	}
	emit("completed", outcome, nil)
}

// runAttempt drives the browser attempt while a heartbeat goroutine keeps the
// task lease alive.
func (r *Runner) runAttempt(ctx context.Context, task *model.Task) (unsubscribe.Result, error) {
	attemptCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	go r.heartbeatLoop(attemptCtx, task.ID)

	return r.attempts.Run(attemptCtx, task.UnsubscribeLink)
}

func (r *Runner) heartbeatLoop(ctx context.Context, taskID string) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := r.tasks.Heartbeat(ctx, taskID, r.lease)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.WarnContext(ctx, "task heartbeat failed", "task_id", taskID, "error", err)
				}
				continue
			}
			if !extended {
				// Lost the lease; the task was requeued or settled elsewhere.
				r.logger.WarnContext(ctx, "task lease no longer held", "task_id", taskID)
				return
			}
		}
	}
}

// settle records a terminal page-level outcome: the task completes and the
// batch counters advance exactly once.
func (r *Runner) settle(ctx context.Context, task *model.Task, result unsubscribe.Result) {
	if completed, err := r.tasks.Complete(ctx, task.ID); err != nil {
		r.logger.ErrorContext(ctx, "complete task error", "task_id", task.ID, "error", err)
		return
	} else if !completed {
		// Lease expired and the task went back to pending; the retry will
		// settle it, so do not double-count this outcome.
		r.logger.WarnContext(ctx, "task no longer running at completion", "task_id", task.ID)
		return
	}

	r.recordOutcome(ctx, task, result)
}

// failAttempt records a transient failure. The queue decides whether the task
// retries; only exhausted tasks flow into the batch counters here.
func (r *Runner) failAttempt(ctx context.Context, task *model.Task, cause error) {
	failed, err := r.tasks.Fail(ctx, task.ID, cause.Error())
	if err != nil {
		r.logger.ErrorContext(ctx, "fail task error",
			"task_id", task.ID, "error", err, "original_error", cause)
		return
	}
	if !failed {
		r.logger.WarnContext(ctx, "task no longer running at failure", "task_id", task.ID)
		return
	}

	r.logger.WarnContext(ctx, "unsubscribe attempt failed",
		"task_id", task.ID,
		"attempt", task.AttemptNumber(),
		"max_retries", task.MaxRetries,
		"error", cause)

	if task.AttemptNumber() >= task.MaxRetries {
		r.recordOutcome(ctx, task, unsubscribe.Result{
			Success: false,
			Message: "Unsubscribe failed after retries",
			Details: cause.Error(),
		})
		return
	}

	// The task went back to pending. Release the email claim so the retry
	// can take it again instead of settling as already in progress.
	if _, relErr := r.emails.ReleaseClaim(ctx, task.EmailID); relErr != nil {
		r.logger.WarnContext(ctx, "release email claim failed",
			"task_id", task.ID, "email_id", task.EmailID, "error", relErr)
	}
}

func (r *Runner) recordOutcome(ctx context.Context, task *model.Task, result unsubscribe.Result) {
	err := r.aggregator.RecordOutcome(ctx, service.TaskOutcome{
		BatchJobID: task.BatchJobID,
		EmailID:    task.EmailID,
		Success:    result.Success,
		Message:    result.Message,
		Details:    result.Details,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "record task outcome",
			"task_id", task.ID,
			"batch_job_id", task.BatchJobID,
			"error", err)
	}
}
