package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	domaintask "github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/task"
)

// TaskServiceOptions groups dependencies for TaskService.
type TaskServiceOptions struct {
	Repo            core.TaskRepository        // Required: task repository
	DefaultLease    time.Duration              // Required: default lease duration for tasks
	Logger          *slog.Logger               // Optional: structured logger
	LeasePolicy     *domaintask.LeasePolicy    // Optional: override default lease policy
	Notifier        domaintask.Notifier        // Optional: custom task availability notifier
	NotifierOptions domaintask.NotifierOptions // Optional: configure default notifier behaviour
}

// TaskService provides business logic for unsubscribe task queue operations.
//
// This service manages:
// - Task creation and reservation with lease management
// - Pub/sub notification for task availability
// - Terminal transitions (complete and fail with retry accounting)
// - Graceful shutdown of notification listeners.
type TaskService struct {
	repo        core.TaskRepository
	leasePolicy *domaintask.LeasePolicy
	notifier    domaintask.Notifier
	logger      *slog.Logger
}

// NewTaskService constructs a new TaskService.
func NewTaskService(opts TaskServiceOptions) (*TaskService, error) {
	if opts.Repo == nil {
		return nil, errors.New("TaskRepository is required")
	}

	var leasePolicy *domaintask.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domaintask.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domaintask.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create task notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "task_service")
		logger.Debug("TaskService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &TaskService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// MustNewTaskService constructs a new TaskService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewTaskService(opts TaskServiceOptions) *TaskService {
	svc, err := NewTaskService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TaskService: %v", err))
	}
	return svc
}

// Create enqueues a new unsubscribe task.
func (s *TaskService) Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
	task, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"task created",
			"id",
			task.ID,
			"batch_job_id",
			task.BatchJobID,
			"status",
			task.Status,
		)
	}

	return task, nil
}

// ReserveNext reserves the next available task for processing.
func (s *TaskService) ReserveNext(ctx context.Context, lease time.Duration) (*model.Task, error) {
	seconds, clamped := s.leasePolicy.Resolve(lease)
	if clamped && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", lease)
	}

	task, err := s.repo.ReserveNext(ctx, seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next task: %w", err)
	}

	if s.logger != nil && task != nil {
		s.logger.DebugContext(
			ctx,
			"task reserved",
			"id",
			task.ID,
			"attempt",
			task.AttemptNumber(),
			"lease_seconds",
			seconds,
		)
	}

	return task, nil
}

// Subscribe creates a subscription for task availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *TaskService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// WaitForNotification waits for a notification indicating new tasks are available.
func (s *TaskService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx)
}

// Heartbeat extends the lease on a task to indicate it's still being processed.
func (s *TaskService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	seconds, clamped := s.leasePolicy.Resolve(extend)
	if clamped && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", extend,
			"task_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat task %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "task heartbeat updated", "id", id, "extend_seconds", seconds)
	}

	return updated, nil
}

// Complete marks a task as completed successfully.
func (s *TaskService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete task %s: %w", id, err)
	}

	if s.logger != nil && completed {
		s.logger.DebugContext(ctx, "task completed", "id", id)
	}

	return completed, nil
}

// Fail records a failed attempt on a task. Tasks with retry budget left go
// back to pending with a backoff; exhausted tasks become terminally failed.
func (s *TaskService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail task %s: %w", id, err)
	}

	if s.logger != nil && failed {
		s.logger.DebugContext(ctx, "task attempt failed", "id", id, "error", errMsg)
	}

	return failed, nil
}

// Stats returns statistics about tasks in different states.
func (s *TaskService) Stats(ctx context.Context) (*model.TaskStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get task stats: %w", err)
	}
	return stats, nil
}

// GetByID returns a task by its ID.
func (s *TaskService) GetByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task by id %s: %w", id, err)
	}
	return task, nil
}

// ListByBatchJob returns all tasks belonging to a batch job, oldest first.
func (s *TaskService) ListByBatchJob(ctx context.Context, batchJobID string) ([]*model.Task, error) {
	if batchJobID == "" {
		return nil, errors.New("batch job id is required")
	}
	tasks, err := s.repo.ListByBatchJob(ctx, batchJobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for batch job %s: %w", batchJobID, err)
	}
	return tasks, nil
}

// StopAllListeners stops all active task notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *TaskService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all task listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
