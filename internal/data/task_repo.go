package data

import (
	"database/sql"
	"log/slog"
)

// RepoConfig holds configuration options for the task repository.
type RepoConfig struct {
	// RetryBaseSeconds is the base of the exponential retry backoff:
	// attempt n is rescheduled base * 2^(n-1) seconds out.
	RetryBaseSeconds int
	Logger           *slog.Logger
	TimeProvider     TimeProvider
}

// TaskRepo provides database operations for the durable unsubscribe task queue.
type TaskRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewTaskRepo creates a new TaskRepo instance with the given database connection and configuration.
func NewTaskRepo(db *sql.DB, cfg RepoConfig) *TaskRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &TaskRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const taskColumns = `
  id,
  batch_job_id,
  owner,
  email_id,
  unsubscribe_link,
  subject,
  sender,
  status,
  retry_count,
  max_retries,
  last_error,
  scheduled_at,
  started_at,
  completed_at,
  lease_expires_at,
  created_at,
  updated_at
`
