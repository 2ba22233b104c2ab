// Package model defines the core data types and structures used throughout the unsubscribe job system.
package model

import (
	"errors"
	"strings"
	"time"
)

// TaskStatus represents the current status of an unsubscribe task.
type TaskStatus string

const (
	// TaskStatusPending indicates a task is waiting to be processed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates a task is currently being processed by a worker.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates a task has finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates a task has terminally failed after exhausting retries.
	TaskStatusFailed TaskStatus = "failed"
)

// ErrNoTasksAvailable is returned when no tasks are available for reservation.
var ErrNoTasksAvailable = errors.New("no tasks available")

// ErrTaskNotFound is returned when a task is not found.
var ErrTaskNotFound = errors.New("task not found")

// Valid returns true if the TaskStatus is valid.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusRunning || s == TaskStatusCompleted ||
		s == TaskStatusFailed
}

// Task represents one queued unsubscribe attempt for a single email.
// Tasks are durable queue rows: created when a batch is submitted, reserved by
// workers under a lease, and removed by the reaper once terminal.
type Task struct {
	ID              string     `json:"id"                         db:"id"`
	BatchJobID      string     `json:"batch_job_id"               db:"batch_job_id"`
	Owner           string     `json:"owner"                      db:"owner"`
	EmailID         string     `json:"email_id"                   db:"email_id"`
	UnsubscribeLink string     `json:"unsubscribe_link"           db:"unsubscribe_link"`
	Subject         string     `json:"subject"                    db:"subject"`
	Sender          string     `json:"sender"                     db:"sender"`
	Status          TaskStatus `json:"status"                     db:"status"`
	RetryCount      int        `json:"retry_count"                db:"retry_count"`
	MaxRetries      int        `json:"max_retries"                db:"max_retries"`
	LastError       *string    `json:"last_error,omitempty"       db:"last_error"`
	ScheduledAt     time.Time  `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt  *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt       time.Time  `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"                 db:"updated_at"`
}

// AttemptNumber returns the 1-based number of the current attempt.
func (t *Task) AttemptNumber() int {
	return t.RetryCount + 1
}

// CreateTaskRequest represents a request to enqueue a new unsubscribe task.
type CreateTaskRequest struct {
	BatchJobID      string     `json:"batch_job_id"`
	Owner           string     `json:"owner"`
	EmailID         string     `json:"email_id"`
	UnsubscribeLink string     `json:"unsubscribe_link"`
	Subject         string     `json:"subject,omitempty"`
	Sender          string     `json:"sender,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	MaxRetries      int        `json:"max_retries"`
}

// Validate validates the CreateTaskRequest fields.
func (r *CreateTaskRequest) Validate() error {
	if strings.TrimSpace(r.BatchJobID) == "" {
		return errors.New("batch job id is required")
	}
	if strings.TrimSpace(r.Owner) == "" {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(r.EmailID) == "" {
		return errors.New("email id is required")
	}
	if strings.TrimSpace(r.UnsubscribeLink) == "" {
		return errors.New("unsubscribe link is required")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// TaskStats represents statistics about tasks in different states.
type TaskStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
