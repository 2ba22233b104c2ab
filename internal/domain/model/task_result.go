package model

import "time"

// TaskResult represents the persisted outcome of one finished unsubscribe task.
// Rows are append-only: one insert per finished task, never updated, so the
// audit trail survives even after the queue row itself has been reaped.
type TaskResult struct {
	JobID       string    `json:"job_id"       db:"job_id"`
	EmailID     string    `json:"email_id"     db:"email_id"`
	Success     bool      `json:"success"      db:"success"`
	Message     string    `json:"message"      db:"message"`
	Details     string    `json:"details"      db:"details"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// EmailOutcome is the per-email result shape returned by the synchronous batch endpoint.
type EmailOutcome struct {
	EmailID string `json:"emailId"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SyncBatchResponse is the response of the synchronous batch endpoint.
type SyncBatchResponse struct {
	Results   []EmailOutcome `json:"results"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}
