package model

import (
	"errors"
	"math"
	"time"
)

// ErrBatchJobNotFound is returned when a batch job is not found or does not
// belong to the requesting owner.
var ErrBatchJobNotFound = errors.New("batch job not found")

// BatchJobStatus represents the aggregate status of a batch unsubscribe job.
type BatchJobStatus string

const (
	// BatchJobStatusPending indicates a batch job has been created but no task has finished yet.
	BatchJobStatusPending BatchJobStatus = "pending"
	// BatchJobStatusProcessing indicates at least one task of the batch has been picked up.
	BatchJobStatusProcessing BatchJobStatus = "processing"
	// BatchJobStatusCompleted indicates every task of the batch has finished, successfully or not.
	BatchJobStatusCompleted BatchJobStatus = "completed"
)

// Valid returns true if the BatchJobStatus is valid.
func (s BatchJobStatus) Valid() bool {
	return s == BatchJobStatusPending || s == BatchJobStatusProcessing || s == BatchJobStatusCompleted
}

// BatchJob tracks the aggregate progress of one bulk unsubscribe submission.
//
// Counters obey success_count + failed_count == processed_count <= total_emails
// at every point in time; they are only ever moved through atomic conditional
// updates, never read-modify-write. Status is monotonic
// pending -> processing -> completed and completed_at is set exactly once.
type BatchJob struct {
	ID             string         `json:"id"                      db:"id"`
	Owner          string         `json:"owner"                   db:"owner"`
	TotalEmails    int            `json:"total_emails"            db:"total_emails"`
	ProcessedCount int            `json:"processed_count"         db:"processed_count"`
	SuccessCount   int            `json:"success_count"           db:"success_count"`
	FailedCount    int            `json:"failed_count"            db:"failed_count"`
	Status         BatchJobStatus `json:"status"                  db:"status"`
	ErrorMessage   *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time      `json:"created_at"              db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"              db:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"  db:"completed_at"`
}

// ProgressPercentage derives the whole-number completion percentage.
// A batch with zero emails reports 0 rather than dividing by zero.
func (b *BatchJob) ProgressPercentage() int {
	if b.TotalEmails <= 0 {
		return 0
	}
	return int(math.Round(float64(b.ProcessedCount) / float64(b.TotalEmails) * 100))
}

// Finished reports whether every task of the batch has been accounted for.
func (b *BatchJob) Finished() bool {
	return b.ProcessedCount >= b.TotalEmails
}

// BatchJobStatusResponse is the snapshot returned by the status endpoint.
type BatchJobStatusResponse struct {
	JobID              string         `json:"jobId"`
	Status             BatchJobStatus `json:"status"`
	TotalEmails        int            `json:"totalEmails"`
	ProcessedCount     int            `json:"processedCount"`
	SuccessCount       int            `json:"successCount"`
	FailedCount        int            `json:"failedCount"`
	ProgressPercentage int            `json:"progressPercentage"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
}

// StatusResponse builds the user-facing snapshot for a batch job.
func (b *BatchJob) StatusResponse() *BatchJobStatusResponse {
	return &BatchJobStatusResponse{
		JobID:              b.ID,
		Status:             b.Status,
		TotalEmails:        b.TotalEmails,
		ProcessedCount:     b.ProcessedCount,
		SuccessCount:       b.SuccessCount,
		FailedCount:        b.FailedCount,
		ProgressPercentage: b.ProgressPercentage(),
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
		CompletedAt:        b.CompletedAt,
	}
}

// CreateBatchJobRequest represents a request to create a new batch job row.
type CreateBatchJobRequest struct {
	Owner       string `json:"owner"`
	TotalEmails int    `json:"total_emails"`
}

// BatchSubmissionResponse is returned when an async batch is accepted.
type BatchSubmissionResponse struct {
	BatchJobID  string         `json:"batchJobId"`
	TotalEmails int            `json:"totalEmails"`
	Status      BatchJobStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
}
