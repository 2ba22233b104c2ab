package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrEmailNotFound is returned when an email row is not found.
var ErrEmailNotFound = errors.New("email not found")

// UnsubscribeStatus tracks the lifecycle of an email's unsubscribe attempt.
// The zero value (absent/null) means no attempt has been armed for the email.
type UnsubscribeStatus string

const (
	// UnsubscribeStatusPending indicates a link was extracted at ingestion but no attempt has started.
	UnsubscribeStatusPending UnsubscribeStatus = "pending"
	// UnsubscribeStatusInProgress indicates a task currently holds the claim on this email.
	UnsubscribeStatusInProgress UnsubscribeStatus = "in_progress"
	// UnsubscribeStatusCompleted indicates the last attempt succeeded.
	UnsubscribeStatusCompleted UnsubscribeStatus = "completed"
	// UnsubscribeStatusFailed indicates the last attempt failed.
	UnsubscribeStatusFailed UnsubscribeStatus = "failed"
)

// Valid returns true if the UnsubscribeStatus is valid.
func (s UnsubscribeStatus) Valid() bool {
	return s == UnsubscribeStatusPending || s == UnsubscribeStatusInProgress ||
		s == UnsubscribeStatusCompleted || s == UnsubscribeStatusFailed
}

// Email is the slice of the ingestion subsystem's email record this core reads
// and mutates. Ingestion owns the row; only the unsubscribe_* fields are
// written here, under the task runner's authority.
type Email struct {
	ID                     string             `json:"id"                                   db:"id"`
	Owner                  string             `json:"owner"                                db:"owner"`
	Subject                string             `json:"subject"                              db:"subject"`
	Sender                 string             `json:"sender"                               db:"sender"`
	UnsubscribeLink        *string            `json:"unsubscribe_link,omitempty"           db:"unsubscribe_link"`
	UnsubscribeStatus      *UnsubscribeStatus `json:"unsubscribe_status,omitempty"         db:"unsubscribe_status"`
	UnsubscribeAttemptedAt *time.Time         `json:"unsubscribe_attempted_at,omitempty"   db:"unsubscribe_attempted_at"`
	UnsubscribeCompletedAt *time.Time         `json:"unsubscribe_completed_at,omitempty"   db:"unsubscribe_completed_at"`
	UnsubscribeResult      json.RawMessage    `json:"unsubscribe_result,omitempty"         db:"unsubscribe_result"`
}

// UnsubscribeResultRecord is the structured payload stored in emails.unsubscribe_result.
type UnsubscribeResultRecord struct {
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
