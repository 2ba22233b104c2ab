// Package unsubscribe implements the attempt protocol that drives a browser
// session against an arbitrary third-party unsubscribe page: navigate,
// classify, act, verify.
package unsubscribe

import (
	"context"
	"errors"
)

// PageType categorizes an external page into one of a fixed set of semantic states.
type PageType string

const (
	// PageTypeConfirmation indicates the page already confirms a successful unsubscribe.
	PageTypeConfirmation PageType = "confirmation"
	// PageTypeAlreadyUnsubscribed indicates the page reports a previously completed unsubscribe.
	PageTypeAlreadyUnsubscribed PageType = "already_unsubscribed"
	// PageTypeForm indicates the page presents a form that must be submitted.
	PageTypeForm PageType = "form"
	// PageTypeButton indicates the page presents a button that must be clicked.
	PageTypeButton PageType = "button"
	// PageTypeError indicates the page reports an error.
	PageTypeError PageType = "error"
	// PageTypeUnknown indicates the classifier could not match any known state.
	PageTypeUnknown PageType = "unknown"
)

// Valid returns true if the PageType is one of the fixed semantic states.
func (t PageType) Valid() bool {
	switch t {
	case PageTypeConfirmation, PageTypeAlreadyUnsubscribed, PageTypeForm,
		PageTypeButton, PageTypeError, PageTypeUnknown:
		return true
	}
	return false
}

// PageSnapshot is an observation of the currently loaded page, handed to the
// classifier and to strategy success checks.
type PageSnapshot struct {
	URL   string
	Title string
	HTML  string
	Text  string
}

// PageAnalysis is the classifier's structured verdict on a page snapshot.
type PageAnalysis struct {
	PageType             PageType `json:"page_type"`
	Description          string   `json:"description"`
	ActionRequired       bool     `json:"action_required"`
	ErrorMessage         string   `json:"error_message,omitempty"`
	HasResubscribeOption bool     `json:"has_resubscribe_option,omitempty"`
}

// Classifier categorizes a page snapshot. Production uses an AI-assisted
// implementation; tests substitute deterministic stubs. The two share only
// this contract.
type Classifier interface {
	Classify(ctx context.Context, snapshot *PageSnapshot) (*PageAnalysis, error)
}

// Session is one held browser automation session. Implementations wrap a real
// browser tab; tests use scripted fakes.
type Session interface {
	// ID identifies the underlying automation session for audit trails.
	ID() string
	// Navigate loads the given URL, waiting for content readiness
	// (not full network idleness; many third-party pages never go idle).
	Navigate(ctx context.Context, url string) error
	// Snapshot captures the current page state.
	Snapshot(ctx context.Context) (*PageSnapshot, error)
	// ClickFirst clicks the first present element among the given CSS
	// selectors and returns the selector that matched, or "" if none did.
	ClickFirst(ctx context.Context, selectors []string) (string, error)
	// SubmitFirst submits the first present form among the given CSS
	// selectors and returns the selector that matched, or "" if none did.
	SubmitFirst(ctx context.Context, selectors []string) (string, error)
	// Close tears the session down. Safe to call exactly once.
	Close() error
}

// SessionProvider acquires browser sessions. Acquisition failure is a
// transient infrastructure error, not a page-level outcome.
type SessionProvider interface {
	Acquire(ctx context.Context) (Session, error)
}

// ErrSessionUnavailable marks transient session-infrastructure failures.
// The runner rethrows these so the queue's retry policy applies, while
// page-level outcomes are terminal for the attempt.
var ErrSessionUnavailable = errors.New("browser session unavailable")

// Result is the uniform outcome shape of one unsubscribe attempt.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}
