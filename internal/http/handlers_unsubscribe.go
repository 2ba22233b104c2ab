// Package httpx provides the HTTP surface of the bulk unsubscribe system.
package httpx

import (
	"errors"
	"net/http"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/service"
)

// UnsubscribeHandlers provides HTTP handlers for batch unsubscribe operations.
type UnsubscribeHandlers struct {
	Svc *service.UnsubscribeOrchestrator
}

// batchRequest is the request body shared by both submission endpoints.
type batchRequest struct {
	EmailIDs []string `json:"emailIds"`
}

// SubmitBatch handles asynchronous batch submissions. The batch job and its
// tasks are enqueued atomically and the job handle is returned immediately.
func (h *UnsubscribeHandlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.Submit(r.Context(), OwnerFromContext(r.Context()), req.EmailIDs)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// SubmitSyncBatch handles small synchronous batches, running attempts inline
// and returning per-email outcomes in the response.
func (h *UnsubscribeHandlers) SubmitSyncBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.SubmitSync(r.Context(), OwnerFromContext(r.Context()), req.EmailIDs)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetStatus returns the progress snapshot for a batch job the caller owns.
func (h *UnsubscribeHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id is required"),
		})
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), OwnerFromContext(r.Context()), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// GetResults returns the persisted per-email outcomes of a batch job the
// caller owns.
func (h *UnsubscribeHandlers) GetResults(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if jobID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("job id is required"),
		})
		return
	}

	results, err := h.Svc.GetResults(r.Context(), OwnerFromContext(r.Context()), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobId":   jobID,
		"results": results,
		"total":   len(results),
	})
}

// ListJobs returns the caller's batch jobs, newest first.
func (h *UnsubscribeHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	const (
		defaultLimit = 20
		maxLimit     = 100
	)
	limit, offset := ParseLimitOffset(r, defaultLimit, maxLimit)

	jobs, err := h.Svc.ListJobs(r.Context(), OwnerFromContext(r.Context()), limit, offset)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
