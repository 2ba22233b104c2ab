package httpx

import (
	"net/http"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/service"
)

// TaskHandlers exposes operational visibility into the durable task queue.
// Workers drain the queue in-process; this surface is read-only.
type TaskHandlers struct {
	Svc *service.TaskService
}

// Stats returns aggregate queue counts by status.
func (h *TaskHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "stats_failed",
			Err:     err,
		})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
