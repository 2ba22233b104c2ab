package httpx

import (
	"log/slog"
	"net/http"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/ports"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Unsubscribe *service.UnsubscribeOrchestrator
	Tasks       *service.TaskService

	// Verifier resolves bearer tokens on the API routes.
	Verifier ports.TokenVerifier
	// AllowOwnerHeader enables the X-Owner-ID override. Development only.
	AllowOwnerHeader bool

	Logger *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	unsubHandlers := &UnsubscribeHandlers{Svc: services.Unsubscribe}

	api := http.NewServeMux()
	registerUnsubscribeRoutes(api, unsubHandlers)
	if services.Tasks != nil {
		registerTaskRoutes(api, &TaskHandlers{Svc: services.Tasks})
	}

	requireAuth := RequireAuth(AuthOptions{
		Verifier:         services.Verifier,
		AllowOwnerHeader: services.AllowOwnerHeader,
	})
	mux.Handle("/api/", requireAuth(api))

	return mux
}

func registerUnsubscribeRoutes(mux *http.ServeMux, h *UnsubscribeHandlers) {
	mux.HandleFunc("POST /api/unsubscribe/batch", h.SubmitSyncBatch)
	mux.HandleFunc("POST /api/unsubscribe/async/batch", h.SubmitBatch)
	mux.HandleFunc("GET /api/unsubscribe/async/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/unsubscribe/async/status/{jobId}", h.GetStatus)
	mux.HandleFunc("GET /api/unsubscribe/async/status/{jobId}/results", h.GetResults)
}

func registerTaskRoutes(mux *http.ServeMux, h *TaskHandlers) {
	mux.HandleFunc("GET /api/tasks/stats", h.Stats)
}
