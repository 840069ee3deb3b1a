package httpx

import (
	"log/slog"
	"net/http"

	"github.com/pullcheck/pullcheck/internal/core"
	"github.com/pullcheck/pullcheck/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Reviews *service.ReviewService
	Queue   core.JobQueue
	Store   core.ResultStore
	Logger  *slog.Logger
}

// NewRouter builds the API handler with logging and panic recovery applied to
// every route.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	reviews := NewReviewHandlers(services.Reviews, logger)
	mux.HandleFunc("POST /analyze", reviews.Analyze)
	mux.HandleFunc("GET /status/{jobID}", reviews.Status)
	// Alias kept for clients that poll the result by its original name.
	mux.HandleFunc("GET /results/{jobID}", reviews.Status)

	stats := NewStatsHandlers(services.Queue, logger)
	mux.HandleFunc("GET /stats", stats.Stats)

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /readyz", readyHandler(services.Store))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
