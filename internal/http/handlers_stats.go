package httpx

import (
	"log/slog"
	"net/http"

	"github.com/pullcheck/pullcheck/internal/core"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
)

// StatsHandlers exposes queue depth counters for operators.
type StatsHandlers struct {
	queue  core.JobQueue
	logger *slog.Logger
}

// NewStatsHandlers creates stats handlers over the given queue.
func NewStatsHandlers(queue core.JobQueue, logger *slog.Logger) *StatsHandlers {
	return &StatsHandlers{queue: queue, logger: logger}
}

// Stats handles GET /stats.
func (h *StatsHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(r.Context(), "queue stats failed", "error", err)
		}
		WriteError(w, ErrorParams{
			Code:    statusForError(err),
			ErrCode: string(apperrors.GetCode(err)),
			Err:     err,
		})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
