package httpx

import (
	"log/slog"
	"net/http"

	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
	"github.com/pullcheck/pullcheck/internal/service"
)

// ReviewHandlers provides HTTP handlers for review submission and polling.
type ReviewHandlers struct {
	reviews *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandlers creates handlers backed by the given review service.
func NewReviewHandlers(reviews *service.ReviewService, logger *slog.Logger) *ReviewHandlers {
	return &ReviewHandlers{reviews: reviews, logger: logger}
}

// Analyze handles POST /analyze. Both accepted submissions and cache hits
// return 200; the response status field tells them apart.
func (h *ReviewHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req model.ReviewRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.reviews.Submit(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Status handles GET /status/{jobID} and GET /results/{jobID}.
func (h *ReviewHandlers) Status(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	rec, err := h.reviews.Status(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (h *ReviewHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	if code >= http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	WriteError(w, ErrorParams{Code: code, ErrCode: string(apperrors.GetCode(err)), Err: err})
}

// statusForError maps the application error taxonomy onto HTTP status codes.
// Unavailable maps to 503 so clients know a retry may succeed.
func statusForError(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case apperrors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
