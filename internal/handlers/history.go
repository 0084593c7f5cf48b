package handlers

import (
	"net/http"
	"strconv"

	apperrors "holdings/internal/errors"
	"holdings/internal/models"
	"holdings/internal/repository"
)

// HistoryHandler serves the fetch audit log.
type HistoryHandler struct {
	deps *Dependencies
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(deps *Dependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// Recent returns one page of fetch outcomes, newest first.
// ?page= is 1-based, ?per_page= is capped by the repository.
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	page, err := positiveParam(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := positiveParam(r, "per_page", repository.DefaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := repository.PageToPagination(page, perPage)

	if h.deps.HistoryRepo == nil {
		writeJSON(w, r, http.StatusOK, repository.NewPaginatedResult[*models.FetchHistory](nil, 0, p))
		return
	}
	result, err := h.deps.HistoryRepo.List(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func positiveParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, apperrors.Validation(name + " must be a positive integer")
	}
	return n, nil
}

// Health reports liveness, and database reachability when history is enabled.
func (h *HistoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.deps.HistoryRepo != nil {
		if err := h.deps.HistoryRepo.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, r, http.StatusOK, status)
}
