package playground

import (
	"net/http"
	"strconv"

	"finvisor/internal/api/respond"
	"finvisor/pkg/errors"
)

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	if h.deps.Usage == nil {
		respond.Error(w, errors.Wrap(errors.ErrUnavailable, "usage log is not configured"))
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			respond.Error(w, errors.NewValidationError("days", "must be between 1 and 365", raw))
			return
		}
		days = n
	}

	summary, err := h.deps.Usage.Summarize(r.Context(), r.URL.Query().Get("user_id"), days)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}
