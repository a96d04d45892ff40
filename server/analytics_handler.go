package server

import (
	"net/http"
	"time"

	"mediavault/logger"
)

// AnalyticsSummaryHandler aggregates the caller's usage between two dates.
// Defaults to the last 30 days.
func (h *APIHandler) AnalyticsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	q := r.URL.Query()
	if v := q.Get("startDate"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD")
			return
		}
		start = parsed
	}
	if v := q.Get("endDate"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "endDate must be YYYY-MM-DD")
			return
		}
		end = parsed
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "endDate must not be before startDate")
		return
	}

	summary, err := h.analyticsRepo.Summary(r.Context(), userID, start, end)
	if err != nil {
		logger.Error("failed to build analytics summary", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    summary,
	})
}
