package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mediavault/logger"
	"mediavault/model"
	"mediavault/repository"
)

// RecordWatchRequest reports playback progress for one record.
type RecordWatchRequest struct {
	MediaID              string `json:"mediaId"`
	WatchProgressSeconds int64  `json:"watchProgressSeconds"`
	IsCompleted          bool   `json:"isCompleted"`
	DeviceID             string `json:"deviceId"`
	WatchedAt            int64  `json:"watchedAt"` // unix millis, optional
}

// RecordWatchHandler stores a watch event and folds it into the daily
// analytics aggregates.
func (h *APIHandler) RecordWatchHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req RecordWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.MediaID == "" {
		writeError(w, http.StatusUnprocessableEntity, "mediaId is required")
		return
	}
	if req.WatchProgressSeconds < 0 {
		writeError(w, http.StatusUnprocessableEntity, "watchProgressSeconds must not be negative")
		return
	}

	m, err := h.mediaRepo.GetByID(r.Context(), userID, req.MediaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load media")
		return
	}

	watchedAt := time.Now().UTC()
	if req.WatchedAt > 0 {
		watchedAt = time.UnixMilli(req.WatchedAt).UTC()
	}

	entry := &model.WatchHistory{
		UserID:               userID,
		MediaID:              req.MediaID,
		WatchProgressSeconds: req.WatchProgressSeconds,
		IsCompleted:          req.IsCompleted,
		WatchedAt:            watchedAt,
		DeviceID:             req.DeviceID,
	}
	if err := h.historyRepo.Record(r.Context(), entry); err != nil {
		logger.Error("failed to record watch history", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to record watch history")
		return
	}

	// Aggregates are best effort: the history row is the durable record.
	if err := h.analyticsRepo.RecordWatch(r.Context(), userID, watchedAt,
		req.WatchProgressSeconds, m.Category, req.DeviceID); err != nil {
		logger.Warn("failed to update analytics aggregates",
			logger.Int64("userId", userID), logger.ErrorField(err))
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    entry,
	})
}

// ListHistoryHandler returns the caller's recent watch events.
func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.historyRepo.ListByUser(r.Context(), userID, limit)
	if err != nil {
		logger.Error("failed to list watch history", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load watch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    entries,
	})
}
