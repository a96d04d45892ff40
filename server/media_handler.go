package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"mediavault/core/library"
	"mediavault/logger"
	"mediavault/model"
	"mediavault/repository"
)

// SyncRequest is the batch a device uploads in one sync call. syncTimestamp
// is the watermark the device took from its previous response, in epoch ms;
// zero asks for a full sync.
type SyncRequest struct {
	DeviceID          string               `json:"deviceId"`
	LastSyncTimestamp int64                `json:"syncTimestamp"`
	MediaItems        []library.ClientItem `json:"mediaItems"`
	DeletedIDs        []string             `json:"deletedIds"`
}

// SyncHandler applies a device's batch and returns the reverse delta.
func (h *APIHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engine.Merge(r.Context(), userID, req.DeviceID,
		req.MediaItems, req.DeletedIDs, req.LastSyncTimestamp)
	if err != nil {
		var verr *library.ValidationError
		if errors.As(err, &verr) {
			writeValidationError(w, verr)
			return
		}
		logger.Error("sync merge failed",
			logger.Int64("userId", userID),
			logger.String("deviceId", req.DeviceID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Sync failed, no changes were applied")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"syncedCount":   result.SyncedCount,
		"failedCount":   result.FailedCount,
		"serverUpdates": result.ServerUpdates,
		"syncTimestamp": time.Now().UTC().UnixMilli(),
	})
}

// SyncHistoryHandler lists the caller's recent sync audit entries.
func (h *APIHandler) SyncHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.syncLogRepo.ListByUser(r.Context(), userID, limit)
	if err != nil {
		logger.Error("failed to list sync logs", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load sync history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    entries,
	})
}

// ListMediaHandler returns a page of the caller's library.
func (h *APIHandler) ListMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q := r.URL.Query()
	filter := repository.MediaListFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	items, total, err := h.mediaRepo.List(r.Context(), userID, filter)
	if err != nil {
		logger.Error("failed to list media", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    items,
		"total":   total,
	})
}

// CreateMediaHandler adds a single bookmark outside the sync flow.
func (h *APIHandler) CreateMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var item library.ClientItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PlaybackSpeed == 0 {
		item.PlaybackSpeed = 1.0
	}

	m, verr := library.BuildRecord(userID, &item)
	if verr != nil {
		writeValidationError(w, verr)
		return
	}

	if err := h.mediaRepo.Create(r.Context(), m); err != nil {
		if errors.Is(err, repository.ErrDuplicateFingerprint) {
			writeError(w, http.StatusConflict, "This URL is already in your library")
			return
		}
		logger.Error("failed to create media", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create media")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    m,
	})
}

// GetMediaHandler returns one library record.
func (h *APIHandler) GetMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	m, err := h.mediaRepo.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		logger.Error("failed to load media", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    m,
	})
}

// UpdateMediaRequest carries the mutable fields of a bookmark.
type UpdateMediaRequest struct {
	Title         *string  `json:"title"`
	Description   *string  `json:"description"`
	Category      *string  `json:"category"`
	Tags          []string `json:"tags"`
	IsFavorite    *bool    `json:"isFavorite"`
	PlaybackSpeed *float64 `json:"playbackSpeed"`
}

// UpdateMediaHandler patches one library record.
func (h *APIHandler) UpdateMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	m, err := h.mediaRepo.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load media")
		return
	}

	var req UpdateMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title != nil {
		m.Title = *req.Title
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.Category != nil {
		if !slices.Contains(model.AllowedCategories, *req.Category) {
			writeError(w, http.StatusUnprocessableEntity, "Unknown category")
			return
		}
		m.Category = *req.Category
	}
	if req.Tags != nil {
		m.Tags = model.StringList(req.Tags)
	}
	if req.IsFavorite != nil {
		m.IsFavorite = *req.IsFavorite
	}
	if req.PlaybackSpeed != nil {
		if *req.PlaybackSpeed < 0.25 || *req.PlaybackSpeed > 2.0 {
			writeError(w, http.StatusUnprocessableEntity, "Playback speed must be between 0.25 and 2")
			return
		}
		m.PlaybackSpeed = *req.PlaybackSpeed
	}
	if m.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "Title must not be empty")
		return
	}

	if err := h.mediaRepo.Update(r.Context(), m); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		logger.Error("failed to update media", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    m,
	})
}

// DeleteMediaHandler soft deletes one library record.
func (h *APIHandler) DeleteMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.mediaRepo.SoftDeleteOne(r.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		logger.Error("failed to delete media", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
