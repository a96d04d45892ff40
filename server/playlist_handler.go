package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"mediavault/logger"
	"mediavault/model"
	"mediavault/repository"
)

// CreatePlaylistRequest is the playlist creation body.
type CreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// CreatePlaylistHandler creates an empty playlist.
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreatePlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeError(w, http.StatusUnprocessableEntity, "Name is required and must be at most 255 characters")
		return
	}

	p := &model.Playlist{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
	if err := h.playlistRepo.Create(r.Context(), p); err != nil {
		logger.Error("failed to create playlist", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create playlist")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    p,
	})
}

// ListPlaylistsHandler lists the caller's playlists without their items.
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	playlists, err := h.playlistRepo.ListByUser(r.Context(), userID)
	if err != nil {
		logger.Error("failed to list playlists", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load playlists")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    playlists,
	})
}

// GetPlaylistHandler returns one playlist with its ordered items.
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	p, err := h.playlistRepo.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Playlist not found")
			return
		}
		logger.Error("failed to load playlist", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    p,
	})
}

// UpdatePlaylistRequest carries the mutable playlist fields.
type UpdatePlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
}

// UpdatePlaylistHandler patches a playlist's own fields, not its membership.
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	p, err := h.playlistRepo.GetByID(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Playlist not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load playlist")
		return
	}

	var req UpdatePlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > 255 {
			writeError(w, http.StatusUnprocessableEntity, "Name must be between 1 and 255 characters")
			return
		}
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.IsPublic != nil {
		p.IsPublic = *req.IsPublic
	}

	if err := h.playlistRepo.Update(r.Context(), p); err != nil {
		logger.Error("failed to update playlist", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    p,
	})
}

// DeletePlaylistHandler soft deletes a playlist.
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.playlistRepo.SoftDelete(r.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Playlist not found")
			return
		}
		logger.Error("failed to delete playlist", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// AddPlaylistMediaRequest lists the records to append.
type AddPlaylistMediaRequest struct {
	MediaIDs []string `json:"mediaIds"`
}

// AddPlaylistMediaHandler appends records to a playlist. Records already in
// the playlist keep their position.
func (h *APIHandler) AddPlaylistMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]
	var req AddPlaylistMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.MediaIDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "mediaIds must not be empty")
		return
	}

	if err := h.playlistRepo.AddMedia(r.Context(), userID, id, req.MediaIDs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Playlist not found")
			return
		}
		logger.Error("failed to add media to playlist", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update playlist")
		return
	}

	p, err := h.playlistRepo.GetByID(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    p,
	})
}

// RemovePlaylistMediaHandler removes one record from a playlist.
func (h *APIHandler) RemovePlaylistMediaHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	if err := h.playlistRepo.RemoveMedia(r.Context(), userID, vars["id"], vars["mediaId"]); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Playlist not found")
			return
		}
		logger.Error("failed to remove media from playlist",
			logger.String("id", vars["id"]), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to update playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
