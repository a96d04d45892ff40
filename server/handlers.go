package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mediavault/config"
	"mediavault/core/auth"
	"mediavault/core/library"
	"mediavault/core/youtube"
	"mediavault/logger"
	"mediavault/repository"
)

// APIHandler handles all API requests.
type APIHandler struct {
	userRepo      repository.UserRepository
	mediaRepo     repository.MediaRepository
	playlistRepo  repository.PlaylistRepository
	historyRepo   repository.WatchHistoryRepository
	analyticsRepo repository.AnalyticsRepository
	syncLogRepo   repository.SyncLogRepository
	engine        *library.Engine
	youtubeSvc    *youtube.Service
	cfg           *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	userRepo repository.UserRepository,
	mediaRepo repository.MediaRepository,
	playlistRepo repository.PlaylistRepository,
	historyRepo repository.WatchHistoryRepository,
	analyticsRepo repository.AnalyticsRepository,
	syncLogRepo repository.SyncLogRepository,
	engine *library.Engine,
	youtubeSvc *youtube.Service,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:      userRepo,
		mediaRepo:     mediaRepo,
		playlistRepo:  playlistRepo,
		historyRepo:   historyRepo,
		analyticsRepo: analyticsRepo,
		syncLogRepo:   syncLogRepo,
		engine:        engine,
		youtubeSvc:    youtubeSvc,
		cfg:           cfg,
	}
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeValidationError writes a 422 with the per-field problems.
func writeValidationError(w http.ResponseWriter, verr *library.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"success": false,
		"error":   "validation failed",
		"fields":  verr.Fields,
	})
}

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

// AuthMiddleware checks for a valid JWT token and stores the caller's
// identity in the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken(parts[1], h.cfg.JWTSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(usernameKey).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
