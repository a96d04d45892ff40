package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mediavault/core/youtube"
	"mediavault/logger"
)

// proxyEnvelope wraps a relayed upstream payload with its provenance.
type proxyEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Source  string          `json:"source"`
}

func sourceLabel(cached bool) string {
	if cached {
		return "cache"
	}
	return "api"
}

func forceRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	return v == "1" || v == "true"
}

// writeProxyResult relays a metadata lookup or maps its failure.
func writeProxyResult(w http.ResponseWriter, payload json.RawMessage, cached bool, err error) {
	if err != nil {
		var upErr *youtube.UpstreamError
		if errors.As(err, &upErr) {
			logger.Warn("upstream metadata lookup failed",
				logger.Int("status", upErr.StatusCode),
				logger.String("endpoint", upErr.Endpoint))
			writeError(w, http.StatusServiceUnavailable, "Upstream service unavailable")
			return
		}
		logger.Error("metadata lookup failed", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Upstream service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, proxyEnvelope{
		Success: true,
		Data:    payload,
		Source:  sourceLabel(cached),
	})
}

// YouTubeSearchHandler proxies a paginated video search.
func (h *APIHandler) YouTubeSearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	payload, cached, err := h.youtubeSvc.Search(r.Context(), query, page, forceRefresh(r))
	writeProxyResult(w, payload, cached, err)
}

// YouTubeTrendingHandler proxies the trending feed.
func (h *APIHandler) YouTubeTrendingHandler(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	kind := r.URL.Query().Get("type")
	payload, cached, err := h.youtubeSvc.Trending(r.Context(), region, kind, forceRefresh(r))
	writeProxyResult(w, payload, cached, err)
}

// YouTubeVideoHandler proxies one video's metadata.
func (h *APIHandler) YouTubeVideoHandler(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["id"]
	payload, cached, err := h.youtubeSvc.Video(r.Context(), videoID, forceRefresh(r))
	writeProxyResult(w, payload, cached, err)
}

// YouTubeChannelHandler proxies a channel's uploads.
func (h *APIHandler) YouTubeChannelHandler(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["id"]
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	payload, cached, err := h.youtubeSvc.Channel(r.Context(), channelID, page, forceRefresh(r))
	writeProxyResult(w, payload, cached, err)
}

// YouTubeCommentsHandler proxies a page of comments.
func (h *APIHandler) YouTubeCommentsHandler(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["id"]
	continuation := r.URL.Query().Get("continuation")
	payload, cached, err := h.youtubeSvc.Comments(r.Context(), videoID, continuation, forceRefresh(r))
	writeProxyResult(w, payload, cached, err)
}

// YouTubeStreamHandler resolves a direct stream URL for a video. A failed
// extraction still answers 200: the negative body tells the device to
// extract locally instead.
func (h *APIHandler) YouTubeStreamHandler(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["id"]
	quality := r.URL.Query().Get("quality")

	result, cached, err := h.youtubeSvc.Stream(r.Context(), videoID, quality, forceRefresh(r))
	if err != nil {
		logger.Error("stream resolution failed",
			logger.String("videoId", videoID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to resolve stream")
		return
	}

	writeJSON(w, http.StatusOK, streamEnvelope{
		StreamResult: result,
		Source:       sourceLabel(cached),
	})
}

// streamEnvelope adds provenance to a stream result.
type streamEnvelope struct {
	*youtube.StreamResult
	Source string `json:"source"`
}
