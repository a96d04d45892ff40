package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"mediavault/cache"
	"mediavault/config"
	"mediavault/core/extractor"
	"mediavault/core/library"
	"mediavault/core/youtube"
	"mediavault/db"
	"mediavault/logger"
	"mediavault/repository"
)

// Start initializes dependencies and runs the HTTP server until SIGINT or
// SIGTERM, then shuts down gracefully.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutput,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	userRepo := repository.NewMySQLUserRepository(db.DB)
	mediaRepo := repository.NewMySQLMediaRepository(db.DB)
	playlistRepo := repository.NewMySQLPlaylistRepository(db.DB)
	historyRepo := repository.NewMySQLWatchHistoryRepository(db.DB)
	analyticsRepo := repository.NewMySQLAnalyticsRepository(db.DB)
	syncLogRepo := repository.NewMySQLSyncLogRepository(db.DB)

	engine := library.NewEngine(mediaRepo, syncLogRepo, cfg.MaxItemsPerSync)

	resourceCache := cache.NewResourceCache(
		cache.NewRedisStore(db.RedisClient), cfg.SearchCacheTTL, cfg.StreamExpiryMargin)
	upstream := youtube.NewClient(cfg.InvidiousURL, cfg.UpstreamTimeout)
	streams := extractor.NewYtDlpExtractor(
		cfg.YtDlpPath, cfg.YtDlpTimeout, cfg.GeoBypassCountry, cfg.MaxExtractions)
	youtubeSvc := youtube.NewService(upstream, streams, resourceCache, youtube.TTLConfig{
		Search:   cfg.SearchCacheTTL,
		Trending: cfg.TrendingCacheTTL,
		Video:    cfg.VideoCacheTTL,
		Stream:   cfg.StreamCacheTTL,
		Channel:  cfg.ChannelCacheTTL,
		Comments: cfg.CommentsCacheTTL,
		Negative: cfg.NegativeCacheTTL,
	}, cfg.DefaultQuality)

	apiHandler := NewAPIHandler(userRepo, mediaRepo, playlistRepo, historyRepo,
		analyticsRepo, syncLogRepo, engine, youtubeSvc, cfg)

	router := NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

// NewRouter builds the route table.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Auth
	router.HandleFunc("/api/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)

	// Library and sync
	router.HandleFunc("/api/media/sync", h.AuthMiddleware(h.SyncHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/media/sync/history", h.AuthMiddleware(h.SyncHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/media", h.AuthMiddleware(h.ListMediaHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/media", h.AuthMiddleware(h.CreateMediaHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/media/{id}", h.AuthMiddleware(h.GetMediaHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/media/{id}", h.AuthMiddleware(h.UpdateMediaHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/media/{id}", h.AuthMiddleware(h.DeleteMediaHandler)).Methods(http.MethodDelete)

	// Playlists
	router.HandleFunc("/api/playlists", h.AuthMiddleware(h.ListPlaylistsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", h.AuthMiddleware(h.CreatePlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", h.AuthMiddleware(h.GetPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.AuthMiddleware(h.UpdatePlaylistHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", h.AuthMiddleware(h.DeletePlaylistHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/media", h.AuthMiddleware(h.AddPlaylistMediaHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/media/{mediaId}", h.AuthMiddleware(h.RemovePlaylistMediaHandler)).Methods(http.MethodDelete)

	// Upstream video proxy
	router.HandleFunc("/api/youtube/search", h.AuthMiddleware(h.YouTubeSearchHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/trending", h.AuthMiddleware(h.YouTubeTrendingHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/video/{id}", h.AuthMiddleware(h.YouTubeVideoHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/stream/{id}", h.AuthMiddleware(h.YouTubeStreamHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/channel/{id}", h.AuthMiddleware(h.YouTubeChannelHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/youtube/comments/{id}", h.AuthMiddleware(h.YouTubeCommentsHandler)).Methods(http.MethodGet)

	// History and analytics
	router.HandleFunc("/api/history", h.AuthMiddleware(h.RecordWatchHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/history", h.AuthMiddleware(h.ListHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/analytics/summary", h.AuthMiddleware(h.AnalyticsSummaryHandler)).Methods(http.MethodGet)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
