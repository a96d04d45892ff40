package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Values come from the
// environment (optionally via a .env file) with sensible defaults.
type Config struct {
	// HTTP
	ListenAddr string

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Auth
	JWTSecret   string
	TokenExpiry time.Duration

	// Sync
	MaxItemsPerSync int

	// Upstream metadata provider (Invidious-compatible API)
	InvidiousURL    string
	UpstreamTimeout time.Duration

	// Cache TTLs
	SearchCacheTTL   time.Duration
	TrendingCacheTTL time.Duration
	VideoCacheTTL    time.Duration
	StreamCacheTTL   time.Duration
	ChannelCacheTTL  time.Duration
	CommentsCacheTTL time.Duration
	NegativeCacheTTL time.Duration
	// Cached stream URLs are treated as expired this long before their
	// upstream hard expiry so playback never starts on a dying URL.
	StreamExpiryMargin time.Duration

	// Stream extraction (yt-dlp)
	YtDlpPath        string
	YtDlpTimeout     time.Duration
	MaxExtractions   int // simultaneous yt-dlp processes
	DefaultQuality   string
	GeoBypassCountry string

	// Logging
	LogLevel  string
	LogOutput string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load will not override variables already set in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "mediavault"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:   getEnv("JWT_SECRET", "mediavault-dev-secret"),
		TokenExpiry: getEnvSeconds("TOKEN_EXPIRY", 72*time.Hour),

		MaxItemsPerSync: getEnvInt("MAX_ITEMS_PER_SYNC", 1000),

		InvidiousURL:    getEnv("INVIDIOUS_URL", "https://yewtu.be"),
		UpstreamTimeout: getEnvSeconds("UPSTREAM_TIMEOUT", 10*time.Second),

		SearchCacheTTL:     getEnvSeconds("CACHE_SEARCH_TTL", time.Hour),
		TrendingCacheTTL:   getEnvSeconds("CACHE_TRENDING_TTL", time.Hour),
		VideoCacheTTL:      getEnvSeconds("CACHE_VIDEO_TTL", 6*time.Hour),
		StreamCacheTTL:     getEnvSeconds("CACHE_STREAM_TTL", 6*time.Hour),
		ChannelCacheTTL:    getEnvSeconds("CACHE_CHANNEL_TTL", 6*time.Hour),
		CommentsCacheTTL:   getEnvSeconds("CACHE_COMMENTS_TTL", time.Hour),
		NegativeCacheTTL:   getEnvSeconds("CACHE_NEGATIVE_TTL", 5*time.Minute),
		StreamExpiryMargin: getEnvSeconds("STREAM_EXPIRY_MARGIN", 30*time.Minute),

		YtDlpPath:        getEnv("YTDLP_PATH", "yt-dlp"),
		YtDlpTimeout:     getEnvSeconds("YTDLP_TIMEOUT", 30*time.Second),
		MaxExtractions:   getEnvInt("MAX_EXTRACTIONS", 4),
		DefaultQuality:   getEnv("DEFAULT_QUALITY", "best"),
		GeoBypassCountry: getEnv("GEO_BYPASS_COUNTRY", "US"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogOutput: getEnv("LOG_OUTPUT", ""),
	}
}
