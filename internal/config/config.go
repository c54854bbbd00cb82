package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DatabaseURL  string
	LogLevel     string
	QueryTimeout time.Duration

	// Auth
	JWTSecret     string
	JWTTTL        time.Duration
	AdminUsername string
	AdminPassword string

	// Uploads and stored artifacts
	MaxUploadBytes  int64
	ArtifactBackend string
	UploadDir       string
	S3Bucket        string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	ChartCacheSize  int

	// Insights
	OpenRouterAPIKey    string
	InsightsURL         string
	InsightsModel       string
	InsightsTimeout     time.Duration
	InsightsMaxRows     int
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	// Upload event plugins
	PluginRetryMax     int
	PluginRetryBackoff time.Duration
	PluginRPCTimeout   time.Duration
}

func Load() Config {
	return Config{
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  getEnvRequired("DATABASE_URL"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 5*time.Second),

		JWTSecret:     getEnvRequired("JWT_SECRET"),
		JWTTTL:        getEnvDuration("JWT_TTL", 24*time.Hour),
		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		ArtifactBackend: getEnv("ARTIFACT_BACKEND", "local"),
		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		ChartCacheSize:  getEnvInt("CHART_CACHE_SIZE", 256),

		OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		InsightsURL:         getEnv("INSIGHTS_URL", "https://openrouter.ai/api/v1/chat/completions"),
		InsightsModel:       getEnv("INSIGHTS_MODEL", "mistralai/mistral-7b-instruct"),
		InsightsTimeout:     getEnvDuration("INSIGHTS_TIMEOUT", 30*time.Second),
		InsightsMaxRows:     getEnvInt("INSIGHTS_MAX_ROWS", 200),
		BreakerMaxFailures:  getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),

		PluginRetryMax:     getEnvInt("PLUGIN_RETRY_MAX", 3),
		PluginRetryBackoff: getEnvDuration("PLUGIN_RETRY_BACKOFF", 100*time.Millisecond),
		PluginRPCTimeout:   getEnvDuration("PLUGIN_RPC_TIMEOUT", 5*time.Second),
	}
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
