package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	DBMaxConns       int
	DBMinConns       int
	DBConnectTimeout time.Duration

	SoraAPIKey  string
	SoraBaseURL string

	StorageBackend       string // "supabase" or "filesystem"
	SupabaseStorageURL   string
	SupabaseServiceKey   string
	VideoBucket          string
	ReferenceImageBucket string
	StoragePath          string
	StorageBaseURL       string

	AllowedOrigins  []string
	RateLimitPerMin int

	PollInterval     time.Duration
	PollListLimit    int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:       getEnvInt("DB_MIN_CONNS", 1),
		DBConnectTimeout: time.Second * time.Duration(getEnvInt("DB_CONNECT_TIMEOUT_SECONDS", 10)),

		SoraAPIKey:  os.Getenv("SORA_API_KEY"),
		SoraBaseURL: getEnv("SORA_BASE_URL", "https://api.openai.com/v1"),

		StorageBackend:       getEnv("STORAGE_BACKEND", "filesystem"),
		SupabaseStorageURL:   os.Getenv("SUPABASE_STORAGE_URL"),
		SupabaseServiceKey:   os.Getenv("SUPABASE_SERVICE_KEY"),
		VideoBucket:          getEnv("VIDEO_BUCKET", "videos"),
		ReferenceImageBucket: getEnv("REFERENCE_IMAGE_BUCKET", "reference-images"),
		StoragePath:          getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:       getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		PollListLimit:    getEnvInt("POLL_LIST_LIMIT", 100),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StorageBackend == "supabase" {
		if cfg.SupabaseStorageURL == "" {
			return nil, fmt.Errorf("SUPABASE_STORAGE_URL is required for the supabase storage backend")
		}
		if cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_SERVICE_KEY is required for the supabase storage backend")
		}
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
