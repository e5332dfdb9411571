// Package config provides process configuration loaded from environment
// variables and the runtime settings persisted in the data directory.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process configuration. It is read once at startup.
type Config struct {
	DataDir  string
	Port     string
	LogLevel string

	// STORE_DRIVER selects sqlite (default) or postgres.
	StoreDriver string
	DatabaseURL string

	// FRAME_STORE selects fs (default) or minio.
	FrameStore     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	OllamaHost      string
	EmbedModel      string
	EmbedDimensions int
	VisionModel     string

	PrimaryMonitorOnly bool
	CaptureFormat      string
	CaptureInputs      []string
	SelfWindowMarker   string

	AITimeout   time.Duration
	// AI_RATE_LIMIT caps enhancement calls per second; 0 disables it.
	AIRateLimit float64

	RetentionSchedule string
}

// DBPath is the SQLite database file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "relife.db")
}

// ScreenshotsDir holds the frame images when FrameStore is fs.
func (c *Config) ScreenshotsDir() string {
	return filepath.Join(c.DataDir, "screenshots")
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	// bare numbers are seconds
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openrelife"
	}
	return filepath.Join(home, ".openrelife")
}

// Load reads configuration from environment variables, loading a .env file
// first if one exists, and makes sure the data directory exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		DataDir:  getEnv("RELIFE_DATA_DIR", defaultDataDir()),
		Port:     getEnv("PORT", "8082"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		FrameStore:     strings.ToLower(getEnv("FRAME_STORE", "fs")),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		MinioBucket:    getEnv("MINIO_BUCKET", "relife-frames"),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		EmbedModel:      getEnv("EMBED_MODEL", "nomic-embed-text"),
		EmbedDimensions: getEnvAsInt("EMBED_DIMENSIONS", 768),
		VisionModel:     getEnv("VISION_MODEL", "llama3.2-vision:11b"),

		PrimaryMonitorOnly: getEnvAsBool("PRIMARY_MONITOR_ONLY", false),
		CaptureFormat:      os.Getenv("CAPTURE_FORMAT"),
		CaptureInputs:      getEnvAsList("CAPTURE_INPUTS"),
		SelfWindowMarker:   getEnv("SELF_WINDOW_MARKER", "OpenReLife"),

		AITimeout:         getEnvAsDuration("AI_TIMEOUT", 120*time.Second),
		AIRateLimit:       getEnvAsFloat("AI_RATE_LIMIT", 1),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "0 3 * * *"),
	}

	switch cfg.StoreDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return nil, errors.New("STORE_DRIVER must be sqlite or postgres")
	}

	switch cfg.FrameStore {
	case "fs":
	case "minio":
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when FRAME_STORE=minio")
		}
	default:
		return nil, errors.New("FRAME_STORE must be fs or minio")
	}

	if cfg.AIRateLimit < 0 {
		return nil, errors.New("AI_RATE_LIMIT must not be negative")
	}

	if cfg.EmbedDimensions <= 0 {
		return nil, errors.New("EMBED_DIMENSIONS must be a positive integer")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	return cfg, nil
}
