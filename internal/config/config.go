// Package config loads gemchat settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var DefaultGeminiEndpoints = []string{
	"https://generativelanguage.googleapis.com/v1/models/gemini-2.5-flash:generateContent",
	"https://generativelanguage.googleapis.com/v1/models/gemini-flash-latest:generateContent",
	"https://generativelanguage.googleapis.com/v1/models/gemini-2.5-flash-lite:generateContent",
}

// Config holds all configuration for the chat server
type Config struct {
	Addr      string
	StaticDir string
	LogLevel  string

	// Upstream AI settings
	GeminiAPIKey    string
	Provider        string
	GeminiEndpoints []string
	OpenAIBaseURL   string
	OpenAIModels    []string
	IncludeHistory  bool
	AITimeout       time.Duration

	// Search settings
	SerpAPIKey     string
	SerpAPIURL     string
	SearchCacheTTL time.Duration

	// Storage settings
	DatabaseURL      string
	DatabaseDriver   string
	DatabaseDSN      string
	UploadFolder     string
	MaxContentLength int64

	// HTTP settings
	CORSOrigins []string
	SecretKey   string

	// Socket retry policy
	SocketRetryAttempts int
	SocketRetryDelay    time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Addr:                getEnv("ADDR", ":5000"),
		StaticDir:           getEnv("STATIC_DIR", "static"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		Provider:            strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini)),
		GeminiEndpoints:     getEnvList("GEMINI_ENDPOINTS", DefaultGeminiEndpoints),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		OpenAIModels:        getEnvList("OPENAI_MODELS", []string{"gemini-2.5-flash", "gemini-flash-latest", "gemini-2.5-flash-lite"}),
		IncludeHistory:      getEnvBool("AI_INCLUDE_HISTORY", false),
		AITimeout:           getEnvDuration("AI_TIMEOUT", 30*time.Second),
		SerpAPIKey:          os.Getenv("SERPAPI_API_KEY"),
		SerpAPIURL:          getEnv("SERPAPI_URL", "https://serpapi.com/search"),
		SearchCacheTTL:      getEnvDuration("SEARCH_CACHE_TTL", time.Hour),
		DatabaseURL:         getEnv("DATABASE_URL", "sqlite:///chat_app.db"),
		UploadFolder:        getEnv("UPLOAD_FOLDER", "uploads"),
		MaxContentLength:    getEnvInt64("MAX_CONTENT_LENGTH", 50*1024*1024),
		CORSOrigins:         getEnvList("CORS_ORIGINS", []string{"*"}),
		SecretKey:           getEnv("SECRET_KEY", "dev-secret-key-change-in-production"),
		SocketRetryAttempts: getEnvInt("SOCKET_RETRY_ATTEMPTS", 3),
		SocketRetryDelay:    getEnvDuration("SOCKET_RETRY_DELAY", time.Second),
	}

	driver, dsn, err := ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return cfg, err
	}
	cfg.DatabaseDriver, cfg.DatabaseDSN = driver, dsn

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Provider != ProviderGemini && c.Provider != ProviderOpenAI {
		return fmt.Errorf("AI_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.Provider)
	}
	if len(c.GeminiEndpoints) == 0 {
		return errors.New("GEMINI_ENDPOINTS must list at least one endpoint")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if c.SocketRetryAttempts < 1 || c.SocketRetryAttempts > 10 {
		return fmt.Errorf("SOCKET_RETRY_ATTEMPTS must be 1-10, got %d", c.SocketRetryAttempts)
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive, got %v", c.AITimeout)
	}
	return nil
}

// Warnings lists settings that are missing but not fatal.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.GeminiAPIKey == "" {
		warnings = append(warnings, "GEMINI_API_KEY not set; AI responses will be unavailable")
	}
	if c.SerpAPIKey == "" {
		warnings = append(warnings, "SERPAPI_API_KEY not set; live search is disabled")
	}
	return warnings
}

// ParseDatabaseURL maps a connection URL onto a database/sql driver name and
// data source. sqlite:///relative.db and sqlite:////abs/path.db name a file;
// postgres:// and postgresql:// URLs are passed to lib/pq unchanged.
func ParseDatabaseURL(raw string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(raw, "sqlite:///"):
		path := strings.TrimPrefix(raw, "sqlite:///")
		if path == "" || path == ":memory:" {
			return "sqlite3", ":memory:", nil
		}
		return "sqlite3", path, nil
	case raw == "sqlite://" || raw == "sqlite://:memory:":
		return "sqlite3", ":memory:", nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		if _, err := url.Parse(raw); err != nil {
			return "", "", fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		return "postgres", raw, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL %q", raw)
	}
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
