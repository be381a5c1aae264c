package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the archivist service.
type Config struct {
	BindAddr                 string
	MetricsNamespace         string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration

	AllowAnyOrigin bool

	TokenBudget         int
	MaxIterations       int
	RecentPinned        int
	CompressTargetRatio float64
	AllowedTools        []string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ToolTimeout    time.Duration

	CompletionMode  string
	CompletionURL   string
	OpenAIAPIKey    string
	OpenAIModel     string
	PlanTimeout     time.Duration
	CompressTimeout time.Duration

	DatabaseURL  string
	IndexPath    string
	ChunkSize    int
	ChunkOverlap int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "archivist"),
		AllowAnyOrigin:           false,
		TokenBudget:              8192,
		MaxIterations:            10,
		RecentPinned:             2,
		CompressTargetRatio:      0.8,
		RetryAttempts:            3,
		RetryBaseDelay:           250 * time.Millisecond,
		RetryMaxDelay:            4 * time.Second,
		ToolTimeout:              30 * time.Second,
		CompletionMode:           envOrDefault("COMPLETION_MODE", "auto"),
		CompletionURL:            envTrimmed("COMPLETION_HTTP_URL"),
		OpenAIAPIKey:             envTrimmed("OPENAI_API_KEY"),
		OpenAIModel:              envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		PlanTimeout:              30 * time.Second,
		CompressTimeout:          20 * time.Second,
		DatabaseURL:              envTrimmed("DATABASE_URL"),
		IndexPath:                envTrimmed("INDEX_PATH"),
		ChunkSize:                1000,
		ChunkOverlap:             0,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
	}

	if raw := envTrimmed("AGENT_ALLOWED_TOOLS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				cfg.AllowedTools = append(cfg.AllowedTools, p)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.TokenBudget, err = intFromEnv("AGENT_TOKEN_BUDGET", cfg.TokenBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxIterations, err = intFromEnv("AGENT_MAX_ITERATIONS", cfg.MaxIterations)
	if err != nil {
		return Config{}, err
	}
	cfg.RecentPinned, err = intFromEnv("AGENT_RECENT_PINNED", cfg.RecentPinned)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressTargetRatio, err = floatFromEnv("AGENT_COMPRESS_TARGET_RATIO", cfg.CompressTargetRatio)
	if err != nil {
		return Config{}, err
	}

	cfg.RetryAttempts, err = intFromEnv("AGENT_RETRY_ATTEMPTS", cfg.RetryAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBaseDelay, err = durationFromEnv("AGENT_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryMaxDelay, err = durationFromEnv("AGENT_RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolTimeout, err = durationFromEnv("TOOL_TIMEOUT", cfg.ToolTimeout)
	if err != nil {
		return Config{}, err
	}

	cfg.PlanTimeout, err = durationFromEnv("COMPLETION_PLAN_TIMEOUT", cfg.PlanTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressTimeout, err = durationFromEnv("COMPLETION_COMPRESS_TIMEOUT", cfg.CompressTimeout)
	if err != nil {
		return Config{}, err
	}

	cfg.ChunkSize, err = intFromEnv("CHUNK_SIZE", cfg.ChunkSize)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkOverlap, err = intFromEnv("CHUNK_OVERLAP", cfg.ChunkOverlap)
	if err != nil {
		return Config{}, err
	}

	if cfg.TokenBudget <= 0 {
		return Config{}, fmt.Errorf("AGENT_TOKEN_BUDGET must be positive")
	}
	if cfg.MaxIterations <= 0 {
		return Config{}, fmt.Errorf("AGENT_MAX_ITERATIONS must be positive")
	}
	if cfg.RecentPinned < 0 {
		return Config{}, fmt.Errorf("AGENT_RECENT_PINNED must be >= 0")
	}
	if cfg.CompressTargetRatio <= 0 || cfg.CompressTargetRatio > 1 {
		return Config{}, fmt.Errorf("AGENT_COMPRESS_TARGET_RATIO must be in (0, 1]")
	}
	if cfg.RetryAttempts <= 0 {
		return Config{}, fmt.Errorf("AGENT_RETRY_ATTEMPTS must be positive")
	}
	if cfg.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return Config{}, fmt.Errorf("CHUNK_OVERLAP must be >= 0 and smaller than CHUNK_SIZE")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
