package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the prediction service.
type Config struct {
	Port string
	// ArtifactsDir holds the trained model bundle
	ArtifactsDir string
	// DatabaseURL is optional; when empty predictions are kept in memory
	DatabaseURL string
	// RecommendationRules optionally replaces the built-in rules with a YAML file
	RecommendationRules string
	// PredictionLogRetention bounds the in-memory prediction log
	PredictionLogRetention int
	CORSAllowedOrigins     []string
	RequestTimeout         time.Duration
	Environment            string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	timeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: must be positive, got %s", timeout)
	}

	retention, err := strconv.Atoi(getEnv("PREDICTION_LOG_RETENTION", "500"))
	if err != nil {
		return nil, fmt.Errorf("invalid PREDICTION_LOG_RETENTION: %w", err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("invalid PREDICTION_LOG_RETENTION: must be positive, got %d", retention)
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8000"),
		ArtifactsDir:           getEnv("ARTIFACTS_DIR", "models"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RecommendationRules:    getEnv("RECOMMENDATION_RULES", ""),
		PredictionLogRetention: retention,
		CORSAllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RequestTimeout:         timeout,
		Environment:            getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Production() && slices.Contains(cfg.CORSAllowedOrigins, "*") {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS must list explicit origins in production")
	}
	return cfg, nil
}

// Address returns the full HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Production reports whether ENVIRONMENT is "production".
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
