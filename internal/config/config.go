// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Survey sessions
	SurveyTotalPages    int           `env:"SURVEY_TOTAL_PAGES" default:"5"`
	SessionIdleExpiry   time.Duration `env:"SESSION_IDLE_EXPIRY" default:"30m"`
	SessionSweepEvery   time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"1m"`
	RetryAfterSeconds   int           `env:"RETRY_AFTER_SECONDS" default:"5"`
	RatePerSecond       float64       `env:"RATE_LIMIT_PER_SECOND" default:"20"`
	RateBurst           int           `env:"RATE_LIMIT_BURST" default:"40"`

	// Cache TTLs per entity class
	CacheSessionTTL   time.Duration `env:"CACHE_SESSION_TTL" default:"30m"`
	CacheSurveyTTL    time.Duration `env:"CACHE_SURVEY_TTL" default:"1h"`
	CacheAnalyticsTTL time.Duration `env:"CACHE_ANALYTICS_TTL" default:"5m"`
	CacheRateLimitTTL time.Duration `env:"CACHE_RATELIMIT_TTL" default:"1m"`
	CacheTempTTL      time.Duration `env:"CACHE_TEMP_TTL" default:"10m"`

	// Resilience guard
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT" default:"2s"`
	CacheTimeout     time.Duration `env:"CACHE_TIMEOUT" default:"500ms"`
	RetryAttempts    int           `env:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseBackoff time.Duration `env:"RETRY_BASE_BACKOFF" default:"100ms"`
	BreakerThreshold uint          `env:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" default:"30s"`

	// Audit trail
	AuditDir           string `env:"AUDIT_DIR" default:"audit-logs"`
	AuditMaxFileSize   int64  `env:"AUDIT_MAX_FILE_SIZE" default:"10485760"` // 10 MiB
	AuditMaxArchives   int    `env:"AUDIT_MAX_ARCHIVES" default:"30"`
	AuditRetentionDays int    `env:"AUDIT_RETENTION_DAYS" default:"90"`
	AuditRingSize      int    `env:"AUDIT_RING_SIZE" default:"100"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.SurveyTotalPages < 1 {
		return fmt.Errorf("SURVEY_TOTAL_PAGES must be at least 1, got %d", cfg.SurveyTotalPages)
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", cfg.RetryAttempts)
	}
	if cfg.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", cfg.BreakerThreshold)
	}
	if cfg.SessionIdleExpiry <= 0 {
		return fmt.Errorf("SESSION_IDLE_EXPIRY must be positive, got %s", cfg.SessionIdleExpiry)
	}

	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
