package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// CronSecret authenticates the external scheduler on /jobs endpoints.
	// Empty disables the check outside of production.
	CronSecret string `env:"CRON_SECRET"`

	TelemetryBaseURL       string `env:"TELEMETRY_BASE_URL"`
	TelemetryTokenURL      string `env:"TELEMETRY_TOKEN_URL"`
	TelemetryOrgID         string `env:"TELEMETRY_ORG_ID"`
	TelemetryRefreshToken  string `env:"TELEMETRY_REFRESH_TOKEN"`
	TelemetryWindowMinutes int    `env:"TELEMETRY_WINDOW_MINUTES" envDefault:"10"`

	// TelemetryRealtime switches the active-user definition from tracked
	// time in the window to the provider's online flag.
	TelemetryRealtime bool `env:"TELEMETRY_REALTIME" envDefault:"false"`

	RunBudgetSeconds int `env:"RUN_BUDGET_SECONDS" envDefault:"45"`

	// InternalScheduler enables the in-process ticker fallback for
	// deployments without an external cron.
	InternalScheduler   bool `env:"INTERNAL_SCHEDULER" envDefault:"false"`
	SyncIntervalMinutes int  `env:"SYNC_INTERVAL_MINUTES" envDefault:"5"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) TelemetryWindow() time.Duration {
	return time.Duration(c.TelemetryWindowMinutes) * time.Minute
}

func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.RunBudgetSeconds) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

func (c *Config) TelemetryConfigured() bool {
	return c.TelemetryBaseURL != "" && c.TelemetryTokenURL != "" && c.TelemetryOrgID != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.RunBudgetSeconds <= 0 {
		return fmt.Errorf("RUN_BUDGET_SECONDS must be positive")
	}
	if c.TelemetryWindowMinutes <= 0 {
		return fmt.Errorf("TELEMETRY_WINDOW_MINUTES must be positive")
	}

	if isProduction {
		if c.CronSecret == "" {
			return fmt.Errorf("CRON_SECRET is required in production (generate with: openssl rand -hex 32)")
		}
		if len(c.CronSecret) < 32 {
			return fmt.Errorf("CRON_SECRET must be at least 32 characters in production")
		}
		if c.TelemetryConfigured() && c.TelemetryRefreshToken == "" {
			log.Warn().Msg("TELEMETRY_REFRESH_TOKEN is empty: telemetry sync cannot bootstrap a credential")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
