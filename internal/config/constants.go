package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Tokens within this slack of expiry are refreshed before use.
const TokenExpirySlack = 60 * time.Second

// Outbound telemetry lookups run in bounded batches to stay under the
// provider's rate limits.
const TelemetryLookupBatchSize = 8

// Trigger endpoints are rate limited per route.
const TriggerRateLimitPerMin = 12

// Last-run summaries are cached in redis for the status endpoint.
const LastRunTTL = 24 * time.Hour
