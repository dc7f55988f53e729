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

// Background job intervals
const SessionReaperInterval = time.Minute

// Default rate limiting
const (
	DefaultRateLimitPerMin = 120
	ProbeRateLimitPerMin   = 60
	WebhookRateLimitPerMin = 300
)

// Redis lock held while a consultation room is provisioned
const ProvisionLockTTL = 30 * time.Second

// Pre-flight network classification
const NetworkQualityThreshold = 50
