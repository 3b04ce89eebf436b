package constants

import "time"

// Default timings for the console and the bao-mount binary.
const (
	DefaultRequestTimeout     = 10 * time.Second
	DefaultConnectionTimeout  = 5 * time.Second
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultSweepSchedule      = "*/5 * * * *"

	HealthPollInterval = 2 * time.Second
	HealthWaitTimeout  = 2 * time.Minute
)

// Default client-side limits for calls to OpenBao.
const (
	DefaultRateLimitQPS   = 2.0
	DefaultRateLimitBurst = 4

	DefaultCircuitBreakerFailureThreshold = 5
	DefaultCircuitBreakerOpenDuration     = 30 * time.Second
)

// DefaultMaxDrafts caps the drafts the HTTP surface keeps open at once.
const DefaultMaxDrafts = 256
