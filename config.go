package techmate

import (
	"errors"
	"time"
)

// Config is the full configuration tree for a [Client]. Build a Config once,
// hand it to [Builder.WithConfig], and treat it as immutable afterwards.
type Config struct {
	HTTP    HTTPConfig
	Gateway GatewayConfig
	Breaker BreakerConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig controls the outbound transport.
type HTTPConfig struct {
	// Timeout bounds every request including the refresh-and-retry sequence.
	Timeout time.Duration
	// UserAgent is sent on every request.
	UserAgent string
	// RequestIDHeader carries the per-request correlation ID; empty disables
	// the header entirely.
	RequestIDHeader string
}

/*
====================================
GATEWAY CONFIG
====================================
*/

// GatewayConfig controls credential attachment and the 401 recovery path.
type GatewayConfig struct {
	// RefreshPath is the token-refresh endpoint, relative to the base URL.
	RefreshPath string
	// ProactiveRefresh refreshes before dispatch when the access token's exp
	// claim is already in the past, saving the guaranteed 401 round trip.
	// Tokens without a readable exp claim are sent as-is.
	ProactiveRefresh bool
	// ExpirySkew widens the proactive expiry check to absorb clock drift
	// between client and server.
	ExpirySkew time.Duration
}

/*
====================================
BREAKER CONFIG
====================================
*/

// BreakerConfig wraps gateway dispatch in a circuit breaker. Off by default;
// a tripped breaker fails requests fast with [ErrRequestRejected] instead of
// stacking timeouts against a dead backend.
type BreakerConfig struct {
	Enabled     bool
	MaxRequests uint32
	Interval    time.Duration
	OpenTimeout time.Duration
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold uint32
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			UserAgent:       "techmate-go",
			RequestIDHeader: "X-Request-ID",
		},
		Gateway: GatewayConfig{
			RefreshPath:      "/auth/token/refresh/",
			ProactiveRefresh: false,
			ExpirySkew:       10 * time.Second,
		},
		Breaker: BreakerConfig{
			Enabled:          false,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			OpenTimeout:      30 * time.Second,
			FailureThreshold: 5,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return errors.New("HTTP.Timeout must be positive")
	}
	if c.Gateway.RefreshPath == "" {
		return errors.New("Gateway.RefreshPath must not be empty")
	}
	if c.Gateway.ExpirySkew < 0 {
		return errors.New("Gateway.ExpirySkew must not be negative")
	}
	if c.Breaker.Enabled && c.Breaker.FailureThreshold == 0 {
		return errors.New("Breaker.FailureThreshold must be positive when the breaker is enabled")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}
