package config

import (
	"fmt"
	"net/url"
	"time"

	envconfig "engage-notify/pkg/config"
)

// DefaultGatewayBaseURL is the hosted Engage instance.
const DefaultGatewayBaseURL = "https://engage.broodle.one"

// GatewayConfig holds connection settings for the Engage messaging gateway.
type GatewayConfig struct {
	// BaseURL of the Chatwoot-compatible API, without a trailing slash.
	// Default: "https://engage.broodle.one"
	BaseURL string

	// APIToken is sent as the api_access_token header.
	APIToken string

	// AccountID and InboxID address the WhatsApp inbox. Zero means
	// unconfigured; sends then fail with a configuration error.
	AccountID int64
	InboxID   int64

	// Timeout for a single HTTP request. Default: 30s
	Timeout time.Duration

	// RateLimitRPS caps outbound requests per second. Zero disables the
	// limiter. Default: 5
	RateLimitRPS   float64
	RateLimitBurst int

	// GETRetries is the number of in-process retries for idempotent reads.
	GETRetries int

	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig for gateway calls.
type CircuitBreakerConfig struct {
	// MaxRequests in half-open state.
	MaxRequests uint32

	// Interval for clearing failure counts.
	Interval time.Duration

	// Timeout before transitioning from open to half-open.
	Timeout time.Duration

	// FailureThreshold ratio to trip circuit (0.0 to 1.0).
	FailureThreshold float64

	// MinRequests before calculating failure ratio.
	MinRequests uint32
}

// LoadGatewayConfig reads ENGAGE_* variables. Missing credentials are not a
// load error: the service still starts and every send records the
// configuration problem in the delivery log.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		BaseURL:        envconfig.GetEnvString("ENGAGE_BASE_URL", DefaultGatewayBaseURL),
		APIToken:       envconfig.GetEnvString("ENGAGE_API_TOKEN", ""),
		AccountID:      envconfig.GetEnvInt64("ENGAGE_ACCOUNT_ID", 0),
		InboxID:        envconfig.GetEnvInt64("ENGAGE_INBOX_ID", 0),
		Timeout:        envconfig.GetEnvDuration("ENGAGE_TIMEOUT", 30*time.Second),
		RateLimitRPS:   envconfig.GetEnvFloat("ENGAGE_RATE_LIMIT_RPS", 5),
		RateLimitBurst: envconfig.GetEnvInt("ENGAGE_RATE_LIMIT_BURST", 5),
		GETRetries:     envconfig.GetEnvInt("ENGAGE_GET_RETRIES", 2),
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      uint32(envconfig.GetEnvInt("ENGAGE_CB_MAX_REQUESTS", 3)),
			Interval:         envconfig.GetEnvDuration("ENGAGE_CB_INTERVAL", time.Minute),
			Timeout:          envconfig.GetEnvDuration("ENGAGE_CB_TIMEOUT", 30*time.Second),
			FailureThreshold: 0.6,
			MinRequests:      5,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would make the client unusable. Credentials
// are checked per request instead.
func (c *GatewayConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ENGAGE_BASE_URL must be an absolute http(s) URL")
	}

	if err := envconfig.ValidatePositiveDuration(c.Timeout); err != nil {
		return fmt.Errorf("ENGAGE_TIMEOUT: %w", err)
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("ENGAGE_RATE_LIMIT_RPS must not be negative")
	}

	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("ENGAGE_RATE_LIMIT_BURST must be positive")
	}

	if c.GETRetries < 0 {
		return fmt.Errorf("ENGAGE_GET_RETRIES must not be negative")
	}

	if c.CircuitBreaker.MaxRequests == 0 {
		return fmt.Errorf("ENGAGE_CB_MAX_REQUESTS must be positive")
	}

	if err := envconfig.ValidatePositiveDuration(c.CircuitBreaker.Interval); err != nil {
		return fmt.Errorf("ENGAGE_CB_INTERVAL: %w", err)
	}

	if err := envconfig.ValidatePositiveDuration(c.CircuitBreaker.Timeout); err != nil {
		return fmt.Errorf("ENGAGE_CB_TIMEOUT: %w", err)
	}

	return nil
}

// Configured reports whether token, account and inbox are all set.
func (c *GatewayConfig) Configured() bool {
	return c.APIToken != "" && c.AccountID > 0 && c.InboxID > 0
}
