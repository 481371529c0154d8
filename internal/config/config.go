package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment. It is built once at
// startup and handed to constructors; nothing mutates it afterwards.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string

	StripeSecretKey     string
	StripeAccountID     string
	StripeBaseURL       string
	StripeAPIVersion    string
	StripeTimeout       time.Duration
	StripeMaxRetries    int
	StripeRetryBackoff  time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	MetadataSource      string
	RefundLookbackLimit int
	CardHistoryPageSize int
	CardHistoryMaxPages int
	RefundLockTTL       time.Duration

	RedisURL          string
	RateLimitStrategy string
	RateLimitMax      int
	RateLimitWindow   time.Duration

	AuthJWTSecret   string
	AuthJWTIssuer   string
	AuthJWTAudience string

	BodyLimitBytes         int64
	SecurityHeadersEnabled bool
	ShutdownTimeout        time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8001"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StripeSecretKey:     strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeAccountID:     strings.TrimSpace(k.String("STRIPE_ACCOUNT_ID")),
		StripeBaseURL:       valueOrDefault(k.String("STRIPE_BASE_URL"), "https://api.stripe.com"),
		StripeAPIVersion:    valueOrDefault(k.String("STRIPE_API_VERSION"), "2022-08-01"),
		StripeTimeout:       parseDuration(k.String("STRIPE_TIMEOUT"), "30s"),
		StripeMaxRetries:    parseInt(k.String("STRIPE_MAX_RETRIES"), 1),
		StripeRetryBackoff:  parseDuration(k.String("STRIPE_RETRY_BACKOFF"), "500ms"),
		BreakerMinRequests:  parseInt(k.String("STRIPE_BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("STRIPE_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("STRIPE_BREAKER_OPEN_FOR"), "30s"),

		MetadataSource:      valueOrDefault(k.String("PAYMENT_METADATA_SOURCE"), "DD"),
		RefundLookbackLimit: parseInt(k.String("REFUND_LOOKBACK_LIMIT"), 10),
		CardHistoryPageSize: parseInt(k.String("CARD_HISTORY_PAGE_SIZE"), 100),
		CardHistoryMaxPages: parseInt(k.String("CARD_HISTORY_MAX_PAGES"), 5),
		RefundLockTTL:       parseDuration(k.String("REFUND_LOCK_TTL"), "1m"),

		RedisURL:          strings.TrimSpace(k.String("REDIS_URL")),
		RateLimitStrategy: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		RateLimitMax:      parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitWindow:   parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),

		AuthJWTSecret:   strings.TrimSpace(k.String("AUTH_JWT_SECRET")),
		AuthJWTIssuer:   strings.TrimSpace(k.String("AUTH_JWT_ISSUER")),
		AuthJWTAudience: strings.TrimSpace(k.String("AUTH_JWT_AUDIENCE")),

		BodyLimitBytes:         int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeadersEnabled: parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		ShutdownTimeout:        parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
	}

	if cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.RefundLookbackLimit <= 0 {
		return nil, errors.New("REFUND_LOOKBACK_LIMIT must be positive")
	}
	if cfg.CardHistoryPageSize <= 0 || cfg.CardHistoryPageSize > 100 {
		return nil, errors.New("CARD_HISTORY_PAGE_SIZE must be between 1 and 100")
	}
	if cfg.CardHistoryMaxPages <= 0 {
		return nil, errors.New("CARD_HISTORY_MAX_PAGES must be positive")
	}
	switch cfg.RateLimitStrategy {
	case "sliding", "fixed", "off":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY %q must be sliding, fixed or off", cfg.RateLimitStrategy)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8001"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RateLimitEnabled reports whether requests are rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitStrategy != "off" && c.RateLimitMax > 0
}

// AuthEnabled reports whether callers must present a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
