package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	SessionSecret  string
	SessionTTL     time.Duration
	CartTTL        time.Duration
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	CommerceAPIBaseURL     string
	CommerceAPITimeout     time.Duration
	CommerceAPIMaxAttempts int
	RetryBase              time.Duration
	RetryJitterPercent     float64
	CircuitMinRequests     int
	CircuitFailureRatio    float64
	CircuitOpenFor         time.Duration

	PaymentReturnBaseURL string
	PaymentRedirectDelay time.Duration
	SubmitLockTTL        time.Duration
	CartLockTTL          time.Duration
	LockRetryBackoff     time.Duration
	IdempotencyTTL       time.Duration

	RateLimitVoucherPerMin  int64
	RateLimitCheckoutPerMin int64
	AnalyticsCacheTTL       time.Duration

	TaskQueue          string
	TaskCancelMaxRetry int
	WorkerConcurrency  int

	LedgerEnabled bool

	ObsLogFormat       string
	ObsLogLevel        string
	ObsMetricsEnabled  bool
	ObsMetricsPath     string
	ObsMetricsBuckets  string
	ObsTracingEnabled  bool
	ObsTracingExporter string
	ObsTracingEndpoint string
	ObsTracingRatio    float64
	ObsServiceName     string
	ObsMetricsNS       string
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
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
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SessionSecret:  k.String("SESSION_SECRET"),
		SessionTTL:     parseDuration(k.String("SESSION_TTL"), "168h"),
		CartTTL:        parseDuration(k.String("CART_TTL"), "720h"),
		CookieName:     valueOrDefault(k.String("SESSION_COOKIE_NAME"), "sid"),
		CookieDomain:   strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:   parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite: parseSameSite(k.String("COOKIE_SAMESITE")),

		CommerceAPIBaseURL:     strings.TrimSpace(k.String("COMMERCE_API_BASE_URL")),
		CommerceAPITimeout:     parseDuration(k.String("COMMERCE_API_TIMEOUT"), "8s"),
		CommerceAPIMaxAttempts: parseInt(k.String("COMMERCE_API_MAX_ATTEMPTS"), 2),
		RetryBase:              parseDuration(k.String("COMMERCE_API_RETRY_BASE"), "150ms"),
		RetryJitterPercent:     parseFloat(k.String("COMMERCE_API_RETRY_JITTER"), 0.2),
		CircuitMinRequests:     parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio:    parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:         parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		PaymentReturnBaseURL: strings.TrimSpace(k.String("PAYMENT_RETURN_BASE_URL")),
		PaymentRedirectDelay: parseDuration(k.String("PAYMENT_REDIRECT_DELAY"), "3s"),
		SubmitLockTTL:        parseDuration(k.String("SUBMIT_LOCK_TTL"), "30s"),
		CartLockTTL:          parseDuration(k.String("CART_LOCK_TTL"), "10s"),
		LockRetryBackoff:     parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		RateLimitVoucherPerMin:  int64(parseInt(k.String("RATE_LIMIT_VOUCHER_PER_MIN"), 20)),
		RateLimitCheckoutPerMin: int64(parseInt(k.String("RATE_LIMIT_CHECKOUT_PER_MIN"), 10)),
		AnalyticsCacheTTL:       parseDuration(k.String("ANALYTICS_CACHE_TTL"), "60s"),

		TaskQueue:          valueOrDefault(k.String("TASK_QUEUE"), "default"),
		TaskCancelMaxRetry: parseInt(k.String("TASK_CANCEL_MAX_RETRY"), 8),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 5),

		ObsLogFormat:       valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		ObsLogLevel:        valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		ObsMetricsEnabled:  parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		ObsMetricsPath:     valueOrDefault(k.String("OBS_METRICS_PATH"), "/metrics"),
		ObsMetricsBuckets:  k.String("OBS_METRICS_BUCKETS"),
		ObsTracingEnabled:  parseBool(k.String("OBS_TRACING_ENABLED")),
		ObsTracingExporter: valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		ObsTracingEndpoint: strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
		ObsTracingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		ObsServiceName:     valueOrDefault(k.String("OBS_SERVICE_NAME"), "mamcung-storefront"),
		ObsMetricsNS:       valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "mamcung"),
		PprofEnabled:       parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}
	cfg.LedgerEnabled = cfg.DatabaseURL != "" && parseBoolDefault(k.String("LEDGER_ENABLED"), true)

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}
	if cfg.CommerceAPIBaseURL == "" {
		return nil, errors.New("COMMERCE_API_BASE_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
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

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
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
