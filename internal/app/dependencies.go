// Package app builds the infrastructure shared by the storefront binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/checkout"
	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/config"
	"github.com/noah-isme/mamcung-storefront/internal/db"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/ratelimit"
	"github.com/noah-isme/mamcung-storefront/internal/resilience"
	"github.com/noah-isme/mamcung-storefront/internal/tasks"
)

// Dependencies enumerates the clients shared across modules.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Commerce     *commerce.Client
	Validator    *validator.Validate
	LimiterStore limiter.Store
	TaskClient   *asynq.Client
	Enqueuer     tasks.Enqueuer
	Ledger       *audit.Ledger
}

// Build connects to Redis, the optional ledger database and the commerce API.
// Close must be called once the caller is done.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: checkout.NewValidator(),
		Commerce:  NewCommerceClient(cfg, logger),
		Ledger:    &audit.Ledger{},
	}

	rdb, err := OpenRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	d.Redis = rdb

	store, err := ratelimit.NewRedisStore(rdb, "rl")
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	d.LimiterStore = store

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	d.TaskClient = asynq.NewClient(redisOpt)
	d.Enqueuer = tasks.Enqueuer{Client: d.TaskClient, Queue: cfg.TaskQueue, MaxRetry: cfg.TaskCancelMaxRetry}

	if cfg.DatabaseURL != "" {
		pool, err := OpenDatabase(ctx, cfg)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.DB = pool
		d.Ledger = &audit.Ledger{Store: audit.PGStore{Pool: pool}, Enabled: cfg.LedgerEnabled}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, payment ledger disabled")
	}
	return d, nil
}

// Close releases every client that was opened.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
}

// OpenRedis connects and instruments the Redis client.
func OpenRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.ObsMetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// OpenDatabase applies the ledger migrations and returns a traced pool.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ObsServiceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewCommerceClient builds the commerce API client on a traced transport
// behind the retrying, circuit-broken wrapper.
func NewCommerceClient(cfg *config.Config, logger zerolog.Logger) *commerce.Client {
	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
		WithTarget("commerce").
		WithLogger(logger)
	httpClient := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.CommerceAPIMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.CommerceAPITimeout,
	}
	return commerce.New(cfg.CommerceAPIBaseURL, httpClient)
}
