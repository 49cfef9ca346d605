// Package bootstrap assembles the logger, tracer, repository and position
// locker described by a Config. It is shared by the server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/config"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/lock"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/memory"
	infrapostgres "github.com/dmehra2102/Ordinal/internal/infrastructure/postgres"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/sqlite"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ServiceName    = "ordinal"
	ServiceVersion = "1.0.0"
)

// CloseFunc releases a resource opened during bootstrap.
type CloseFunc func() error

func noopClose() error { return nil }

// NewLogger builds a zap logger from the observability settings.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Environment == "production" || cfg.Environment == "prod" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = cfg.LogFormat

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// InitTracer installs a global OTLP tracer provider. When tracing is
// disabled the default no-op provider stays in place.
func InitTracer(ctx context.Context, cfg config.ObservabilityConfig) (func(context.Context) error, error) {
	if !cfg.EnableTracing {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
			semconv.ServiceVersionKey.String(ServiceVersion),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Migrate applies the schema migrations of the configured SQL store. The
// memory store has no schema.
func Migrate(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case config.StoreMemory:
		return nil
	case config.StorePostgres:
		return infrapostgres.Migrate(cfg.URL)
	case config.StoreSQLite:
		return sqlite.Migrate(cfg.SQLitePath)
	}
	return fmt.Errorf("unsupported store driver %q", cfg.Driver)
}

// OpenRepository opens the configured item store, running migrations first
// when enabled.
func OpenRepository(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (domain.Repository, CloseFunc, error) {
	if cfg.RunMigrations {
		if err := Migrate(cfg); err != nil {
			return nil, nil, err
		}
	}

	switch cfg.Driver {
	case config.StoreMemory:
		logger.Warn("using in-memory item store; data is lost on exit")
		return memory.NewStore(), noopClose, nil

	case config.StorePostgres:
		db, err := infrapostgres.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return infrapostgres.NewPostgresRepository(db, cfg), db.Close, nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath, cfg)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewSQLiteRepository(db, cfg), db.Close, nil
	}

	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}

// OpenLocker builds the configured position locker.
func OpenLocker(ctx context.Context, cfg config.LockConfig) (domain.PositionLocker, CloseFunc, error) {
	switch cfg.Backend {
	case config.LockMemory:
		return lock.NewMutexLocker(), noopClose, nil

	case config.LockPostgres:
		// A pool of its own: lock holders keep their connection while they
		// wait for item queries on the main pool.
		db, err := infrapostgres.Open(ctx, config.DatabaseConfig{
			URL:          cfg.DatabaseURL,
			MaxOpenConns: cfg.PoolSize,
			MaxIdleConns: cfg.PoolSize,
			Timeout:      cfg.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open lock pool: %w", err)
		}
		return lock.NewAdvisoryLocker(db), db.Close, nil

	case config.LockRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		return lock.NewRedisLocker(client, lock.RedisOptions{
			Prefix:       ServiceName + ":",
			TTL:          cfg.TTL,
			PollInterval: cfg.PollInterval,
		}), client.Close, nil
	}

	return nil, nil, fmt.Errorf("unsupported lock backend %q", cfg.Backend)
}

// Stack is a ready coordinator together with what it was built from.
type Stack struct {
	Repository  domain.Repository
	Locker      domain.PositionLocker
	Coordinator *ordering.Coordinator
	closers     []CloseFunc
}

// Close releases resources in reverse order of acquisition.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewStack opens the repository and locker and wires the coordinator.
func NewStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stack, error) {
	repo, closeRepo, err := OpenRepository(ctx, cfg.GetDatabaseConfig(), logger)
	if err != nil {
		return nil, err
	}

	lockCfg := cfg.GetLockConfig()
	locker, closeLocker, err := OpenLocker(ctx, lockCfg)
	if err != nil {
		closeRepo()
		return nil, err
	}

	coord := ordering.New(repo, locker, logger.Named("ordering"),
		ordering.WithLockBackend(lockCfg.Backend),
		ordering.WithInvariantCheck(lockCfg.VerifyInvariant),
	)

	return &Stack{
		Repository:  repo,
		Locker:      locker,
		Coordinator: coord,
		closers:     []CloseFunc{closeRepo, closeLocker},
	}, nil
}
