package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	LockMemory   = "memory"
	LockPostgres = "postgres"
	LockRedis    = "redis"
)

type Config struct {
	// Server configuration
	Environment string
	Port        int
	MetricsPort int

	// Storage configuration
	StoreDriver     string
	DatabaseURL     string
	SQLitePath      string
	RunMigrations   bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Position lock configuration
	LockBackend      string
	LockPoolSize     int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	LockTTL          time.Duration
	LockPollInterval time.Duration
	VerifyInvariant  bool

	// Authentication & Authorization
	JWTSecret string

	// TLS Configuration
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	// Observability
	OTLPEndpoint string
	LogLevel     string
	LogFormat    string // json or console

	// Graceful Shutdown
	ShutdownTimeout time.Duration

	// Feature Flags
	EnableMetrics    bool
	EnableTracing    bool
	EnableReflection bool

	// Timeouts
	RequestTimeout  time.Duration
	DatabaseTimeout time.Duration
}

func Load() (*Config, error) {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	cfg := &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnvAsInt("PORT", 8080),
		MetricsPort: getEnvAsInt("METRICS_PORT", 9090),

		// Storage
		StoreDriver:     getEnv("STORE_DRIVER", StorePostgres),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", "./ordinal.db"),
		RunMigrations:   getEnvAsBool("RUN_MIGRATIONS", true),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),

		// Position lock
		LockBackend:      getEnv("LOCK_BACKEND", LockPostgres),
		LockPoolSize:     getEnvAsInt("LOCK_POOL_SIZE", 10),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		LockTTL:          getEnvAsDuration("LOCK_TTL", 30*time.Second),
		LockPollInterval: getEnvAsDuration("LOCK_POLL_INTERVAL", 25*time.Millisecond),
		VerifyInvariant:  getEnvAsBool("VERIFY_INVARIANT", true),

		// Auth
		JWTSecret: getEnv("JWT_SECRET", ""),

		// TLS
		TLSEnabled:  getEnvAsBool("TLS_ENABLED", false),
		TLSCertFile: getEnv("TLS_CERT_FILE", "/etc/tls/tls.crt"),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", "/etc/tls/tls.key"),

		// Observability
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Feature Flags
		EnableMetrics:    getEnvAsBool("ENABLE_METRICS", true),
		EnableTracing:    getEnvAsBool("ENABLE_TRACING", false),
		EnableReflection: getEnvAsBool("ENABLE_REFLECTION", false),

		// Timeouts
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseTimeout: getEnvAsDuration("DATABASE_TIMEOUT", 10*time.Second),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store driver: %s (valid: postgres, sqlite, memory)", c.StoreDriver)
	}

	switch c.LockBackend {
	case LockPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres lock backend")
		}
		if c.LockPoolSize < 1 {
			return fmt.Errorf("LOCK_POOL_SIZE must be positive")
		}
	case LockRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis lock backend")
		}
		if c.LockTTL <= 0 || c.LockPollInterval <= 0 {
			return fmt.Errorf("LOCK_TTL and LOCK_POLL_INTERVAL must be positive")
		}
	case LockMemory:
	default:
		return fmt.Errorf("invalid lock backend: %s (valid: postgres, redis, memory)", c.LockBackend)
	}

	// An in-process lock only serializes a single server process.
	if c.IsProduction() && c.LockBackend == LockMemory && c.StoreDriver == StorePostgres {
		return fmt.Errorf("LOCK_BACKEND=memory is not allowed with a shared postgres store in production")
	}

	// JWT secret is required in production
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	// TLS files must exist if TLS is enabled
	if c.TLSEnabled {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled")
		}
		if _, err := os.Stat(c.TLSCertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", c.TLSCertFile)
		}
		if _, err := os.Stat(c.TLSKeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", c.TLSKeyFile)
		}
	}

	// Port validation
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}

	// Connection pool validation
	if c.MaxOpenConns < c.MaxIdleConns {
		return fmt.Errorf("max_open_conns (%d) must be >= max_idle_conns (%d)",
			c.MaxOpenConns, c.MaxIdleConns)
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Log format validation
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.LogFormat)
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	RunMigrations   bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Timeout         time.Duration
}

// PingTimeout bounds the initial connectivity check.
func (d DatabaseConfig) PingTimeout() time.Duration {
	if d.Timeout <= 0 {
		return 10 * time.Second
	}
	return d.Timeout
}

func (c *Config) GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          c.StoreDriver,
		URL:             c.DatabaseURL,
		SQLitePath:      c.SQLitePath,
		RunMigrations:   c.RunMigrations,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		Timeout:         c.DatabaseTimeout,
	}
}

type LockConfig struct {
	Backend         string
	DatabaseURL     string
	PoolSize        int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	TTL             time.Duration
	PollInterval    time.Duration
	VerifyInvariant bool
	Timeout         time.Duration
}

func (c *Config) GetLockConfig() LockConfig {
	return LockConfig{
		Backend:         c.LockBackend,
		DatabaseURL:     c.DatabaseURL,
		PoolSize:        c.LockPoolSize,
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		RedisDB:         c.RedisDB,
		TTL:             c.LockTTL,
		PollInterval:    c.LockPollInterval,
		VerifyInvariant: c.VerifyInvariant,
		Timeout:         c.DatabaseTimeout,
	}
}

type ServerConfig struct {
	Port             int
	MetricsPort      int
	TLSEnabled       bool
	TLSCertFile      string
	TLSKeyFile       string
	ShutdownTimeout  time.Duration
	RequestTimeout   time.Duration
	EnableReflection bool
}

func (c *Config) GetServerConfig() ServerConfig {
	return ServerConfig{
		Port:             c.Port,
		MetricsPort:      c.MetricsPort,
		TLSEnabled:       c.TLSEnabled,
		TLSCertFile:      c.TLSCertFile,
		TLSKeyFile:       c.TLSKeyFile,
		ShutdownTimeout:  c.ShutdownTimeout,
		RequestTimeout:   c.RequestTimeout,
		EnableReflection: c.EnableReflection || !c.IsProduction(),
	}
}

type ObservabilityConfig struct {
	Environment   string
	EnableMetrics bool
	EnableTracing bool
	OTLPEndpoint  string
	LogLevel      string
	LogFormat     string
}

func (c *Config) GetObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Environment:   c.Environment,
		EnableMetrics: c.EnableMetrics,
		EnableTracing: c.EnableTracing,
		OTLPEndpoint:  c.OTLPEndpoint,
		LogLevel:      c.LogLevel,
		LogFormat:     c.LogFormat,
	}
}
