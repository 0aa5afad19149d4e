package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Profile selects which route subset the instance exposes.
const (
	ProfileExternal = "external"
	ProfileInternal = "internal"
	ProfileAll      = "all"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Tan       TanConfig
	Session   SessionConfig
	Oracle    OracleConfig
	FakeDelay FakeDelayConfig
	Cleanup   CleanupConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name             string
	Env              string
	Host             string
	Port             string
	Version          string
	Profile          string
	BodySizeLimit    int
	RequestTimeoutMs int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer-token verification parameters for the
// privileged TeleTAN endpoint.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// TanConfig holds TAN and TeleTAN issuance parameters.
type TanConfig struct {
	ValidDays            int
	TeleValidHours       int
	TeleEventValidDays   int
	TeleChars            string
	TeleLength           int
	TeleRateLimitCount   int
	TeleRateLimitSeconds int
	TeleRateWarnPercent  int
}

// SessionConfig bounds per-session TAN issuance.
type SessionConfig struct {
	TanCounterMax int
}

// OracleConfig points at the test result server.
type OracleConfig struct {
	BaseURL   string
	TimeoutMs int
}

// FakeDelayConfig seeds the response latency equalizer.
type FakeDelayConfig struct {
	InitialMilliseconds int64
	MovingAverageSample int64
}

// CleanupConfig controls the entity retention worker.
type CleanupConfig struct {
	Enabled         bool
	Days            int
	IntervalSeconds int
	LockTTLSeconds  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:             getEnv("APP_NAME", "verification-service"),
			Env:              getEnv("APP_ENV", "development"),
			Host:             getEnv("APP_HOST", "0.0.0.0"),
			Port:             getEnv("APP_PORT", "8080"),
			Version:          getEnv("APP_VERSION", "dev"),
			Profile:          getEnv("APP_PROFILE", ProfileAll),
			BodySizeLimit:    getEnvAsInt("HTTP_BODY_SIZE_LIMIT", 10000),
			RequestTimeoutMs: getEnvAsInt("HTTP_REQUEST_TIMEOUT_MS", 30000),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			Enabled:   getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Tan: TanConfig{
			ValidDays:            getEnvAsInt("TAN_VALID_DAYS", 14),
			TeleValidHours:       getEnvAsInt("TELETAN_VALID_HOURS", 1),
			TeleEventValidDays:   getEnvAsInt("TELETAN_EVENT_VALID_DAYS", 2),
			TeleChars:            getEnv("TELETAN_CHARS", "23456789ABCDEFGHJKMNPQRSTUVWXYZ"),
			TeleLength:           getEnvAsInt("TELETAN_LENGTH", 9),
			TeleRateLimitCount:   getEnvAsInt("TELETAN_RATE_LIMIT_COUNT", 1000),
			TeleRateLimitSeconds: getEnvAsInt("TELETAN_RATE_LIMIT_SECONDS", 3600),
			TeleRateWarnPercent:  getEnvAsInt("TELETAN_RATE_WARN_PERCENT", 80),
		},
		Session: SessionConfig{
			TanCounterMax: getEnvAsInt("SESSION_TAN_COUNTER_MAX", 1),
		},
		Oracle: OracleConfig{
			BaseURL:   getEnv("RESULT_SERVER_URL", "http://localhost:8088"),
			TimeoutMs: getEnvAsInt("RESULT_SERVER_TIMEOUT_MS", 5000),
		},
		FakeDelay: FakeDelayConfig{
			InitialMilliseconds: int64(getEnvAsInt("FAKE_DELAY_INITIAL_MS", 10)),
			MovingAverageSample: int64(getEnvAsInt("FAKE_DELAY_SAMPLE_SIZE", 100)),
		},
		Cleanup: CleanupConfig{
			Enabled:         getEnvAsBool("CLEANUP_ENABLED", true),
			Days:            getEnvAsInt("CLEANUP_DAYS", 21),
			IntervalSeconds: getEnvAsInt("CLEANUP_INTERVAL_SECONDS", 3600),
			LockTTLSeconds:  getEnvAsInt("CLEANUP_LOCK_TTL_SECONDS", 300),
		},
	}

	if cfg.Tan.TeleLength <= 0 || cfg.Tan.TeleChars == "" {
		return nil, fmt.Errorf("invalid TeleTAN generation settings")
	}
	if cfg.FakeDelay.MovingAverageSample <= 0 {
		return nil, fmt.Errorf("FAKE_DELAY_SAMPLE_SIZE must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutMs) * time.Millisecond
}

// ServesExternal reports whether client-facing routes are exposed.
func (a AppConfig) ServesExternal() bool {
	return a.Profile == ProfileExternal || a.Profile == ProfileAll
}

// ServesInternal reports whether operator-facing routes are exposed.
func (a AppConfig) ServesInternal() bool {
	return a.Profile == ProfileInternal || a.Profile == ProfileAll
}

// Timeout returns the oracle request timeout.
func (o OracleConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// Window returns the TeleTAN rate limiting window.
func (t TanConfig) Window() time.Duration {
	return time.Duration(t.TeleRateLimitSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
