package main

import (
	"time"

	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
	"github.com/dmitrymomot/pushkit/pkg/telemetry"
)

// Registry drivers.
const (
	driverMemory   = "memory"
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverRedis    = "redis"
)

// Notification log sinks.
const (
	sinkMemory = "memory"
	sinkRedis  = "redis"
	sinkMongo  = "mongo"
)

// appConfig holds process settings. Backend connection settings (pg, redis,
// mongo) are loaded only when the selected driver or sink needs them.
type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"pushd"`

	Registry    string `env:"PUSH_REGISTRY" envDefault:"memory"`
	SQLitePath  string `env:"PUSH_SQLITE_PATH" envDefault:"pushd.db"`
	RedisPrefix string `env:"PUSH_REDIS_PREFIX" envDefault:"push"`

	LogSinks      []string      `env:"PUSH_LOG_SINKS" envSeparator:","`
	LogMemorySize int           `env:"PUSH_LOG_MEMORY_SIZE" envDefault:"100"`
	LogStream     string        `env:"PUSH_LOG_STREAM" envDefault:"push:log"`
	LogStreamLen  int64         `env:"PUSH_LOG_STREAM_MAXLEN" envDefault:"10000"`
	LogCollection string        `env:"PUSH_LOG_COLLECTION" envDefault:"push_dispatches"`
	LogTTL        time.Duration `env:"PUSH_LOG_TTL" envDefault:"720h"`

	RateLimitStore   string   `env:"PUSH_RATELIMIT_STORE" envDefault:"memory"`
	TrustedIPHeaders []string `env:"TRUSTED_IP_HEADERS" envSeparator:","`

	MetricsEnabled   bool          `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"pushkit"`
	ReadinessTimeout time.Duration `env:"READINESS_TIMEOUT" envDefault:"3s"`

	Push      push.Config
	RateLimit ratelimiter.Config
	HTTP      httpserver.Config
	Telemetry telemetry.Config
}
