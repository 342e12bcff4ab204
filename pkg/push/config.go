package push

import "time"

// Config is the environment driven configuration for the dispatch engine and
// both transports.
type Config struct {
	DeliverTimeout time.Duration `env:"PUSH_DELIVER_TIMEOUT" envDefault:"10s"`
	PruneTimeout   time.Duration `env:"PUSH_PRUNE_TIMEOUT" envDefault:"5s"`
	MaxConcurrency int           `env:"PUSH_MAX_CONCURRENCY" envDefault:"256"`

	CircuitFailureThreshold int           `env:"PUSH_CIRCUIT_FAILURES" envDefault:"5"`
	CircuitSuccessThreshold int           `env:"PUSH_CIRCUIT_SUCCESSES" envDefault:"2"`
	CircuitRecoveryTimeout  time.Duration `env:"PUSH_CIRCUIT_RECOVERY" envDefault:"30s"`

	WebPush WebPushConfig
	FCM     FCMConfig
}

// DispatcherOptions converts the engine settings into Dispatcher options.
func (c Config) DispatcherOptions() []Option {
	return []Option{
		WithDeliverTimeout(c.DeliverTimeout),
		WithPruneTimeout(c.PruneTimeout),
		WithMaxConcurrency(c.MaxConcurrency),
	}
}

// WebPushOptions converts the breaker settings into WebPushTransport options.
func (c Config) WebPushOptions() []WebPushOption {
	return []WebPushOption{
		WithWebPushCircuitBreaker(c.CircuitFailureThreshold, c.CircuitSuccessThreshold, c.CircuitRecoveryTimeout),
	}
}
