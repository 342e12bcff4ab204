package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	Enabled        bool          `env:"PUSH_RATELIMIT_ENABLED" envDefault:"true"`
	Capacity       int           `env:"PUSH_RATELIMIT_BURST" envDefault:"10"`
	RefillRate     int           `env:"PUSH_RATELIMIT_REFILL" envDefault:"1"`
	RefillInterval time.Duration `env:"PUSH_RATELIMIT_INTERVAL" envDefault:"6s"`
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval < time.Millisecond:
		return fmt.Errorf("%w: refill interval must be at least 1ms, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Decision is the outcome of one Allow call. Remaining is negative when the
// request was denied.
type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (d Decision) Allowed() bool {
	return d.Remaining >= 0
}

// RetryAfter returns how long a denied caller should wait, relative to now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Store persists bucket state. Take refills the bucket for now, then removes
// cost tokens only if enough are available. It returns the balance after the
// attempted take, which is negative on denial, and the next refill time.
type Store interface {
	Take(ctx context.Context, key string, cost int, cfg Config, now time.Time) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func New(store Store, cfg Config) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, cfg: cfg, now: time.Now}, nil
}

func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *Limiter) AllowN(ctx context.Context, key string, cost int) (Decision, error) {
	if cost <= 0 {
		return Decision{}, fmt.Errorf("%w: got %d", ErrInvalidCost, cost)
	}
	remaining, resetAt, err := l.store.Take(ctx, key, cost, l.cfg, l.now())
	if err != nil {
		return Decision{}, err
	}
	return Decision{Limit: l.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}
