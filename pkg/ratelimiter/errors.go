package ratelimiter

import "errors"

var (
	ErrInvalidConfig    = errors.New("ratelimiter: invalid configuration")
	ErrInvalidCost      = errors.New("ratelimiter: cost must be positive")
	ErrStoreUnavailable = errors.New("ratelimiter: store unavailable")
)
