// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis backed stores, plus HTTP middleware that throttles by a request key.
//
// The push API uses it to cap how often one client address may register
// subscriptions:
//
//	limiter, err := ratelimiter.New(ratelimiter.NewMemoryStore(), cfg)
//	r.With(ratelimiter.Middleware(limiter, ratelimiter.ByClientIP(ips))).Post("/push/register", h)
//
// A bucket holds Capacity tokens and regains RefillRate tokens every
// RefillInterval. Denied requests do not consume tokens.
package ratelimiter
