package pushapi

import (
	"log/slog"
	"net/http"
)

type Option func(*Service)

// WithVAPIDPublicKey enables GET /push/vapid-key. Without it the route answers 404.
func WithVAPIDPublicKey(key string) Option {
	return func(s *Service) {
		s.vapidPublicKey = key
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegisterMiddleware wraps POST /push/register, typically with a rate limiter.
func WithRegisterMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(s *Service) {
		s.registerMiddleware = append(s.registerMiddleware, mws...)
	}
}
