package pushapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

// Sender is the dispatch side of the API, satisfied by *push.Dispatcher.
type Sender interface {
	Send(ctx context.Context, req push.NotificationRequest) (push.DispatchResult, error)
}

type Service struct {
	registry       push.Registry
	sender         Sender
	vapidPublicKey string
	logger         *slog.Logger

	registerMiddleware []func(http.Handler) http.Handler
}

func New(registry push.Registry, sender Sender, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		sender:   sender,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("pushapi"))
	return s
}

// Handle returns the router serving the /push routes.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Route("/push", func(r chi.Router) {
		r.With(s.registerMiddleware...).Post("/register", s.register)
		r.Post("/unregister", s.unregister)
		r.Post("/send", s.send)
		r.Get("/vapid-key", s.vapidKey)
	})
	return r
}

func (s *Service) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}
	channel, cred, err := req.resolve()
	if err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}
	if err := s.registry.Upsert(ctx, req.identity(), channel, cred); err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}

	s.logger.InfoContext(ctx, "subscription registered",
		logger.Identity(req.identity()),
		logger.Channel(channel),
	)
	writeJSON(w, http.StatusOK, statusResponse{Status: "registered"})
}

func (s *Service) unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req unregisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}
	identity, channel, err := req.resolve()
	if err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}
	if err := s.registry.Remove(ctx, identity, channel); err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}

	s.logger.InfoContext(ctx, "subscription removed", logger.Identity(identity), logger.Channel(channel))
	writeJSON(w, http.StatusOK, statusResponse{Status: "removed"})
}

func (s *Service) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}
	notification, err := req.notification()
	if err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}

	result, err := s.sender.Send(ctx, notification)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.WarnContext(ctx, "dispatch interrupted",
			logger.Count("targeted", result.TotalTargeted),
			logger.Count("succeeded", result.Succeeded),
			logger.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "dispatch_interrupted", "dispatch interrupted before completion", nil)
		return
	}
	if err != nil {
		writeFailure(ctx, s.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) vapidKey(w http.ResponseWriter, r *http.Request) {
	if s.vapidPublicKey == "" {
		writeError(w, http.StatusNotFound, "channel_unconfigured", "web push is not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, vapidKeyResponse{PublicKey: s.vapidPublicKey})
}
