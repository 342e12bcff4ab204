package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/pushkit/pkg/clientip"
	"github.com/dmitrymomot/pushkit/pkg/config"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
	"github.com/dmitrymomot/pushkit/pkg/requestid"
	"github.com/dmitrymomot/pushkit/pkg/telemetry"
	"github.com/dmitrymomot/pushkit/svc/pushapi"
)

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	envFile := fs.String("env-file", "", "dotenv file to load before the environment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var loadOpts []config.Option
	if *envFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFiles(*envFile))
	}
	var cfg appConfig
	if err := config.Load(&cfg, loadOpts...); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Error("tracing shutdown failed", logger.Error(err))
		}
	}()

	b := &backends{log: log}
	defer b.Close()

	app, err := build(ctx, cfg, b, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, app)
}

// build wires the registry, transports, dispatcher and router.
func build(ctx context.Context, cfg appConfig, b *backends, reg *prometheus.Registry) (http.Handler, error) {
	log := b.log

	registry, err := b.registry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	notificationLog, err := b.notificationLog(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("notification log: %w", err)
	}

	dispatcherOpts := cfg.Push.DispatcherOptions()
	dispatcherOpts = append(dispatcherOpts, push.WithDispatcherLogger(log.With(logger.Component("dispatcher"))))
	if notificationLog != nil {
		dispatcherOpts = append(dispatcherOpts, push.WithNotificationLog(notificationLog))
	}
	if cfg.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		dispatcherOpts = append(dispatcherOpts, push.WithObserver(push.NewMetrics(cfg.MetricsNamespace, reg)))
	}

	var apiOpts []pushapi.Option
	web, err := push.NewWebPushTransport(cfg.Push.WebPush, append(cfg.Push.WebPushOptions(),
		push.WithWebPushLogger(log.With(logger.Component("webpush"))))...)
	switch {
	case err == nil:
		dispatcherOpts = append(dispatcherOpts, push.WithTransport(push.ChannelWeb, web))
		apiOpts = append(apiOpts, pushapi.WithVAPIDPublicKey(web.PublicKey()))
	case errors.Is(err, push.ErrChannelUnconfigured):
		log.WarnContext(ctx, "web push disabled, VAPID keys not configured")
		dispatcherOpts = append(dispatcherOpts, push.WithTransport(push.ChannelWeb, push.UnconfiguredTransport{Channel: push.ChannelWeb}))
	default:
		return nil, err
	}

	fcm, err := push.NewFCMTransport(ctx, cfg.Push.FCM, push.WithFCMLogger(log.With(logger.Component("fcm"))))
	switch {
	case err == nil:
		dispatcherOpts = append(dispatcherOpts, push.WithTransport(push.ChannelFCM, fcm))
	case errors.Is(err, push.ErrChannelUnconfigured):
		log.WarnContext(ctx, "fcm disabled, firebase credentials not configured")
		dispatcherOpts = append(dispatcherOpts, push.WithTransport(push.ChannelFCM, push.UnconfiguredTransport{Channel: push.ChannelFCM}))
	default:
		return nil, err
	}

	if cfg.RateLimit.Enabled {
		store, err := b.rateLimitStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		limiter, err := ratelimiter.New(store, cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		apiOpts = append(apiOpts, pushapi.WithRegisterMiddleware(ratelimiter.Middleware(limiter,
			ratelimiter.ByClientIP(clientip.New(cfg.TrustedIPHeaders...)),
			ratelimiter.WithMiddlewareLogger(log.With(logger.Component("ratelimiter"))),
		)))
	}

	dispatcher := push.NewDispatcher(registry, dispatcherOpts...)
	api := pushapi.New(registry, dispatcher, append(apiOpts, pushapi.WithLogger(log))...)

	r := chi.NewRouter()
	r.Use(requestid.Middleware, middleware.Recoverer)
	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(log, cfg.ReadinessTimeout, b.checks...))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Mount("/", api.Handle())

	log.InfoContext(ctx, "push service configured",
		slog.String("registry", cfg.Registry),
		slog.Any("log_sinks", cfg.LogSinks),
		slog.Bool("metrics", cfg.MetricsEnabled),
	)
	return r, nil
}
