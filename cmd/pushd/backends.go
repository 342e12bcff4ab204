package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/pushkit/pkg/config"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/mongo"
	"github.com/dmitrymomot/pushkit/pkg/pg"
	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/pushlog"
	"github.com/dmitrymomot/pushkit/pkg/pushstore"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
	"github.com/dmitrymomot/pushkit/pkg/redis"
)

var (
	errUnknownDriver = errors.New("unknown registry driver")
	errUnknownSink   = errors.New("unknown notification log sink")
	errUnknownStore  = errors.New("unknown rate limit store")
)

// backends opens shared connections on first use and closes them in reverse order.
type backends struct {
	log     *slog.Logger
	redis   *goredis.Client
	pgPool  *pgxpool.Pool
	mongoDB *mongodrv.Database
	checks  []httpserver.Check
	closers []func()
}

func (b *backends) Close() {
	for _, fn := range slices.Backward(b.closers) {
		fn()
	}
	b.closers = nil
}

func (b *backends) redisClient(ctx context.Context) (*goredis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	client, err := redis.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.closers = append(b.closers, func() { _ = client.Close() })
	b.checks = append(b.checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)})
	return client, nil
}

func (b *backends) postgres(ctx context.Context) (*pgxpool.Pool, pg.Config, error) {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, cfg, fmt.Errorf("postgres config: %w", err)
	}
	if b.pgPool != nil {
		return b.pgPool, cfg, nil
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	b.pgPool = pool
	b.closers = append(b.closers, pool.Close)
	b.checks = append(b.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
	return pool, cfg, nil
}

func (b *backends) mongo(ctx context.Context) (*mongodrv.Database, error) {
	if b.mongoDB != nil {
		return b.mongoDB, nil
	}
	var cfg mongo.Config
	if err := config.Load(&cfg); err != nil {
		return nil, fmt.Errorf("mongo config: %w", err)
	}
	db, err := mongo.NewWithDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.mongoDB = db
	b.closers = append(b.closers, func() { _ = db.Client().Disconnect(context.Background()) })
	b.checks = append(b.checks, httpserver.Check{Name: "mongo", Probe: mongo.Healthcheck(db.Client())})
	return db, nil
}

// registry builds the subscription store selected by cfg.Registry.
func (b *backends) registry(ctx context.Context, cfg appConfig) (push.Registry, error) {
	switch strings.ToLower(cfg.Registry) {
	case driverMemory, "":
		return push.NewMemoryRegistry(), nil

	case driverSQLite:
		store, err := pushstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.checks = append(b.checks, httpserver.Check{Name: "sqlite", Probe: store.Healthcheck})
		return store, nil

	case driverPostgres:
		pool, pgCfg, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, pushstore.Migrations(), pgCfg, b.log); err != nil {
			return nil, err
		}
		return pushstore.NewPostgres(pool), nil

	case driverRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return pushstore.NewRedis(client, pushstore.WithRedisPrefix(cfg.RedisPrefix)), nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, cfg.Registry)
	}
}

// notificationLog builds the configured log sinks. Nil means logging is off.
func (b *backends) notificationLog(ctx context.Context, cfg appConfig) (push.NotificationLog, error) {
	var sinks []push.NotificationLog
	for _, name := range cfg.LogSinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue

		case sinkMemory:
			sinks = append(sinks, push.NewMemoryLog(cfg.LogMemorySize))

		case sinkRedis:
			client, err := b.redisClient(ctx)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, pushlog.NewRedisStream(client,
				pushlog.WithStream(cfg.LogStream),
				pushlog.WithMaxLen(cfg.LogStreamLen),
			))

		case sinkMongo:
			db, err := b.mongo(ctx)
			if err != nil {
				return nil, err
			}
			sink := pushlog.NewMongo(db, cfg.LogCollection)
			if err := sink.EnsureIndexes(ctx, cfg.LogTTL); err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)

		default:
			return nil, fmt.Errorf("%w: %q", errUnknownSink, name)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return push.NewMultiLog(sinks, push.WithMultiLogLogger(b.log.With(logger.Component("notification_log")))), nil
	}
}

// rateLimitStore builds the bucket store selected by cfg.RateLimitStore.
func (b *backends) rateLimitStore(ctx context.Context, cfg appConfig) (ratelimiter.Store, error) {
	switch strings.ToLower(cfg.RateLimitStore) {
	case "memory", "":
		store := ratelimiter.NewMemoryStore()
		b.closers = append(b.closers, store.Close)
		return store, nil
	case "redis":
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return ratelimiter.NewRedisStore(client, cfg.RedisPrefix+":ratelimit"), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStore, cfg.RateLimitStore)
	}
}
