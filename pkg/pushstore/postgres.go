package pushstore

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// PgxPool is the subset of *pgxpool.Pool the Postgres registry uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres is a push.Registry backed by the push_subscriptions table.
type Postgres struct {
	pool PgxPool
	now  func() time.Time
}

func NewPostgres(pool PgxPool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

const pgUpsert = `
INSERT INTO push_subscriptions (identity, channel, endpoint, p256dh, auth, token, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (identity, channel) DO UPDATE SET
    endpoint   = EXCLUDED.endpoint,
    p256dh     = EXCLUDED.p256dh,
    auth       = EXCLUDED.auth,
    token      = EXCLUDED.token,
    updated_at = EXCLUDED.updated_at`

func (s *Postgres) Upsert(ctx context.Context, identity string, channel push.Channel, cred push.Credential) error {
	identity, cred, err := push.ValidateRegistration(identity, channel, cred)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, pgUpsert,
		identity, string(channel),
		cred.Endpoint, cred.P256dh, cred.Auth, cred.Token,
		s.now().UTC(),
	); err != nil {
		return storeError("upsert", err)
	}
	return nil
}

const pgResolve = `
SELECT identity, channel, endpoint, p256dh, auth, token, created_at, updated_at
FROM push_subscriptions
WHERE $1 = '' OR identity = $1
ORDER BY identity, channel`

func (s *Postgres) Resolve(ctx context.Context, target string) ([]push.Subscription, error) {
	rows, err := s.pool.Query(ctx, pgResolve, strings.TrimSpace(target))
	if err != nil {
		return nil, storeError("resolve", err)
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (push.Subscription, error) {
		var (
			sub     push.Subscription
			channel string
		)
		err := row.Scan(
			&sub.Identity, &channel,
			&sub.Credential.Endpoint, &sub.Credential.P256dh, &sub.Credential.Auth, &sub.Credential.Token,
			&sub.CreatedAt, &sub.UpdatedAt,
		)
		sub.Channel = push.Channel(channel)
		return sub, err
	})
	if err != nil {
		return nil, storeError("resolve", err)
	}
	return subs, nil
}

func (s *Postgres) Remove(ctx context.Context, identity string, channel push.Channel) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE identity = $1 AND channel = $2`,
		strings.TrimSpace(identity), string(channel),
	); err != nil {
		return storeError("remove", err)
	}
	return nil
}

const pgPrune = `
DELETE FROM push_subscriptions s
USING unnest($1::text[], $2::text[]) AS k(identity, channel)
WHERE s.identity = k.identity AND s.channel = k.channel`

func (s *Postgres) PruneInvalid(ctx context.Context, keys []push.Key) error {
	if len(keys) == 0 {
		return nil
	}

	identities := make([]string, len(keys))
	channels := make([]string, len(keys))
	for i, k := range keys {
		identities[i] = k.Identity
		channels[i] = string(k.Channel)
	}

	if _, err := s.pool.Exec(ctx, pgPrune, identities, channels); err != nil {
		return storeError("prune", err)
	}
	return nil
}
