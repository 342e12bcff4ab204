package pushstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS push_subscriptions (
    identity   TEXT    NOT NULL,
    channel    TEXT    NOT NULL CHECK (channel IN ('web', 'fcm')),
    endpoint   TEXT    NOT NULL DEFAULT '',
    p256dh     TEXT    NOT NULL DEFAULT '',
    auth       TEXT    NOT NULL DEFAULT '',
    token      TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (identity, channel)
);
`

// SQLite is a push.Registry stored in a single SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. SQLite serializes writers, so the pool is limited to one connection.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLite(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open database and applies the schema.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Healthcheck pings the underlying database.
func (s *SQLite) Healthcheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

const sqliteUpsert = `
INSERT INTO push_subscriptions (identity, channel, endpoint, p256dh, auth, token, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (identity, channel) DO UPDATE SET
    endpoint   = excluded.endpoint,
    p256dh     = excluded.p256dh,
    auth       = excluded.auth,
    token      = excluded.token,
    updated_at = excluded.updated_at`

func (s *SQLite) Upsert(ctx context.Context, identity string, channel push.Channel, cred push.Credential) error {
	identity, cred, err := push.ValidateRegistration(identity, channel, cred)
	if err != nil {
		return err
	}

	now := s.now().UnixNano()
	if _, err := s.db.ExecContext(ctx, sqliteUpsert,
		identity, string(channel),
		cred.Endpoint, cred.P256dh, cred.Auth, cred.Token,
		now, now,
	); err != nil {
		return storeError("upsert", err)
	}
	return nil
}

const sqliteResolve = `
SELECT identity, channel, endpoint, p256dh, auth, token, created_at, updated_at
FROM push_subscriptions
WHERE ?1 = '' OR identity = ?1
ORDER BY identity, channel`

func (s *SQLite) Resolve(ctx context.Context, target string) ([]push.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, sqliteResolve, strings.TrimSpace(target))
	if err != nil {
		return nil, storeError("resolve", err)
	}
	defer rows.Close()

	subs := []push.Subscription{}
	for rows.Next() {
		var (
			sub                  push.Subscription
			channel              string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(
			&sub.Identity, &channel,
			&sub.Credential.Endpoint, &sub.Credential.P256dh, &sub.Credential.Auth, &sub.Credential.Token,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, storeError("resolve", err)
		}
		sub.Channel = push.Channel(channel)
		sub.CreatedAt = time.Unix(0, createdAt).UTC()
		sub.UpdatedAt = time.Unix(0, updatedAt).UTC()
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("resolve", err)
	}
	return subs, nil
}

func (s *SQLite) Remove(ctx context.Context, identity string, channel push.Channel) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE identity = ? AND channel = ?`,
		strings.TrimSpace(identity), string(channel),
	); err != nil {
		return storeError("remove", err)
	}
	return nil
}

// PruneInvalid deletes every key inside one transaction.
func (s *SQLite) PruneInvalid(ctx context.Context, keys []push.Key) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("prune", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM push_subscriptions WHERE identity = ? AND channel = ?`)
	if err != nil {
		return storeError("prune", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.Identity, string(k.Channel)); err != nil {
			return storeError("prune", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("prune", err)
	}
	return nil
}
