// Package pushstore provides durable push.Registry implementations.
//
//   - Postgres: pgx pool, schema managed by goose migrations embedded in Migrations
//   - SQLite: modernc.org/sqlite for single-file deployments, schema created on open
//   - Redis: one hash per identity plus an identity index set, updated by Lua scripts
//
// Every implementation validates input with push.ValidateRegistration before
// touching storage and treats Remove and PruneInvalid as idempotent deletes,
// so concurrent prunes of the same keys are safe without extra locking.
package pushstore
