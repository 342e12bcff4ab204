// Package pg bootstraps a PostgreSQL connection pool with pgx/v5 and applies
// goose migrations from an embedded filesystem.
//
//	cfg := pg.Config{ConnectionString: "postgres://localhost:5432/push?sslmode=disable"}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, slog.Default()); err != nil {
//	    return err
//	}
//
// Healthcheck returns a probe suitable for httpserver readiness checks.
package pg
