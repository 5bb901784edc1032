package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migrationFile struct {
	version int
	name    string
}

// Migrate applies all pending .up.sql migrations in version order, tracking
// progress in a schema_migrations table.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ensureVersionTable(ctx, pool); err != nil {
		return err
	}

	current, err := currentVersion(ctx, pool)
	if err != nil {
		return err
	}

	pending, err := listMigrations(".up.sql", func(v int) bool { return v > current })
	if err != nil {
		return err
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].version < pending[b].version })

	for _, m := range pending {
		if err := applyMigration(ctx, pool, m, true); err != nil {
			return err
		}
		log.Info().Int("version", m.version).Str("file", m.name).Msg("applied migration")
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration using its
// .down.sql counterpart.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ensureVersionTable(ctx, pool); err != nil {
		return err
	}

	current, err := currentVersion(ctx, pool)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no applied migrations to roll back")
	}

	downs, err := listMigrations(".down.sql", func(v int) bool { return v == current })
	if err != nil {
		return err
	}
	if len(downs) == 0 {
		return fmt.Errorf("no down migration for version %d", current)
	}

	if err := applyMigration(ctx, pool, downs[0], false); err != nil {
		return err
	}
	log.Info().Int("version", current).Str("file", downs[0].name).Msg("rolled back migration")
	return nil
}

func ensureVersionTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func currentVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var v int
	err := pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

func listMigrations(suffix string, keep func(version int) bool) ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []migrationFile
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%03d_", &version); err != nil {
			continue
		}
		if keep(version) {
			out = append(out, migrationFile{version: version, name: entry.Name()})
		}
	}
	return out, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m migrationFile, up bool) error {
	sql, err := migrationsFS.ReadFile("migrations/" + m.name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.name, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for migration %d: %w", m.version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %d: %w", m.version, err)
	}

	if up {
		_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version)
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.version)
	}
	if err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}

	return tx.Commit(ctx)
}
