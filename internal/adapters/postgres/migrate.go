package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate applies embedded SQL migrations that have not run yet.
// Each file runs in its own transaction and is recorded in schema_migrations.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	return migrate(ctx, db, migrationFiles)
}

func migrate(ctx context.Context, db *sqlx.DB, files fs.FS) ([]string, error) {
	log := logger.Get().With("component", "migrations")

	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, errors.Wrap(err, "failed to create schema_migrations")
	}

	versions, err := migrationVersions(files)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range versions {
		var exists bool
		if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version); err != nil {
			return applied, errors.Wrapf(err, "failed to check migration %s", version)
		}
		if exists {
			continue
		}

		body, err := fs.ReadFile(files, "migrations/"+version)
		if err != nil {
			return applied, errors.Wrapf(err, "failed to read migration %s", version)
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return applied, errors.Wrap(err, "failed to begin migration transaction")
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return applied, errors.Wrapf(err, "migration %s failed", version)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			return applied, errors.Wrapf(err, "failed to record migration %s", version)
		}
		if err := tx.Commit(); err != nil {
			return applied, errors.Wrapf(err, "failed to commit migration %s", version)
		}

		log.Infow("Applied migration", "version", version)
		applied = append(applied, version)
	}

	return applied, nil
}

func migrationVersions(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}

	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		versions = append(versions, entry.Name())
	}
	sort.Strings(versions)
	return versions, nil
}
