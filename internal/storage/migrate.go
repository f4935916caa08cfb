package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"budget/internal/core"
)

//go:embed migrations/tenant/*.sql migrations/registry/*.sql
var migrationsFS embed.FS

// Expected columns per table, checked after migrating.
var (
	tenantLayout = map[string][]string{
		"categories": {"id", "name", "name_key", "metadata", "created_at"},
		"records":    {"id", "name", "amount_cents", "category_id", "occurred_at", "created_at"},
	}
	registryLayout = map[string][]string{
		"users": {"id", "username", "username_key", "password_hash", "created_at"},
	}
)

// EnsureTenantSchema brings the tenant database at path to the current
// layout. Calling it on an up-to-date database is a no-op. Every failure
// matches core.ErrSchema.
func EnsureTenantSchema(ctx context.Context, path string) error {
	return ensureSchema(ctx, path, "migrations/tenant", tenantLayout)
}

// EnsureRegistrySchema does the same for the shared user registry.
func EnsureRegistrySchema(ctx context.Context, path string) error {
	return ensureSchema(ctx, path, "migrations/registry", registryLayout)
}

func ensureSchema(ctx context.Context, path, dir string, layout map[string][]string) error {
	// Separate connection so the migrator can close it without touching the caller's pool
	migrateDB, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return fmt.Errorf("open migration database: %w: %w", core.ErrStorageUnavailable, err)
	}
	defer migrateDB.Close()

	if err := runMigrations(migrateDB, dir); err != nil {
		return fmt.Errorf("%w: %w", core.ErrSchema, err)
	}

	if err := verifyLayout(ctx, migrateDB, layout); err != nil {
		return fmt.Errorf("%w: %w", core.ErrSchema, err)
	}

	return nil
}

func runMigrations(db *sql.DB, dir string) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would also close db; the deferred Close in ensureSchema owns it.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// verifyLayout checks that every expected column exists.
func verifyLayout(ctx context.Context, db *sql.DB, layout map[string][]string) error {
	for table, columns := range layout {
		have, err := tableColumns(ctx, db, table)
		if err != nil {
			return err
		}
		if len(have) == 0 {
			return fmt.Errorf("table %s is missing", table)
		}
		for _, col := range columns {
			if !have[col] {
				return fmt.Errorf("table %s has no column %s", table, col)
			}
		}
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
