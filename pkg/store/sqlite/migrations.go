package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/plaenen/learnerstore/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationTable tracks applied schema migrations.
const MigrationTable = "schema_migrations"

// Migrate applies pending schema migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db)
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	m := migrate.New(db, MigrationTable)
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version.
func (s *EventStore) MigrationVersion(ctx context.Context) (int, error) {
	return migrate.New(s.db, MigrationTable).Version(ctx)
}
