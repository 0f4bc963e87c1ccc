package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// migrate applies every pending migration found under dir.
func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	migrations, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log := logger.WithComponent("migrate")
	log.Debug().Str("dialect", string(dialect)).Int("applied", len(results)).Msg("Migrations applied")
	return nil
}
