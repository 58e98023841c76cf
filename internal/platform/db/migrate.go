package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"notebook-lending/internal/platform/config"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies pending schema migrations for the given driver and returns
// the versions that were applied.
func Migrate(ctx context.Context, conn *sql.DB, driver string) ([]int64, error) {
	dialect, dir := goose.DialectMySQL, "migrations/mysql"
	if driver == config.DriverSQLite {
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, conn, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}
