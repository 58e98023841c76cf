// Package dbtest opens throwaway migrated databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"notebook-lending/internal/platform/config"
	"notebook-lending/internal/platform/db"
)

// Open returns an in-memory SQLite database with the full schema applied.
// Each test gets its own database, closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	conn, err := db.OpenSQLiteDSN("file:" + name + "?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = db.Migrate(context.Background(), conn, config.DriverSQLite)
	require.NoError(t, err)
	return conn
}
