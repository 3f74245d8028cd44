// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-loans/internal/database"
)

// NewSQLite opens a fresh SQLite database in a temp dir with the bundled
// schema applied.  It is closed when the test ends.
func NewSQLite(t testing.TB) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.DriverSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "library.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	script, err := database.DefaultSchema(database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, database.ApplySchema(ctx, db, script))
	return db
}
