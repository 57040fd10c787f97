package store

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// openTestDB opens a fresh store in a temp directory.
func openTestDB(t *testing.T, opts ...Option) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lifeline.db")
	db, err := Open(context.Background(), path, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func schemaObjects(t *testing.T, conn *sql.DB) string {
	t.Helper()
	rows, err := conn.Query(`
		SELECT type, name FROM sqlite_master
		WHERE name NOT LIKE 'sqlite_%'
		ORDER BY type, name`)
	require.NoError(t, err)
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var typ, name string
		require.NoError(t, rows.Scan(&typ, &name))
		b.WriteString(typ + " " + name + "\n")
	}
	require.NoError(t, rows.Err())
	return b.String()
}

func TestOpen_NewStoreReachesLatestVersion(t *testing.T) {
	db, _ := openTestDB(t)
	assert.Equal(t, Migrations.Latest(), db.Version())

	g := goldie.New(t)
	g.Assert(t, "schema", []byte(schemaObjects(t, db.SQL())))
}

func TestOpen_Pragmas(t *testing.T) {
	db, _ := openTestDB(t)

	var mode string
	require.NoError(t, db.SQL().QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	var fk int
	require.NoError(t, db.SQL().QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpen_ReopenIsNoop(t *testing.T) {
	db, path := openTestDB(t)
	require.NoError(t, db.Close())

	conn, err := sql.Open("sqlite3", dsn(path))
	require.NoError(t, err)
	defer conn.Close()

	applied, err := Migrations.Apply(context.Background(), conn, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, applied)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, Migrations.Latest(), n, "no duplicate version records")

	current, err := Migrations.Current(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, Migrations.Latest(), current)
}

func TestMigrations_ShippedStepsAreWellFormed(t *testing.T) {
	steps := Migrations.Steps()
	require.NotEmpty(t, steps)
	assert.Equal(t, "create_initial_tables", steps[0].Description)
	seen := map[string]bool{}
	for _, m := range steps {
		assert.False(t, seen[m.Description], "duplicate description %q", m.Description)
		seen[m.Description] = true
	}
}
