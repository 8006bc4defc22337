// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/promptlab/promptlab/internal/db"
	"github.com/stretchr/testify/require"
)

// New returns a fresh database in a temp dir with all migrations applied.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Init("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	require.NoError(t, db.RunMigrations(conn.DB, "sqlite"))
	return conn
}

// CreateUser inserts a bare user row.
func CreateUser(t testing.TB, conn *sqlx.DB, id string) {
	t.Helper()

	_, err := conn.Exec(`INSERT INTO users (id, name, locale, created_at) VALUES ($1, $2, $3, $4)`, id, id, "en", time.Now().UTC())
	require.NoError(t, err)
}

// SetBalance credits a user's balance directly, bypassing the ledger.
func SetBalance(t testing.TB, conn *sqlx.DB, userID string, balance int64) {
	t.Helper()

	_, err := conn.Exec(`INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, $3)
	                     ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance`, userID, balance, time.Now().UTC())
	require.NoError(t, err)
}
