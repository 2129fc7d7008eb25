package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated in-memory database private to the test. Both
// connections share it through cache=shared under a name taken from t.Name().
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
		url.PathEscape(t.Name()),
	)

	open := func(maxConns int) *sql.DB {
		conn, err := sql.Open("sqlite", dsn)
		require.NoError(t, err)
		conn.SetMaxOpenConns(maxConns)
		require.NoError(t, conn.PingContext(context.Background()))
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}

	// The writer opens first so the shared database outlives the reader.
	db := &DB{Writer: open(1), Reader: open(2), path: dsn}
	require.NoError(t, RunMigrations(db.Writer))

	return db
}

// testKey is a fixed 32-byte AES-256 key.
func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}
