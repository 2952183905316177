// Package testutil holds helpers for tests that need a real PostgreSQL.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/lib/pq"
)

// EnvPostgresURL names the variable pointing PGTest at a scratch database.
const EnvPostgresURL = "POSTGRES_URL"

// PGTest connects to $POSTGRES_URL, runs migrate, and registers cleanup
// that empties the given tables and closes the pool. The test is skipped
// when the variable is unset.
//
//	db := testutil.PGTest(t, audit.Up, "risk_audit")
func PGTest(t *testing.T, migrate func(context.Context, *sql.DB) error, tables ...string) *sql.DB {
	t.Helper()

	dsn := os.Getenv(EnvPostgresURL)
	if dsn == "" {
		t.Skipf("%s not set, skipping integration test", EnvPostgresURL)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open: %v", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: ping: %v", err)
	}
	if migrate != nil {
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			t.Fatalf("pgtest: migrate: %v", err)
		}
	}

	truncate(t, db, tables)
	t.Cleanup(func() {
		truncate(t, db, tables)
		_ = db.Close()
	})
	return db
}

func truncate(t *testing.T, db *sql.DB, tables []string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	quoted := make([]string, len(tables))
	for i, name := range tables {
		quoted[i] = pq.QuoteIdentifier(name)
	}
	if _, err := db.Exec("TRUNCATE " + strings.Join(quoted, ", ")); err != nil {
		t.Errorf("pgtest: truncate %v: %v", tables, err)
	}
}
