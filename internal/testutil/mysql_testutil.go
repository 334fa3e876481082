package testutil

import (
	"os"
	"testing"

	"github.com/theLastOfCats/anishelf/internal/db"
)

// SetupMySQLTestDB initializes a MySQL-backed store for integration tests.
// It skips tests when MYSQL_TEST_DSN is not set.
func SetupMySQLTestDB(t *testing.T) *db.DB {
	t.Helper()

	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set; skipping MySQL integration tests")
	}

	database, err := db.New(dsn)
	if err != nil {
		t.Fatalf("failed to init mysql test db: %v", err)
	}

	t.Cleanup(func() {
		_ = database.Close()
	})

	if _, err := database.Exec("TRUNCATE TABLE kv"); err != nil {
		t.Fatalf("mysql reset failed: %v", err)
	}
	return database
}
