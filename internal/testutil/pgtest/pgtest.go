// Package pgtest gates tests that need a live PostgreSQL server.
package pgtest

import (
	"os"
	"testing"
)

// envDatabase names the variable holding the test database connection string.
const envDatabase = "TEST_DATABASE"

// SkipWithoutDatabase returns the test database connection string, skipping
// t when none is configured.
func SkipWithoutDatabase(t testing.TB) string {
	t.Helper()
	connString := os.Getenv(envDatabase)
	if connString == "" {
		t.Skipf("%s not set", envDatabase)
	}
	return connString
}
