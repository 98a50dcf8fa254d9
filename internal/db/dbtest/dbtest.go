// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"

	"cipher-chat/internal/db"
)

// New returns a migrated in-memory SQLite database closed at test cleanup.
func New(t testing.TB) *db.Database {
	t.Helper()

	database, err := db.NewDatabase(db.DriverSQLite, "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}
