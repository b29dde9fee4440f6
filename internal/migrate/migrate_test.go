package migrate_test

import (
	"path/filepath"
	"testing"

	"reqmgr/internal/db"
	"reqmgr/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Fatalf("schema version = %d, want 1", version)
	}
	if _, err := conn.Exec(`INSERT INTO users(username, credential, display_name, email, role)
		VALUES ('alice', 'hash', 'Alice', '', 'admin')`); err != nil {
		t.Fatalf("schema unusable: %v", err)
	}
}
