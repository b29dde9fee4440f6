package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "users.db"

type Config struct {
	Path string
}

// DefaultPath returns the database path used when no config overrides it.
func DefaultPath() string {
	return defaultDBName
}

// Open opens the SQLite database with foreign keys on, creating the parent
// directory if needed.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = defaultDBName
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serializing connections avoids
	// SQLITE_BUSY under concurrent transitions.
	conn.SetMaxOpenConns(1)
	return conn, nil
}
