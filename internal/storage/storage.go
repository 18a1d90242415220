package storage

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"shooter-arena/internal/game"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a sql.DB holding match history. It satisfies the engine's
// Store interface and is safe for use from the persistence worker.
type DB struct {
	conn *sql.DB
}

var _ game.Store = (*DB)(nil)

// Open opens (or creates) the SQLite database at the given path and
// applies the schema. The path follows sqlite DSN rules, so ":memory:"
// works for tests.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Writes arrive from a single worker; one connection keeps an
	// in-memory database alive and sidesteps SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
