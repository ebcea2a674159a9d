package database

import (
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/edukit/coursebot-api/pkg/config"
)

// NewSQLite opens the embedded database and applies the schema. The pool
// is capped at a single connection: the catalog is a single-writer store
// and every transaction must serialize against the same handle.
func NewSQLite(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", DSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := ApplySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// DSN builds a sqlite DSN with the pragmas the application relies on:
// WAL journaling, enforced foreign keys and a busy timeout so concurrent
// readers back off instead of failing immediately.
func DSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	return fmt.Sprintf("file:%s?%s", path, q.Encode())
}

// ApplySchema creates all tables and indexes if they do not exist yet.
func ApplySchema(db *sqlx.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
