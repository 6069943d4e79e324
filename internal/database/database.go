package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle. All persisted state (live alerts, the
// archive, last-viewed prices, metric snapshots) lives here; every
// cache above it is derived and disposable.
type DB struct {
	conn *sql.DB
}

const timestampLayout = "2006-01-02 15:04:05"

func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// sqlite allows one writer; a second pooled connection would just
	// trade lock errors for queueing here.
	conn.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			condition TEXT NOT NULL,
			target TEXT NOT NULL,
			kind TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_chat ON alerts (chat_id);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts (symbol);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_chat_symbol ON alerts (chat_id, symbol);`,
		`CREATE TABLE IF NOT EXISTS alerts_archive (
			id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			condition TEXT NOT NULL,
			target TEXT NOT NULL,
			kind TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			reason TEXT NOT NULL,
			archived_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS last_alert_views (
			chat_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			price REAL NOT NULL,
			viewed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (chat_id, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			metric_name TEXT PRIMARY KEY,
			metric_value REAL NOT NULL
		);`,
	}

	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
