package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteLog persists the chain in a local SQLite file. The sequence number
// is the primary key, so an existing event can never be overwritten.
type SQLiteLog struct {
	sqlLog
}

// NewSQLiteLog wraps an open database and runs migrations.
func NewSQLiteLog(db *sql.DB) (*SQLiteLog, error) {
	l := &SQLiteLog{sqlLog{
		db:        db,
		insertSQL: "INSERT INTO audit_events (" + eventColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		selectSQL: "SELECT " + eventColumns + " FROM audit_events ORDER BY sequence_number ASC",
	}}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

// OpenSQLiteLog opens (or creates) the database at path.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite audit log: %w", err)
	}
	// Writes are serialized by the emitter; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	l, err := NewSQLiteLog(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS audit_events (
		sequence_number INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		pac_id TEXT,
		timestamp TEXT NOT NULL,
		details TEXT NOT NULL,
		previous_hash TEXT,
		event_hash TEXT NOT NULL UNIQUE
	);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_pac ON audit_events(pac_id);`,
	}
	for _, q := range stmts {
		if _, err := l.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("failed to migrate sqlite audit log: %w", err)
		}
	}
	return nil
}
