package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresLog persists the chain in PostgreSQL.
type PostgresLog struct {
	sqlLog
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS audit_events (
	sequence_number BIGINT PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	pac_id TEXT,
	timestamp TEXT NOT NULL,
	details TEXT NOT NULL,
	previous_hash TEXT,
	event_hash TEXT NOT NULL UNIQUE
)`

// NewPostgresLog wraps an open database and ensures the table exists.
func NewPostgresLog(ctx context.Context, db *sql.DB) (*PostgresLog, error) {
	l := &PostgresLog{sqlLog{
		db:        db,
		insertSQL: "INSERT INTO audit_events (" + eventColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		selectSQL: "SELECT " + eventColumns + " FROM audit_events ORDER BY sequence_number ASC",
	}}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create audit_events table: %w", err)
	}
	return l, nil
}

// OpenPostgresLog connects using a lib/pq DSN.
func OpenPostgresLog(ctx context.Context, dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres audit log: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	l, err := NewPostgresLog(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}
