package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const eventColumns = "sequence_number, event_id, event_type, pac_id, timestamp, details, previous_hash, event_hash"

// sqlLog holds the dialect-independent parts of the SQL backends.
type sqlLog struct {
	db        *sql.DB
	insertSQL string
	selectSQL string
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (l *sqlLog) Append(ctx context.Context, ev *Event) error {
	details := ev.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}
	_, err = l.db.ExecContext(ctx, l.insertSQL,
		int64(ev.SequenceNumber),
		ev.EventID,
		string(ev.EventType),
		nullString(ev.PacID),
		FormatTimestamp(ev.Timestamp),
		string(raw),
		nullString(ev.PreviousHash),
		ev.EventHash,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event %d: %w", ev.SequenceNumber, err)
	}
	return nil
}

func (l *sqlLog) Events(ctx context.Context) ([]*Event, error) {
	rows, err := l.db.QueryContext(ctx, l.selectSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Event
	for rows.Next() {
		var (
			seq          int64
			ev           Event
			eventType    string
			pacID        sql.NullString
			ts           string
			details      string
			previousHash sql.NullString
		)
		if err := rows.Scan(&seq, &ev.EventID, &eventType, &pacID, &ts, &details, &previousHash, &ev.EventHash); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.SequenceNumber = uint64(seq)
		ev.EventType = EventType(eventType)
		ev.PacID = pacID.String
		ev.PreviousHash = previousHash.String
		if ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp of audit event %d: %w", seq, err)
		}
		if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
			return nil, fmt.Errorf("failed to decode details of audit event %d: %w", seq, err)
		}
		if ev.Details == nil {
			ev.Details = map[string]any{}
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return out, nil
}

func (l *sqlLog) Close() error {
	return l.db.Close()
}
