package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteLog_PersistsAndResumes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	log, err := OpenSQLiteLog(path)
	require.NoError(t, err)
	e := newTestEmitter(t, log)
	_, err = e.Emit(ctx, EventEngineInitialized, "", map[string]any{"gid": "GID-00-EXEC"})
	require.NoError(t, err)
	emitN(t, e, 2)
	head := e.Head()
	require.NoError(t, e.Close())

	reopened, err := OpenSQLiteLog(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	resumed, err := NewEmitter(ctx, reopened)
	require.NoError(t, err)
	assert.Equal(t, 3, resumed.Len())
	assert.Equal(t, head, resumed.Head())

	events := resumed.Events()
	assert.Empty(t, events[0].PacID)
	assert.Empty(t, events[0].PreviousHash)
	assert.Equal(t, "GID-00-EXEC", events[0].Details["gid"])

	ev, err := resumed.Emit(ctx, EventPacAdmitted, "PAC-T-00", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ev.SequenceNumber)
	assert.Equal(t, head, ev.PreviousHash)
	assert.NoError(t, resumed.VerifyIntegrity())
}

func TestSQLiteLog_RejectsDuplicateSequence(t *testing.T) {
	ctx := context.Background()
	log, err := OpenSQLiteLog(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	e := newTestEmitter(t, log)
	emitN(t, e, 1)

	dup := e.Events()[0]
	dup.EventID = "other"
	dup.EventHash = "other"
	assert.Error(t, log.Append(ctx, dup))
}

func TestPostgresLog_Append(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	log, err := NewPostgresLog(ctx, db)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence_number, event_id")).
		WillReturnRows(sqlmock.NewRows([]string{"sequence_number", "event_id", "event_type", "pac_id", "timestamp", "details", "previous_hash", "event_hash"}))
	e := newTestEmitter(t, log)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs(int64(0), "evt-0001", "ENGINE_INITIALIZED", nil, sqlmock.AnyArg(), `{"gid":"GID-00-EXEC"}`, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev, err := e.Emit(ctx, EventEngineInitialized, "", map[string]any{"gid": "GID-00-EXEC"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ev.SequenceNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_ResumesStoredChain(t *testing.T) {
	ctx := context.Background()
	src := newTestEmitter(t, nil)
	emitN(t, src, 2)
	stored := src.Events()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"sequence_number", "event_id", "event_type", "pac_id", "timestamp", "details", "previous_hash", "event_hash"})
	for _, ev := range stored {
		var prev any
		if ev.PreviousHash != "" {
			prev = ev.PreviousHash
		}
		details, err := json.Marshal(ev.Details)
		require.NoError(t, err)
		rows.AddRow(int64(ev.SequenceNumber), ev.EventID, string(ev.EventType), ev.PacID,
			FormatTimestamp(ev.Timestamp), string(details), prev, ev.EventHash)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence_number, event_id")).WillReturnRows(rows)

	log, err := NewPostgresLog(ctx, db)
	require.NoError(t, err)
	e, err := NewEmitter(ctx, log)
	require.NoError(t, err)

	assert.Equal(t, 2, e.Len())
	assert.Equal(t, stored[1].EventHash, e.Head())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_AppendErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	log, err := NewPostgresLog(ctx, db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnError(assert.AnError)
	err = log.Append(ctx, &Event{EventID: "e", EventType: EventPacAdmitted, EventHash: "h"})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "failed to append audit event 0")
}
