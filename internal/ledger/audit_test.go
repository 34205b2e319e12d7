package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		action AuditAction
		want   AuditSeverity
	}{
		{ActionImportCommitted, SeverityHigh},
		{ActionRowDelete, SeverityHigh},
		{ActionImportStarted, SeverityLow},
		{ActionCellEdit, SeverityMedium},
		{ActionExtractionTimedOut, SeverityMedium},
		{ActionPollRetried, SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityFor(tt.action))
		})
	}
}

func TestMemoryAuditStore_RecordFillsGeneratedFields(t *testing.T) {
	store := NewMemoryAuditStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	e, err := store.RecordAudit(context.Background(), AuditEntry{Action: ActionRowDelete, SessionID: "s1"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, SeverityHigh, e.Severity)
	assert.Equal(t, fixed, e.CreatedAt)
}

func TestMemoryAuditStore_ListFilters(t *testing.T) {
	store := NewMemoryAuditStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	record := func(session string, action AuditAction, offset time.Duration) {
		_, err := store.RecordAudit(ctx, AuditEntry{SessionID: session, Action: action, CreatedAt: base.Add(offset)})
		require.NoError(t, err)
	}
	record("s1", ActionImportStarted, 0)
	record("s1", ActionCellEdit, time.Minute)
	record("s2", ActionImportStarted, 2*time.Minute)
	record("s1", ActionImportCommitted, 3*time.Minute)

	all, err := store.ListAudit(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ActionImportCommitted, all[0].Action, "newest first")
	assert.Equal(t, ActionImportStarted, all[3].Action)

	s1, err := store.ListAudit(ctx, AuditFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, s1, 3)

	started, err := store.ListAudit(ctx, AuditFilter{Action: ActionImportStarted})
	require.NoError(t, err)
	assert.Len(t, started, 2)

	window, err := store.ListAudit(ctx, AuditFilter{Since: base.Add(time.Minute), Until: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "s2", window[0].SessionID)

	page, err := store.ListAudit(ctx, AuditFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s2", page[0].SessionID)

	empty, err := store.ListAudit(ctx, AuditFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryAuditStore_EqualTimestampsKeepInsertOrderReversed(t *testing.T) {
	store := NewMemoryAuditStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	for _, action := range []AuditAction{ActionImportStarted, ActionMappingValidated, ActionImportCommitted} {
		_, err := store.RecordAudit(ctx, AuditEntry{SessionID: "s1", Action: action})
		require.NoError(t, err)
	}

	got, err := store.ListAudit(ctx, AuditFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ActionImportCommitted, got[0].Action)
	assert.Equal(t, ActionImportStarted, got[2].Action)
}

func TestWhereBuilder(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		wb := newWhereBuilder()
		wb.add("session_id", "")
		wb.addTimeRange("created_at", time.Time{}, time.Time{})
		where, args := wb.build()
		assert.Empty(t, where)
		assert.Nil(t, args)
		assert.Equal(t, 1, wb.next())
	})

	t.Run("conditions", func(t *testing.T) {
		wb := newWhereBuilder()
		wb.add("session_id", "s1")
		wb.add("action", "")
		wb.addTimeRange("created_at", since, time.Time{})
		where, args := wb.build()
		assert.Equal(t, " WHERE session_id = $1 AND created_at >= $2", where)
		assert.Equal(t, []any{"s1", since}, args)
		assert.Equal(t, 3, wb.next())
	})
}

// fakeAuditDB records the statements PostgresAuditStore issues.
type fakeAuditDB struct {
	sql      string
	args     []any
	execErr  error
	queryErr error
}

func (db *fakeAuditDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.sql, db.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), db.execErr
}

func (db *fakeAuditDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.sql, db.args = sql, args
	return nil, db.queryErr
}

func (db *fakeAuditDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestPostgresAuditStore_Record(t *testing.T) {
	db := &fakeAuditDB{}
	store := NewPostgresAuditStore(db)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	e, err := store.RecordAudit(context.Background(), AuditEntry{
		Action:    ActionCellEdit,
		SessionID: "s1",
		Line:      3,
		Field:     "amount",
		OldValue:  "1O",
		NewValue:  "10",
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityMedium, e.Severity)
	assert.Equal(t, fixed, e.CreatedAt)

	assert.Contains(t, db.sql, "INSERT INTO import_audit")
	require.Len(t, db.args, 15)
	assert.Equal(t, "cell_edit", db.args[1])
	assert.Equal(t, "s1", db.args[3])
	assert.Equal(t, pgtype.Text{}, db.args[4], "empty filename is stored as NULL")
	assert.Equal(t, pgtype.Int4{Int32: 3, Valid: true}, db.args[8])
	assert.Equal(t, pgtype.Text{String: "1O", Valid: true}, db.args[10])
	assert.Equal(t, pgtype.Int4{}, db.args[12])
}

func TestPostgresAuditStore_RecordErrors(t *testing.T) {
	store := NewPostgresAuditStore(&fakeAuditDB{})
	_, err := store.RecordAudit(context.Background(), AuditEntry{ID: "not-a-uuid", Action: ActionCellEdit})
	assert.ErrorContains(t, err, "invalid id")

	store = NewPostgresAuditStore(&fakeAuditDB{execErr: errors.New("relation does not exist")})
	_, err = store.RecordAudit(context.Background(), AuditEntry{Action: ActionCellEdit})
	assert.ErrorContains(t, err, "record audit: relation does not exist")
}

func TestPostgresAuditStore_ListBuildsQuery(t *testing.T) {
	db := &fakeAuditDB{queryErr: errors.New("connection refused")}
	store := NewPostgresAuditStore(db)

	_, err := store.ListAudit(context.Background(), AuditFilter{SessionID: "s1", Action: ActionRowAdd, Offset: 20})
	assert.ErrorContains(t, err, "list audit: connection refused")

	assert.Contains(t, db.sql, "WHERE session_id = $1 AND action = $2")
	assert.Contains(t, db.sql, "ORDER BY created_at DESC, id LIMIT $3 OFFSET $4")
	assert.Equal(t, []any{"s1", "row_add", DefaultAuditLimit, 20}, db.args)
}
