package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const auditFields = `action, severity, session_id, filename, correlation_key, ip_address,
	user_agent, line, field, old_value, new_value, rows_affected, reason, created_at`

const (
	insertAuditSQL = `INSERT INTO import_audit (id, ` + auditFields + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	selectAuditSQL = `SELECT id::text, ` + auditFields + ` FROM import_audit`
)

// PostgresAuditStore keeps the audit log in the import_audit table.
type PostgresAuditStore struct {
	db  DBTX
	now func() time.Time
}

var _ AuditStore = (*PostgresAuditStore)(nil)

// NewPostgresAuditStore returns an audit store over db.
func NewPostgresAuditStore(db DBTX) *PostgresAuditStore {
	return &PostgresAuditStore{db: db, now: time.Now}
}

func (s *PostgresAuditStore) RecordAudit(ctx context.Context, e AuditEntry) (AuditEntry, error) {
	e = prepareAudit(e, s.now())

	id, err := uuid.Parse(e.ID)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("record audit: invalid id %q", e.ID)
	}

	_, err = s.db.Exec(ctx, insertAuditSQL,
		id,
		string(e.Action),
		string(e.Severity),
		e.SessionID,
		text(e.Filename),
		text(e.CorrelationKey),
		text(e.IPAddress),
		text(e.UserAgent),
		int4(e.Line),
		text(e.Field),
		text(e.OldValue),
		text(e.NewValue),
		int4(e.RowsAffected),
		text(e.Reason),
		e.CreatedAt,
	)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("record audit: %w", err)
	}
	return e, nil
}

func (s *PostgresAuditStore) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultAuditLimit
	}

	wb := newWhereBuilder()
	wb.add("session_id", filter.SessionID)
	wb.add("action", string(filter.Action))
	wb.addTimeRange("created_at", filter.Since, filter.Until)
	where, args := wb.build()

	query := selectAuditSQL + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", wb.next(), wb.next()+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}

func scanAudit(row pgx.Row) (AuditEntry, error) {
	var (
		e                               AuditEntry
		action, severity                string
		filename, key, ip, agent, field pgtype.Text
		oldValue, newValue, reason      pgtype.Text
		line, rowsAffected              pgtype.Int4
	)
	err := row.Scan(&e.ID, &action, &severity, &e.SessionID, &filename, &key, &ip,
		&agent, &line, &field, &oldValue, &newValue, &rowsAffected, &reason, &e.CreatedAt)
	if err != nil {
		return AuditEntry{}, err
	}

	e.Action = AuditAction(action)
	e.Severity = AuditSeverity(severity)
	e.Filename = filename.String
	e.CorrelationKey = key.String
	e.IPAddress = ip.String
	e.UserAgent = agent.String
	e.Line = int(line.Int32)
	e.Field = field.String
	e.OldValue = oldValue.String
	e.NewValue = newValue.String
	e.RowsAffected = int(rowsAffected.Int32)
	e.Reason = reason.String
	return e, nil
}

// text maps "" to NULL.
func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// int4 maps 0 to NULL.
func int4(n int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(n), Valid: n != 0}
}

// whereBuilder assembles a WHERE clause with numbered placeholders.
// Empty values are skipped so optional filters need no branching.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

func (wb *whereBuilder) add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

func (wb *whereBuilder) addTimeRange(column string, since, until time.Time) {
	if !since.IsZero() {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= $%d", column, wb.argIndex))
		wb.args = append(wb.args, since)
		wb.argIndex++
	}
	if !until.IsZero() {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s < $%d", column, wb.argIndex))
		wb.args = append(wb.args, until)
		wb.argIndex++
	}
}

// next returns the placeholder number after the last condition.
func (wb *whereBuilder) next() int {
	return wb.argIndex
}

func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}
