package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/normalize"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// TxBeginner starts a transaction. Satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DBTX is the query surface used by PostgresPresetStore.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

var transactionColumns = []string{
	"id", "txn_date", "description", "amount", "category", "document_id", "created_at",
}

// PostgresStore copies batches into the transactions table inside a single
// transaction.
type PostgresStore struct {
	db  TxBeginner
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db.
func NewPostgresStore(db TxBeginner) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) InsertBatch(ctx context.Context, rows []mapping.ValidatedRow) (int64, error) {
	if err := checkBatch(rows); err != nil {
		return 0, err
	}

	src, err := copyRows(rows, s.now().UTC())
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, transactionColumns, pgx.CopyFromRows(src))
	if err != nil {
		return 0, fmt.Errorf("copy transactions: %w", err)
	}
	if n != int64(len(rows)) {
		return 0, fmt.Errorf("copy transactions: wrote %d of %d rows", n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transactions: %w", err)
	}
	return n, nil
}

func copyRows(rows []mapping.ValidatedRow, now time.Time) ([][]any, error) {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		day, err := time.Parse(normalize.DateLayout, r.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.Line, err)
		}

		var amount pgtype.Numeric
		if err := amount.Scan(r.Amount.String()); err != nil {
			return nil, fmt.Errorf("line %d: amount: %w", r.Line, err)
		}

		out = append(out, []any{
			pgtype.UUID{Bytes: uuid.New(), Valid: true},
			pgtype.Date{Time: day, Valid: true},
			r.Description,
			amount,
			r.Category,
			r.DocumentID,
			now,
		})
	}
	return out, nil
}

const (
	createPresetSQL = `
INSERT INTO import_presets (id, name, headers, mapping, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`

	selectPresetColumns = `SELECT id::text, name, headers, mapping, created_at, updated_at FROM import_presets`

	getPresetSQL    = selectPresetColumns + ` WHERE id = $1`
	listPresetsSQL  = selectPresetColumns + ` ORDER BY name`
	deletePresetSQL = `DELETE FROM import_presets WHERE id = $1`

	uniqueViolation = "23505"
)

// PostgresPresetStore keeps presets in the import_presets table.
type PostgresPresetStore struct {
	db  DBTX
	now func() time.Time
}

var _ PresetStore = (*PostgresPresetStore)(nil)

// NewPostgresPresetStore returns a preset store over db.
func NewPostgresPresetStore(db DBTX) *PostgresPresetStore {
	return &PostgresPresetStore{db: db, now: time.Now}
}

func (s *PostgresPresetStore) CreatePreset(ctx context.Context, p mapping.Preset) (mapping.Preset, error) {
	if err := checkPreset(p); err != nil {
		return mapping.Preset{}, err
	}

	headersJSON, err := json.Marshal(p.Headers)
	if err != nil {
		return mapping.Preset{}, fmt.Errorf("marshal headers: %w", err)
	}
	mappingJSON, err := json.Marshal(p.Mapping)
	if err != nil {
		return mapping.Preset{}, fmt.Errorf("marshal mapping: %w", err)
	}

	id := uuid.New()
	now := s.now().UTC()
	if _, err := s.db.Exec(ctx, createPresetSQL, id, p.Name, headersJSON, mappingJSON, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return mapping.Preset{}, fmt.Errorf("%w: %q", ErrPresetExists, p.Name)
		}
		return mapping.Preset{}, fmt.Errorf("create preset: %w", err)
	}

	p.ID = id.String()
	p.CreatedAt, p.UpdatedAt = now, now
	return p, nil
}

func (s *PostgresPresetStore) GetPreset(ctx context.Context, id string) (mapping.Preset, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return mapping.Preset{}, ErrPresetNotFound
	}

	p, err := scanPreset(s.db.QueryRow(ctx, getPresetSQL, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return mapping.Preset{}, ErrPresetNotFound
	}
	if err != nil {
		return mapping.Preset{}, fmt.Errorf("get preset: %w", err)
	}
	return p, nil
}

func (s *PostgresPresetStore) ListPresets(ctx context.Context) ([]mapping.Preset, error) {
	rows, err := s.db.Query(ctx, listPresetsSQL)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	presets := make([]mapping.Preset, 0)
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			continue // Skip presets that no longer decode
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return presets, nil
}

func (s *PostgresPresetStore) DeletePreset(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrPresetNotFound
	}

	tag, err := s.db.Exec(ctx, deletePresetSQL, uid)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPresetNotFound
	}
	return nil
}

func scanPreset(row pgx.Row) (mapping.Preset, error) {
	var (
		p                        mapping.Preset
		headersJSON, mappingJSON []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &headersJSON, &mappingJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return mapping.Preset{}, err
	}
	if err := json.Unmarshal(headersJSON, &p.Headers); err != nil {
		return mapping.Preset{}, fmt.Errorf("decode preset headers: %w", err)
	}
	if err := json.Unmarshal(mappingJSON, &p.Mapping); err != nil {
		return mapping.Preset{}, fmt.Errorf("decode preset mapping: %w", err)
	}
	return p, nil
}
