package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	putEntrySQL = `INSERT INTO pending_imports (key, payload, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`

	takeEntrySQL = `DELETE FROM pending_imports WHERE key = $1 RETURNING payload`

	deleteEntrySQL = `DELETE FROM pending_imports WHERE key = $1`

	evictEntriesSQL = `DELETE FROM pending_imports WHERE created_at < $1`
)

// PostgresStore keeps entries in the pending_imports table. TakeOnce is a
// single DELETE ... RETURNING, so the row lock decides the one caller that
// receives the payload.
type PostgresStore struct {
	db  DBTX
	now func() time.Time
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ Evictor = (*PostgresStore)(nil)
)

// NewPostgresStore returns a store backed by db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Put upserts payload under key.
func (s *PostgresStore) Put(ctx context.Context, key string, payload Payload) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if payload == nil {
		payload = Payload{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if _, err := s.db.Exec(ctx, putEntrySQL, key, data, s.now().UTC()); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// TakeOnce deletes the row for key and returns its payload.
func (s *PostgresStore) TakeOnce(ctx context.Context, key string) (Payload, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRow(ctx, takeEntrySQL, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("take", err)
	}

	return decodePayload(data)
}

// Delete removes the row for key if present.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, deleteEntrySQL, key); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Evict removes rows created before olderThan.
func (s *PostgresStore) Evict(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, evictEntriesSQL, olderThan.UTC())
	if err != nil {
		return 0, unavailable("evict", err)
	}
	return tag.RowsAffected(), nil
}
