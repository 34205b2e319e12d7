// Package ledger persists committed transactions and saved mapping presets.
//
// The transaction store is deliberately narrow: the import flow only ever
// appends a validated batch, all or nothing.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
)

var (
	// ErrEmptyBatch is returned when InsertBatch is called with no rows.
	ErrEmptyBatch = errors.New("no rows to insert")

	// ErrRowInvalid is returned when a batch contains a row with errors.
	ErrRowInvalid = errors.New("batch contains invalid rows")

	// ErrPresetNotFound is returned for unknown preset ids.
	ErrPresetNotFound = errors.New("preset not found")

	// ErrPresetExists is returned when a preset name is already taken.
	ErrPresetExists = errors.New("preset already exists")
)

// Backend names accepted by LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Store receives validated transaction batches.
type Store interface {
	// InsertBatch writes every row or none and returns the count written.
	InsertBatch(ctx context.Context, rows []mapping.ValidatedRow) (int64, error)
}

// PresetStore keeps named mappings for recurring file layouts.
type PresetStore interface {
	CreatePreset(ctx context.Context, p mapping.Preset) (mapping.Preset, error)
	GetPreset(ctx context.Context, id string) (mapping.Preset, error)
	ListPresets(ctx context.Context) ([]mapping.Preset, error)
	DeletePreset(ctx context.Context, id string) error
}

// checkBatch rejects empty batches and rows that still carry errors.
func checkBatch(rows []mapping.ValidatedRow) error {
	if len(rows) == 0 {
		return ErrEmptyBatch
	}
	for _, r := range rows {
		if !r.Valid() {
			return fmt.Errorf("%w: line %d", ErrRowInvalid, r.Line)
		}
	}
	return nil
}

func checkPreset(p mapping.Preset) error {
	if p.Name == "" {
		return errors.New("preset name is required")
	}
	if len(p.Mapping) == 0 {
		return errors.New("preset mapping is required")
	}
	return nil
}
