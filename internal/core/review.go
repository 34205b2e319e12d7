package core

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
)

// editable returns session id if its review set may be changed.
// Caller must hold c.mu.
func (c *Coordinator) editable(id string) (*session, error) {
	s, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.committing {
		return nil, ErrSessionBusy
	}
	if s.State != StateReviewing {
		return nil, fmt.Errorf("%w: rows can only be edited while reviewing (state %s)", ErrInvalidTransition, s.State)
	}
	return s, nil
}

// revalidate refreshes the report after an edit. Caller must hold c.mu.
func (c *Coordinator) revalidate(s *session) {
	report := mapping.ValidateRecords(s.Review)
	s.Report = &report
	s.UpdatedAt = c.now().UTC()
}

// AddRow appends a record to the review set.
func (c *Coordinator) AddRow(ctx context.Context, id string, rec mapping.Record) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.editable(id)
	if err != nil {
		return Session{}, err
	}
	for f := range rec {
		if !f.Valid() {
			return Session{}, fmt.Errorf("unknown destination field %q", f)
		}
	}
	if len(s.Review) >= c.maxRows {
		return Session{}, fmt.Errorf("%w: limit is %d", ErrTooManyRows, c.maxRows)
	}

	s.Review = append(s.Review, rec.Clone())
	c.revalidate(s)

	entry := auditEntry(ctx, s, ledger.ActionRowAdd)
	entry.Line = len(s.Review) - 1 + mapping.FirstDataLine
	entry.RowsAffected = 1
	c.audit.record(entry)
	return s.snapshot(), nil
}

// UpdateCell sets one field of review row index.
func (c *Coordinator) UpdateCell(ctx context.Context, id string, index int, field mapping.Field, value string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.editable(id)
	if err != nil {
		return Session{}, err
	}
	if index < 0 || index >= len(s.Review) {
		return Session{}, fmt.Errorf("%w: %d", ErrRowIndex, index)
	}
	if !field.Valid() {
		return Session{}, fmt.Errorf("unknown destination field %q", field)
	}

	rec := s.Review[index].Clone()
	old := rec[field]
	rec[field] = value
	s.Review[index] = rec
	c.revalidate(s)

	entry := auditEntry(ctx, s, ledger.ActionCellEdit)
	entry.Line = index + mapping.FirstDataLine
	entry.Field = string(field)
	entry.OldValue = old
	entry.NewValue = value
	entry.RowsAffected = 1
	c.audit.record(entry)
	return s.snapshot(), nil
}

// DeleteRow removes review row index.
func (c *Coordinator) DeleteRow(ctx context.Context, id string, index int) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.editable(id)
	if err != nil {
		return Session{}, err
	}
	if index < 0 || index >= len(s.Review) {
		return Session{}, fmt.Errorf("%w: %d", ErrRowIndex, index)
	}

	s.Review = append(s.Review[:index:index], s.Review[index+1:]...)
	c.revalidate(s)

	entry := auditEntry(ctx, s, ledger.ActionRowDelete)
	entry.Line = index + mapping.FirstDataLine
	entry.RowsAffected = 1
	c.audit.record(entry)
	return s.snapshot(), nil
}

// Commit validates the review set and hands it to the transaction store in
// one batch.
//
// Any row error blocks the commit with ErrRowsInvalid and the fresh report
// is kept on the session. A store failure leaves the session in Reviewing
// with its rows intact so the operator can retry.
func (c *Coordinator) Commit(ctx context.Context, id string) (Session, error) {
	c.mu.Lock()
	s, err := c.editable(id)
	if err != nil {
		c.mu.Unlock()
		return Session{}, err
	}
	if len(s.Review) == 0 {
		c.mu.Unlock()
		return Session{}, ErrNothingToCommit
	}

	c.revalidate(s)
	if !s.Report.Valid() {
		snap := s.snapshot()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: %d of %d rows", ErrRowsInvalid, snap.Report.ErrorRows, snap.Report.Total)
	}

	rows := s.Report.Committable()
	s.committing = true
	logger := logging.WithSession(ctx, s.ID, s.CorrelationKey)
	c.mu.Unlock()

	inserted, insertErr := c.txns.InsertBatch(ctx, rows)

	c.mu.Lock()
	defer c.mu.Unlock()
	s.committing = false

	if insertErr != nil {
		s.Err = insertErr.Error()
		s.UpdatedAt = c.now().UTC()

		entry := auditEntry(ctx, s, ledger.ActionCommitFailed)
		entry.RowsAffected = len(rows)
		entry.Reason = s.Err
		c.audit.record(entry)

		logger.Error("commit failed", "rows", len(rows), "error", insertErr)
		return s.snapshot(), fmt.Errorf("commit: %w", insertErr)
	}

	if err := s.moveTo(StateCommitted, c.now().UTC()); err != nil {
		return Session{}, err
	}
	s.Inserted = inserted
	s.Err = ""

	entry := auditEntry(ctx, s, ledger.ActionImportCommitted)
	entry.RowsAffected = int(inserted)
	c.audit.record(entry)

	meta := RequestMetaFrom(ctx)
	logger.Info("import committed",
		"inserted", inserted,
		"filename", s.Filename,
		"ip", meta.IP,
	)
	return s.snapshot(), nil
}

// Cancel ends an unfinished session and stops its poller. For document
// sessions still waiting on extraction the correlation key is deleted from
// the staging store so a late result cannot be picked up by anyone.
func (c *Coordinator) Cancel(ctx context.Context, id string) (Session, error) {
	c.mu.Lock()
	s, err := c.lookup(id)
	if err != nil {
		c.mu.Unlock()
		return Session{}, err
	}
	if s.committing {
		c.mu.Unlock()
		return Session{}, ErrSessionBusy
	}

	prev := s.State
	if err := s.moveTo(StateCancelled, c.now().UTC()); err != nil {
		c.mu.Unlock()
		return Session{}, err
	}
	s.stopPolling()
	key := s.CorrelationKey
	snap := s.snapshot()
	entry := auditEntry(ctx, s, ledger.ActionImportCancelled)
	entry.Reason = fmt.Sprintf("cancelled from %s", prev)
	c.mu.Unlock()

	c.audit.record(entry)

	logger := logging.WithSession(ctx, s.ID, key)

	switch prev {
	case StateIdle, StateDispatched, StatePolling, StateTimedOut:
		if key != "" {
			if err := c.staging.Delete(ctx, key); err != nil {
				logger.Warn("could not release correlation key", "error", err)
			}
		}
	}

	logger.Info("import cancelled", "from", prev)
	return snap, nil
}
