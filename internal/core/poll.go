package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/extraction"
	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// StartDocument sends data to the extraction service under a fresh
// correlation key and starts polling the staging store for the result.
//
// A dispatch failure leaves the session Failed and returns the error; no
// polling happens in that case.
func (c *Coordinator) StartDocument(ctx context.Context, filename, contentType string, data []byte) (Session, error) {
	if c.dispatcher == nil {
		return Session{}, ErrDocumentsDisabled
	}

	s := c.newSession(KindDocument, filename)
	s.CorrelationKey = uuid.NewString()
	s.MaxAttempts = c.attempts

	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	logger := logging.WithSession(ctx, s.ID, s.CorrelationKey)

	if err := c.limiter.Acquire(ctx); err != nil {
		return c.failDispatch(ctx, s, err)
	}
	err := c.dispatcher.Dispatch(ctx, extraction.Request{
		Key:         s.CorrelationKey,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	c.limiter.Release()

	if err != nil {
		logger.Error("dispatch failed", "error", err)
		return c.failDispatch(ctx, s, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.State != StateIdle {
		// Cancelled while the request was in flight.
		return s.snapshot(), nil
	}
	now := c.now().UTC()
	if err := s.moveTo(StateDispatched, now); err != nil {
		return Session{}, err
	}
	if err := s.moveTo(StatePolling, now); err != nil {
		return Session{}, err
	}
	c.startPolling(s)
	c.audit.record(auditEntry(ctx, s, ledger.ActionDocumentDispatched))

	logger.Info("document dispatched", "filename", filename, "bytes", len(data))
	return s.snapshot(), nil
}

func (c *Coordinator) failDispatch(ctx context.Context, s *session, cause error) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.State == StateIdle {
		_ = s.moveTo(StateFailed, c.now().UTC())
		s.Err = cause.Error()

		entry := auditEntry(ctx, s, ledger.ActionImportFailed)
		entry.Reason = s.Err
		c.audit.record(entry)
	}
	return s.snapshot(), cause
}

// RetryPoll restarts polling for a timed-out session with the same
// correlation key and a fresh attempt budget.
func (c *Coordinator) RetryPoll(ctx context.Context, id string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if err := s.moveTo(StatePolling, c.now().UTC()); err != nil {
		return Session{}, err
	}
	s.Attempts = 0
	s.Err = ""
	c.startPolling(s)
	c.audit.record(auditEntry(ctx, s, ledger.ActionPollRetried))

	logging.WithSession(ctx, s.ID, s.CorrelationKey).Info("polling restarted")
	return s.snapshot(), nil
}

// startPolling launches the poller for s. Caller must hold c.mu.
func (c *Coordinator) startPolling(s *session) {
	s.stopPolling()
	ctx, cancel := context.WithCancel(c.baseCtx)
	s.cancelPoll = cancel
	gen := s.pollGen

	c.wg.Add(1)
	go c.poll(ctx, s.ID, s.CorrelationKey, gen)
}

// poll reads the staging store once per tick. The ticker fires immediately
// and then every interval, exactly c.attempts times in total. The session
// times out one interval after the last read, attempts*interval after start.
func (c *Coordinator) poll(ctx context.Context, id, key string, gen int) {
	defer c.wg.Done()

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.interval), uint64(c.attempts-1)),
		ctx,
	)
	ticker := backoff.NewTicker(b)
	defer ticker.Stop()

	for range ticker.C {
		if ctx.Err() != nil {
			return
		}
		payload, err := c.staging.TakeOnce(ctx, key)
		if c.handlePoll(ctx, id, gen, payload, err) {
			return
		}
	}

	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	c.finishPoll(ctx, id, gen)
}

// handlePoll applies one staging read to the session and reports whether
// polling should stop.
func (c *Coordinator) handlePoll(ctx context.Context, id string, gen int, payload staging.Payload, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok || s.pollGen != gen || s.State != StatePolling {
		return true
	}
	s.Attempts++
	s.UpdatedAt = c.now().UTC()
	logger := logging.WithSession(ctx, s.ID, s.CorrelationKey)

	switch {
	case errors.Is(err, staging.ErrNotFound):
		logger.Debug("no staged rows yet", "attempt", s.Attempts)
		return false

	case err != nil:
		logger.Error("staging read failed", "attempt", s.Attempts, "error", err)
		c.fail(ctx, s, fmt.Sprintf("%s: %v", msgStagingUnavailable, err))
		return true

	case len(payload) == 0:
		logger.Warn("staged payload is empty")
		c.fail(ctx, s, msgNoRows)
		return true

	case len(payload) > c.maxRows:
		c.fail(ctx, s, fmt.Sprintf("%s: %d rows exceeds limit of %d", ErrTooManyRows, len(payload), c.maxRows))
		return true
	}

	c.loadPayload(s, payload)
	received := auditEntry(ctx, s, ledger.ActionExtractionReceived)
	received.RowsAffected = len(payload)
	c.audit.record(received)

	logger.Info("staged rows received",
		"rows", len(payload),
		"attempt", s.Attempts,
		"error_rows", s.Report.ErrorRows,
	)
	return true
}

// loadPayload moves a polling session through Ready into Reviewing with the
// payload as its review set. Caller must hold c.mu.
func (c *Coordinator) loadPayload(s *session, payload staging.Payload) {
	now := c.now().UTC()
	s.stopPolling()

	headers, rows := mapping.CandidatesFromMaps(payload)
	s.Headers = headers
	s.Candidates = rows
	s.Mapping = mapping.Propose(headers)

	review := make([]mapping.Record, len(rows))
	for i, row := range rows {
		review[i] = s.Mapping.Rekey(row)
	}
	s.Review = review
	report := mapping.ValidateRecords(review)
	s.Report = &report

	_ = s.moveTo(StateReady, now)
	_ = s.moveTo(StateReviewing, now)
}

// fail moves a polling session to Failed. Caller must hold c.mu.
func (c *Coordinator) fail(ctx context.Context, s *session, msg string) {
	s.stopPolling()
	_ = s.moveTo(StateFailed, c.now().UTC())
	s.Err = msg

	entry := auditEntry(ctx, s, ledger.ActionImportFailed)
	entry.Reason = msg
	c.audit.record(entry)
}

func (c *Coordinator) finishPoll(ctx context.Context, id string, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok || s.pollGen != gen || s.State != StatePolling {
		return
	}
	s.stopPolling()
	_ = s.moveTo(StateTimedOut, c.now().UTC())
	s.Err = msgTimedOut

	entry := auditEntry(ctx, s, ledger.ActionExtractionTimedOut)
	entry.Reason = msgTimedOut
	c.audit.record(entry)

	logging.WithSession(ctx, s.ID, s.CorrelationKey).Warn("polling timed out", "attempts", s.Attempts)
}
