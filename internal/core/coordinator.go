package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/extraction"
	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for unknown or forgotten session ids.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSessionBusy is returned while a commit for the session is in flight.
	ErrSessionBusy = errors.New("import session is busy")

	// ErrSessionActive is returned by Forget for sessions that are not finished.
	ErrSessionActive = errors.New("import session is still active")

	// ErrRowsInvalid blocks a commit while any review row has errors.
	ErrRowsInvalid = errors.New("commit blocked: rows have validation errors")

	// ErrNothingToCommit is returned when the review set is empty.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrTooManyRows is returned when a file or payload exceeds Options.MaxRows.
	ErrTooManyRows = errors.New("too many rows")

	// ErrDocumentsDisabled is returned by StartDocument without a Dispatcher.
	ErrDocumentsDisabled = errors.New("document import is disabled: extraction service is not configured")

	// ErrRowIndex is returned for review edits that name a missing row.
	ErrRowIndex = errors.New("row index out of range")
)

// Messages recorded on sessions that end without a commit.
const (
	msgStagingUnavailable = "staging store unavailable, try again"
	msgNoRows             = "extraction returned no rows"
	msgTimedOut           = "extraction did not finish in time"
)

// Defaults for zero Options fields.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 30
	DefaultMaxRows      = 50000
)

// PresetLister supplies saved mappings that StartCSV may apply.
type PresetLister interface {
	ListPresets(ctx context.Context) ([]mapping.Preset, error)
}

// Options configures a Coordinator. Staging and Transactions are required.
type Options struct {
	Staging      staging.Store
	Dispatcher   extraction.Dispatcher
	Transactions ledger.Store
	Presets      PresetLister
	Limiter      *UploadLimiter

	// Audit receives session events. Nil disables the audit trail.
	Audit          ledger.AuditStore
	AuditQueueSize int

	PollInterval time.Duration
	PollAttempts int
	MaxRows      int
}

// Coordinator drives import sessions from intake to commit.
//
// CSV sessions go Idle -> Mapping -> Reviewing -> Committed. Document
// sessions go Idle -> Dispatched -> Polling -> Ready -> Reviewing ->
// Committed, with TimedOut and Failed as exits from the polling leg.
// Any unfinished session can be cancelled.
type Coordinator struct {
	staging    staging.Store
	dispatcher extraction.Dispatcher
	txns       ledger.Store
	presets    PresetLister
	limiter    *UploadLimiter
	audit      *auditor

	interval time.Duration
	attempts int
	maxRows  int
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	// pollers run under baseCtx so Shutdown can stop them all.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// NewCoordinator validates opts and returns a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Staging == nil {
		return nil, errors.New("coordinator: staging store is required")
	}
	if opts.Transactions == nil {
		return nil, errors.New("coordinator: transaction store is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultPollAttempts
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Limiter == nil {
		opts.Limiter = NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime)
	}

	var audit *auditor
	if opts.Audit != nil {
		audit = newAuditor(opts.Audit, opts.AuditQueueSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		staging:    opts.Staging,
		dispatcher: opts.Dispatcher,
		txns:       opts.Transactions,
		presets:    opts.Presets,
		limiter:    opts.Limiter,
		audit:      audit,
		interval:   opts.PollInterval,
		attempts:   opts.PollAttempts,
		maxRows:    opts.MaxRows,
		now:        time.Now,
		sessions:   make(map[string]*session),
		baseCtx:    ctx,
		cancelBase: cancel,
	}, nil
}

// DocumentsEnabled reports whether StartDocument can dispatch.
func (c *Coordinator) DocumentsEnabled() bool {
	return c.dispatcher != nil
}

// LimiterStatus reports dispatch slot usage.
func (c *Coordinator) LimiterStatus() UploadLimiterStatus {
	return c.limiter.Status()
}

// WaitForDispatches blocks until no document dispatch holds a slot.
func (c *Coordinator) WaitForDispatches(ctx context.Context) error {
	return c.limiter.WaitForDrain(ctx)
}

func (c *Coordinator) newSession(kind Kind, filename string) *session {
	now := c.now().UTC()
	return &session{Session: Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Filename:  filename,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// lookup returns the session for id. Caller must hold c.mu.
func (c *Coordinator) lookup(id string) (*session, error) {
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Start sniffs data and begins a CSV or document session accordingly.
func (c *Coordinator) Start(ctx context.Context, filename string, data []byte) (Session, error) {
	kind, contentType, err := DetectFileKind(filename, data)
	if err != nil {
		return Session{}, err
	}
	if kind == FileKindCSV {
		return c.StartCSV(ctx, filename, bytes.NewReader(data))
	}
	return c.StartDocument(ctx, filename, contentType, data)
}

// StartCSV parses r, proposes a mapping and leaves the session in Mapping.
// A saved preset whose headers match the file is applied on top of the
// proposal.
func (c *Coordinator) StartCSV(ctx context.Context, filename string, r io.Reader) (Session, error) {
	table, err := mapping.ReadCSV(r)
	if err != nil {
		return Session{}, err
	}
	if len(table.Rows) > c.maxRows {
		return Session{}, fmt.Errorf("%w: %d rows exceeds limit of %d", ErrTooManyRows, len(table.Rows), c.maxRows)
	}

	s := c.newSession(KindCSV, filename)
	s.Encoding = table.Encoding
	s.Headers = table.Headers
	s.Candidates = table.Rows
	s.Mapping = mapping.Propose(table.Headers)

	if preset, ok := c.matchPreset(ctx, table.Headers); ok {
		s.Mapping = applyPreset(s.Mapping, preset, table.Headers)
		s.Preset = preset.Name
	}

	if err := s.moveTo(StateMapping, c.now().UTC()); err != nil {
		return Session{}, err
	}

	c.mu.Lock()
	c.sessions[s.ID] = s
	snap := s.snapshot()
	started := auditEntry(ctx, s, ledger.ActionImportStarted)
	c.mu.Unlock()

	started.RowsAffected = len(table.Rows)
	c.audit.record(started)

	logging.WithSession(ctx, s.ID, "").Info("csv import started",
		"filename", filename,
		"rows", len(table.Rows),
		"encoding", table.Encoding,
		"preset", s.Preset,
	)
	return snap, nil
}

func (c *Coordinator) matchPreset(ctx context.Context, headers []string) (mapping.Preset, bool) {
	if c.presets == nil {
		return mapping.Preset{}, false
	}
	presets, err := c.presets.ListPresets(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("preset lookup failed", "error", err)
		return mapping.Preset{}, false
	}
	matches := mapping.MatchPresets(headers, presets)
	if len(matches) == 0 {
		return mapping.Preset{}, false
	}
	return matches[0].Preset, true
}

// applyPreset overlays preset assignments whose column exists in headers.
func applyPreset(proposed mapping.Mapping, preset mapping.Preset, headers []string) mapping.Mapping {
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[h] = true
	}
	out := proposed.Clone()
	for _, a := range preset.Mapping {
		if have[a.Column] {
			out = out.Set(a.Field, a.Column)
		}
	}
	return out
}

// SetMapping replaces a CSV session's mapping. From Reviewing it returns the
// session to Mapping and discards review edits.
func (c *Coordinator) SetMapping(id string, m mapping.Mapping) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if s.Kind != KindCSV {
		return Session{}, fmt.Errorf("%w: mapping applies to csv imports only", ErrInvalidTransition)
	}
	if s.committing {
		return Session{}, ErrSessionBusy
	}

	switch s.State {
	case StateMapping:
	case StateReviewing:
		if err := s.moveTo(StateMapping, c.now().UTC()); err != nil {
			return Session{}, err
		}
		s.Review = nil
	default:
		return Session{}, fmt.Errorf("%w: cannot change mapping in state %s", ErrInvalidTransition, s.State)
	}

	s.Mapping = m.Clone()
	s.Report = nil
	s.UpdatedAt = c.now().UTC()
	return s.snapshot(), nil
}

// Validate checks a CSV session's mapping and rows.
//
// Form errors keep the session in Mapping and are returned wrapped in
// mapping.ErrInvalidMapping. Otherwise every candidate row becomes a review
// record and the session moves to Reviewing; row errors are kept in the
// report and block only Commit.
func (c *Coordinator) Validate(ctx context.Context, id string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if s.State != StateMapping {
		return Session{}, fmt.Errorf("%w: cannot validate in state %s", ErrInvalidTransition, s.State)
	}

	report := mapping.Validate(s.Mapping, s.Candidates)
	s.Report = &report
	s.UpdatedAt = c.now().UTC()

	entry := auditEntry(ctx, s, ledger.ActionMappingValidated)
	entry.RowsAffected = report.Total
	if report.HasFormErrors() {
		entry.Reason = report.Err().Error()
		c.audit.record(entry)
		return s.snapshot(), report.Err()
	}
	c.audit.record(entry)

	review := make([]mapping.Record, len(s.Candidates))
	for i, row := range s.Candidates {
		review[i] = s.Mapping.Rekey(row)
	}
	s.Review = review

	if err := s.moveTo(StateReviewing, c.now().UTC()); err != nil {
		return Session{}, err
	}

	logging.WithSession(ctx, s.ID, "").Info("mapping validated",
		"rows", report.Total,
		"error_rows", report.ErrorRows,
	)
	return s.snapshot(), nil
}

// Get returns a snapshot of session id.
func (c *Coordinator) Get(id string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.lookup(id)
	if err != nil {
		return Session{}, err
	}
	return s.snapshot(), nil
}

// List returns snapshots of every session, newest first.
func (c *Coordinator) List() []Session {
	c.mu.Lock()
	out := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.snapshot())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Forget drops a finished session.
func (c *Coordinator) Forget(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.lookup(id)
	if err != nil {
		return err
	}
	if !s.State.Terminal() {
		return fmt.Errorf("%w: state %s", ErrSessionActive, s.State)
	}
	delete(c.sessions, id)
	return nil
}

// Prune forgets finished sessions last updated before cutoff and returns
// how many were removed.
func (c *Coordinator) Prune(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, s := range c.sessions {
		if s.State.Terminal() && s.UpdatedAt.Before(cutoff) {
			delete(c.sessions, id)
			n++
		}
	}
	return n
}

// Shutdown stops every poller, waits for them to exit and then flushes the
// audit queue, giving up when ctx ends. Sessions stay in their current state.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancelBase()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.audit.close(ctx); err != nil {
		return err
	}
	slog.Info("import coordinator stopped")
	return nil
}
