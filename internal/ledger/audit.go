package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of event recorded in the import audit log.
type AuditAction string

const (
	ActionImportStarted      AuditAction = "import_started"
	ActionDocumentDispatched AuditAction = "document_dispatched"
	ActionExtractionReceived AuditAction = "extraction_received"
	ActionExtractionTimedOut AuditAction = "extraction_timed_out"
	ActionPollRetried        AuditAction = "extraction_poll_retried"
	ActionImportFailed       AuditAction = "import_failed"
	ActionMappingValidated   AuditAction = "mapping_validated"
	ActionRowAdd             AuditAction = "row_add"
	ActionCellEdit           AuditAction = "cell_edit"
	ActionRowDelete          AuditAction = "row_delete"
	ActionImportCommitted    AuditAction = "import_committed"
	ActionCommitFailed       AuditAction = "commit_failed"
	ActionImportCancelled    AuditAction = "import_cancelled"
)

// AuditSeverity ranks audit entries for review.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// SeverityFor returns the severity recorded for action.
func SeverityFor(action AuditAction) AuditSeverity {
	switch action {
	case ActionImportCommitted, ActionCommitFailed, ActionRowDelete:
		return SeverityHigh
	case ActionImportStarted, ActionDocumentDispatched, ActionExtractionReceived, ActionMappingValidated:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// AuditEntry is one event in the life of an import session.
type AuditEntry struct {
	ID             string        `json:"id"`
	Action         AuditAction   `json:"action"`
	Severity       AuditSeverity `json:"severity"`
	SessionID      string        `json:"sessionId"`
	Filename       string        `json:"filename,omitempty"`
	CorrelationKey string        `json:"correlationKey,omitempty"`
	IPAddress      string        `json:"ipAddress,omitempty"`
	UserAgent      string        `json:"userAgent,omitempty"`
	Line           int           `json:"line,omitempty"`
	Field          string        `json:"field,omitempty"`
	OldValue       string        `json:"oldValue,omitempty"`
	NewValue       string        `json:"newValue,omitempty"`
	RowsAffected   int           `json:"rowsAffected,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// DefaultAuditLimit caps ListAudit when the filter sets no limit.
const DefaultAuditLimit = 100

// AuditFilter narrows ListAudit. Zero fields match everything.
type AuditFilter struct {
	SessionID string
	Action    AuditAction
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// AuditStore keeps the import audit log. ListAudit returns newest first.
type AuditStore interface {
	RecordAudit(ctx context.Context, e AuditEntry) (AuditEntry, error)
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// prepareAudit fills the generated fields of e.
func prepareAudit(e AuditEntry, now time.Time) AuditEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Severity == "" {
		e.Severity = SeverityFor(e.Action)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	return e
}

// MemoryAuditStore keeps the audit log in process.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []AuditEntry
	now     func() time.Time
}

var _ AuditStore = (*MemoryAuditStore)(nil)

// NewMemoryAuditStore returns an empty audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{now: time.Now}
}

func (s *MemoryAuditStore) RecordAudit(_ context.Context, e AuditEntry) (AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e = prepareAudit(e, s.now())
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryAuditStore) ListAudit(_ context.Context, filter AuditFilter) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.Limit <= 0 {
		filter.Limit = DefaultAuditLimit
	}

	// Walk backwards so later inserts come first among equal timestamps
	out := make([]AuditEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !e.CreatedAt.Before(filter.Until) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset >= len(out) {
		return []AuditEntry{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
