package core

// audit.go records session lifecycle and review edits to a ledger.AuditStore.
// Entries are queued and written by one worker goroutine so the coordinator
// never waits on the store while holding its lock. A full queue drops the
// entry with a warning; the import itself never fails because of auditing.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/ledger"
)

// Defaults for the audit queue.
const (
	DefaultAuditQueueSize = 256
	auditWriteTimeout     = 5 * time.Second
)

type auditor struct {
	store ledger.AuditStore
	queue chan ledger.AuditEntry
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newAuditor(store ledger.AuditStore, size int) *auditor {
	if size <= 0 {
		size = DefaultAuditQueueSize
	}
	a := &auditor{
		store: store,
		queue: make(chan ledger.AuditEntry, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *auditor) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if _, err := a.store.RecordAudit(ctx, e); err != nil {
			slog.Error("audit write failed",
				"action", e.Action,
				"session_id", e.SessionID,
				"error", err,
			)
		}
		cancel()
	}
}

// record queues e. Safe on a nil auditor and after close.
func (a *auditor) record(e ledger.AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- e:
	default:
		slog.Warn("audit queue full, entry dropped", "action", e.Action, "session_id", e.SessionID)
	}
}

// close stops intake and waits for queued entries to be written.
func (a *auditor) close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// auditEntry starts an entry for s with the client details in ctx.
// Caller must hold c.mu.
func auditEntry(ctx context.Context, s *session, action ledger.AuditAction) ledger.AuditEntry {
	meta := RequestMetaFrom(ctx)
	return ledger.AuditEntry{
		Action:         action,
		SessionID:      s.ID,
		Filename:       s.Filename,
		CorrelationKey: s.CorrelationKey,
		IPAddress:      meta.IP,
		UserAgent:      meta.UserAgent,
	}
}

// History returns the audit entries for session id, newest first. Entries
// outlive the session, so a forgotten id still has a history.
func (c *Coordinator) History(ctx context.Context, id string, limit int) ([]ledger.AuditEntry, error) {
	if c.audit == nil {
		return []ledger.AuditEntry{}, nil
	}
	return c.audit.store.ListAudit(ctx, ledger.AuditFilter{SessionID: id, Limit: limit})
}
