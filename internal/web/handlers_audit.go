package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// maxAuditLimit bounds one page of the audit log.
const maxAuditLimit = 1000

var auditActions = []interface{}{
	ledger.ActionImportStarted,
	ledger.ActionDocumentDispatched,
	ledger.ActionExtractionReceived,
	ledger.ActionExtractionTimedOut,
	ledger.ActionPollRetried,
	ledger.ActionImportFailed,
	ledger.ActionMappingValidated,
	ledger.ActionRowAdd,
	ledger.ActionCellEdit,
	ledger.ActionRowDelete,
	ledger.ActionImportCommitted,
	ledger.ActionCommitFailed,
	ledger.ActionImportCancelled,
}

// auditQuery is the query string of GET /api/audit.
type auditQuery struct {
	Session string
	Action  ledger.AuditAction
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
	Format  string
}

func (q auditQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Action, validation.In(auditActions...)),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(maxAuditLimit)),
		validation.Field(&q.Offset, validation.Min(0)),
		validation.Field(&q.Format, validation.In("json", "csv")),
	)
}

func (q auditQuery) filter() ledger.AuditFilter {
	return ledger.AuditFilter{
		SessionID: q.Session,
		Action:    q.Action,
		Since:     q.Since,
		Until:     q.Until,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
}

func parseAuditQuery(r *http.Request) (auditQuery, error) {
	v := r.URL.Query()
	q := auditQuery{
		Session: v.Get("session"),
		Action:  ledger.AuditAction(v.Get("action")),
		Format:  v.Get("format"),
	}
	if q.Format == "" {
		q.Format = "json"
	}

	var err error
	if q.Since, err = queryTime(v.Get("since")); err != nil {
		return q, fmt.Errorf("%w: since: %v", errInvalidRequest, err)
	}
	if q.Until, err = queryTime(v.Get("until")); err != nil {
		return q, fmt.Errorf("%w: until: %v", errInvalidRequest, err)
	}
	if q.Limit, err = queryInt(v.Get("limit")); err != nil {
		return q, fmt.Errorf("%w: limit: %v", errInvalidRequest, err)
	}
	if q.Offset, err = queryInt(v.Get("offset")); err != nil {
		return q, fmt.Errorf("%w: offset: %v", errInvalidRequest, err)
	}

	if err := q.Validate(); err != nil {
		return q, fmt.Errorf("%w: %w", errInvalidRequest, err)
	}
	return q, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// handleListAudit returns audit entries across sessions, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, []ledger.AuditEntry{})
		return
	}

	q, err := parseAuditQuery(r)
	if err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	entries, err := s.audit.ListAudit(r.Context(), q.filter())
	if err != nil {
		s.respondError(w, r, fmt.Errorf("list audit: %w", err), http.StatusInternalServerError)
		return
	}

	if q.Format == "csv" {
		writeAuditCSV(w, entries)
		return
	}
	writeJSON(w, entries)
}

// handleImportAudit returns one session's audit history.
func (s *Server) handleImportAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 || limit > maxAuditLimit {
		s.fail(w, r, fmt.Errorf("%w: limit must be between 0 and %d", errInvalidRequest, maxAuditLimit))
		return
	}

	entries, err := s.coord.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("list audit: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

var auditCSVHeader = []string{
	"created_at", "action", "severity", "session_id", "filename", "correlation_key",
	"ip_address", "line", "field", "old_value", "new_value", "rows_affected", "reason",
}

func writeAuditCSV(w http.ResponseWriter, entries []ledger.AuditEntry) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="import_audit.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(auditCSVHeader)
	for _, e := range entries {
		_ = cw.Write([]string{
			e.CreatedAt.Format(time.RFC3339),
			string(e.Action),
			string(e.Severity),
			e.SessionID,
			e.Filename,
			e.CorrelationKey,
			e.IPAddress,
			optionalInt(e.Line),
			e.Field,
			e.OldValue,
			e.NewValue,
			optionalInt(e.RowsAffected),
			e.Reason,
		})
	}
	cw.Flush()
}

func optionalInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
