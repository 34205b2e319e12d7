package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
)

// previewResponse is the outcome of a stateless validation.
type previewResponse struct {
	Headers []string        `json:"headers"`
	Mapping mapping.Mapping `json:"mapping"`
	Report  mapping.Report  `json:"report"`
}

// handlePreview validates rows against a mapping without creating a
// session. Without a mapping one is proposed from the headers.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	rows, err := decodeRows(req.Rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(rows) > s.cfg.Upload.MaxRows {
		s.fail(w, r, fmt.Errorf("%w: %d rows exceeds limit of %d", core.ErrTooManyRows, len(rows), s.cfg.Upload.MaxRows))
		return
	}

	headers, candidates := mapping.CandidatesFromMaps(rows)
	if len(req.Headers) > 0 {
		headers = req.Headers
	}
	m := req.Mapping
	if m == nil {
		m = mapping.Propose(headers)
	}

	writeJSON(w, previewResponse{
		Headers: headers,
		Mapping: m,
		Report:  mapping.Validate(m, candidates),
	})
}

// handleBulkTransactions validates destination-keyed rows and writes them
// in one batch. Any row error rejects the whole request.
func (s *Server) handleBulkTransactions(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	rows, err := decodeRows(req.Rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(rows) == 0 {
		s.fail(w, r, core.ErrNothingToCommit)
		return
	}
	if len(rows) > s.cfg.Upload.MaxRows {
		s.fail(w, r, fmt.Errorf("%w: %d rows exceeds limit of %d", core.ErrTooManyRows, len(rows), s.cfg.Upload.MaxRows))
		return
	}

	_, candidates := mapping.CandidatesFromMaps(rows)
	report := mapping.Validate(mapping.Identity(), candidates)
	if !report.Valid() {
		s.respondErrorDetails(w, r, report.Err(), http.StatusUnprocessableEntity, report.RowErrors())
		return
	}

	inserted, err := s.txns.InsertBatch(r.Context(), report.Committable())
	if err != nil {
		s.fail(w, r, fmt.Errorf("commit: %w", err))
		return
	}

	logging.FromContext(r.Context()).Info("bulk transactions committed", "inserted", inserted)
	writeJSON(w, map[string]any{"success": true, "inserted": inserted})
}
