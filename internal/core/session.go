package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
)

// Kind is the source of an import session.
type Kind string

const (
	KindCSV      Kind = "csv"
	KindDocument Kind = "document"
)

// Session is a point-in-time copy of an import session.
// Mutating it has no effect on the coordinator.
type Session struct {
	ID             string                 `json:"id"`
	Kind           Kind                   `json:"kind"`
	Filename       string                 `json:"filename"`
	State          State                  `json:"state"`
	CorrelationKey string                 `json:"correlationKey,omitempty"`
	Encoding       string                 `json:"encoding,omitempty"`
	Headers        []string               `json:"headers,omitempty"`
	Candidates     []mapping.CandidateRow `json:"candidates,omitempty"`
	Mapping        mapping.Mapping        `json:"mapping,omitempty"`
	Preset         string                 `json:"preset,omitempty"`
	Review         []mapping.Record       `json:"review,omitempty"`
	Report         *mapping.Report        `json:"report,omitempty"`
	Attempts       int                    `json:"attempts"`
	MaxAttempts    int                    `json:"maxAttempts,omitempty"`
	Inserted       int64                  `json:"inserted"`
	Err            string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// session is the coordinator's mutable record. All fields are guarded by
// Coordinator.mu.
type session struct {
	Session

	// pollGen identifies the current poller so a stale one cannot write
	// after a cancel or retry.
	pollGen    int
	cancelPoll context.CancelFunc

	// committing is set while InsertBatch is in flight.
	committing bool
}

func (s *session) snapshot() Session {
	out := s.Session
	out.Headers = append([]string(nil), s.Headers...)
	out.Mapping = s.Mapping.Clone()

	if s.Candidates != nil {
		out.Candidates = make([]mapping.CandidateRow, len(s.Candidates))
		for i, row := range s.Candidates {
			c := make(mapping.CandidateRow, len(row))
			for k, v := range row {
				c[k] = v
			}
			out.Candidates[i] = c
		}
	}

	if s.Review != nil {
		out.Review = make([]mapping.Record, len(s.Review))
		for i, rec := range s.Review {
			out.Review[i] = rec.Clone()
		}
	}

	if s.Report != nil {
		r := *s.Report
		r.FormErrors = append([]mapping.FormError(nil), s.Report.FormErrors...)
		r.Rows = append([]mapping.ValidatedRow(nil), s.Report.Rows...)
		out.Report = &r
	}
	return out
}

// moveTo applies a transition and stamps the session.
func (s *session) moveTo(to State, now time.Time) error {
	if err := checkTransition(s.State, to); err != nil {
		return err
	}
	s.State = to
	s.UpdatedAt = now
	return nil
}

func (s *session) stopPolling() {
	if s.cancelPoll != nil {
		s.cancelPoll()
		s.cancelPoll = nil
	}
	s.pollGen++
}
