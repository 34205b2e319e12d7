package web

import (
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/core"
)

// healthResponse reports liveness plus dispatch capacity.
type healthResponse struct {
	Status    string                   `json:"status"`
	Documents bool                     `json:"documents"`
	Sessions  int                      `json:"sessions"`
	Uploads   core.UploadLimiterStatus `json:"uploads"`
}

// handleHealth is unauthenticated and cheap; it does not touch storage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:    "ok",
		Documents: s.coord.DocumentsEnabled(),
		Sessions:  len(s.coord.List()),
		Uploads:   s.coord.LimiterStatus(),
	})
}
