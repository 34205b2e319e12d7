package web

import (
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.presets.ListPresets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if presets == nil {
		presets = []mapping.Preset{}
	}
	writeJSON(w, presets)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := s.presets.GetPreset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, preset)
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	preset, err := s.presets.CreatePreset(r.Context(), mapping.Preset{
		Name:    req.Name,
		Headers: req.Headers,
		Mapping: req.Mapping,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, preset)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.presets.DeletePreset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// handleMatchPresets returns presets that fit the given headers, best first.
func (s *Server) handleMatchPresets(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	presets, err := s.presets.ListPresets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	matches := mapping.MatchPresets(req.Headers, presets)
	if matches == nil {
		matches = []mapping.PresetMatch{}
	}
	writeJSON(w, matches)
}
