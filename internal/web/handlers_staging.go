package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	"github.com/google/uuid"
)

// stagingKeyParam reads the correlation key from ?key= or its alias ?id=.
func stagingKeyParam(r *http.Request) (string, error) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.URL.Query().Get("id")
	}
	if key == "" {
		return "", fmt.Errorf("%w: key or id query parameter is required", errInvalidRequest)
	}
	if err := staging.ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// handleStagingPut is the write-back endpoint. The caller is untrusted; the
// only check beyond the key format is that rows is an array of objects.
func (s *Server) handleStagingPut(w http.ResponseWriter, r *http.Request) {
	var req stagingPutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	var payload staging.Payload
	if err := unmarshalNumbers(req.Rows, &payload); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: rows must be an array of objects", errInvalidRequest), http.StatusBadRequest)
		return
	}
	if payload == nil {
		payload = staging.Payload{}
	}

	if err := s.staging.Put(r.Context(), req.Key, payload); err != nil {
		s.fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("staged rows written", "key", req.Key, "rows", len(payload))
	writeJSON(w, map[string]bool{"success": true})
}

// handleStagingTake returns and removes the entry for the key. An absent
// entry is a successful {"data": null}, not an error.
func (s *Server) handleStagingTake(w http.ResponseWriter, r *http.Request) {
	key, err := stagingKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	payload, err := s.staging.TakeOnce(r.Context(), key)
	if errors.Is(err, staging.ErrNotFound) {
		writeJSON(w, map[string]any{"data": nil})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, map[string]any{"data": payload})
}

// handleStagingDelete removes the entry whether or not it exists.
func (s *Server) handleStagingDelete(w http.ResponseWriter, r *http.Request) {
	key, err := stagingKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.staging.Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// handleStagingLink fetches a JSON export from a share link and stages it.
// A key is generated when the caller does not supply one.
func (s *Server) handleStagingLink(w http.ResponseWriter, r *http.Request) {
	if s.links == nil {
		s.fail(w, r, fmt.Errorf("%w: link import is disabled", errInvalidRequest))
		return
	}

	var req stagingLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}
	if req.Key == "" {
		req.Key = uuid.NewString()
	}

	rows, err := s.links.Fetch(r.Context(), req.Link)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.staging.Put(r.Context(), req.Key, staging.Payload(rows)); err != nil {
		s.fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("staged rows from link",
		"key", req.Key,
		"filename", req.Filename,
		"rows", len(rows),
	)
	writeJSONStatus(w, http.StatusCreated, map[string]any{"key": req.Key, "rows": len(rows)})
}

func unmarshalNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
