package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/go-chi/chi/v5"
)

// handleStartImport accepts a multipart upload and starts a CSV or document
// session depending on what the file sniffs as.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(w, r, fmt.Errorf("%w: limit is %d bytes", errFileTooBig, maxSize))
			return
		}
		s.fail(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, errNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.Start(ctx, header.Filename, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSONStatus(w, http.StatusCreated, sess)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.coord.List())
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

// handleForgetImport removes a finished session from the list.
func (s *Server) handleForgetImport(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Forget(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	sess, err := s.coord.SetMapping(chi.URLParam(r, "id"), req.Mapping)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

// handleValidate checks the mapping. Form errors come back as 422 with the
// offending fields in details; row errors do not fail the request.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.Validate(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, mapping.ErrInvalidMapping) && sess.Report != nil {
		s.respondErrorDetails(w, r, err, http.StatusUnprocessableEntity, sess.Report.FormErrors)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	var req rowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.AddRow(ctx, chi.URLParam(r, "id"), req.record())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, sess)
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	index, err := rowIndex(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req cellRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorDetails(w, r, err, http.StatusBadRequest, validationDetails(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.UpdateCell(ctx, chi.URLParam(r, "id"), index, mapping.Field(req.Field), req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	index, err := rowIndex(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.DeleteRow(ctx, chi.URLParam(r, "id"), index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleRetryPoll(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.RetryPoll(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

// handleCommit writes the review set. Blocking row errors are listed in
// details so the client can highlight them.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.Commit(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, core.ErrRowsInvalid) && sess.Report != nil {
		s.respondErrorDetails(w, r, err, http.StatusUnprocessableEntity, sess.Report.RowErrors())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.coord.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, sess)
}

func rowIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("%w: row index must be an integer", errInvalidRequest)
	}
	return index, nil
}
