package web

// imports.go handles the bulk import endpoints. Uploads are spooled to a
// temp file so the import worker can stream them after the request returns;
// the importer owns and removes the spool file.

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koffiyao/cartes/internal/importer"
	"github.com/koffiyao/cartes/internal/logging"
)

// allowedExtensions are the upload formats accepted by the import endpoint.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".txt":  true,
	".xlsx": true,
}

// handleCreateImport accepts a multipart upload and starts an asynchronous
// import, answering 202 with the session id.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", s.cfg.Import.MaxFileSize))
			return
		}
		respondError(w, r, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		respondError(w, r, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q, expected .csv, .txt or .xlsx", ext))
		return
	}

	path, err := s.spool(file, ext)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", s.cfg.Import.MaxFileSize))
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	mode := importer.ModeSmartSync
	if r.FormValue("mode") == string(importer.ModeInsertOnly) {
		mode = importer.ModeInsertOnly
	}

	identity := identityFrom(r.Context())
	id, err := s.imports.Start(r.Context(), importer.StartRequest{
		Path:     path,
		Filename: header.Filename,
		Owner:    identity.Subject,
		Mode:     mode,
		FailFast: r.FormValue("failFast") == "true",
	})
	if err != nil {
		if errors.Is(err, importer.ErrTooManyImports) {
			respondError(w, r, http.StatusTooManyRequests, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	logging.FromContext(r.Context()).Info("import accepted",
		"session_id", id, "file", header.Filename, "mode", mode, "owner", identity.Subject)
	respondJSON(w, r, http.StatusAccepted, map[string]string{"sessionId": id})
}

// spool copies the upload to a temp file, preserving the extension so the
// importer can pick the right parser.
func (s *Server) spool(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(s.cfg.Import.TempDir, "import-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return tmp.Name(), nil
}

// handleListImports returns recent sessions, newest first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.imports.List(r.Context(), s.cfg.Sessions.Retention)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// handleGetImport returns one session snapshot for progress polling.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	session, err := s.imports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, importer.ErrSessionNotFound) {
			respondError(w, r, http.StatusNotFound, "import session not found")
			return
		}
		respondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, r, http.StatusOK, session)
}

// handleCancelImport requests cooperative cancellation.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	session, err := s.imports.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrSessionNotFound):
			respondError(w, r, http.StatusNotFound, "import session not found")
		case errors.Is(err, importer.ErrAlreadyTerminal):
			respondError(w, r, http.StatusConflict, "import already finished")
		default:
			respondError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, r, http.StatusOK, session)
}
