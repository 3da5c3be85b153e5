package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/statimport/internal/core"
	"github.com/go-chi/chi/v5"
)

const (
	// UploaderHeader identifies who uploaded a file.
	UploaderHeader = "X-Uploader-ID"

	defaultUploader = "anonymous"

	// multipartOverhead is allowed on top of the file size limit for form
	// boundaries and part headers.
	multipartOverhead = 1 << 20
)

// handleCreateImport runs the import pipeline on the uploaded "file" part and
// returns the ImportResult.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errInvalidForm, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusBadRequest)
		return
	}

	result, err := s.service.ImportCSV(withRequestMetadata(r.Context(), r), uploaderID(r), header.Filename, data)
	if err != nil {
		respondError(w, r, err, statusForError(err))
		return
	}

	writeJSON(w, statusForResult(result), result)
}

// handleListImports returns upload history, newest first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)
	if limit == 0 {
		limit = core.DefaultHistoryLimit
	}
	offset := parseIntParam(r, "offset", 0)

	imports, err := s.service.ListImports(r.Context(), limit, offset)
	if err != nil {
		respondError(w, r, err, statusForError(err))
		return
	}
	if imports == nil {
		imports = []core.ImportRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"imports": imports,
		"limit":   limit,
		"offset":  offset,
	})
}

// handleGetImport returns an import with its logs and latest summary.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := importIDParam(w, r)
	if !ok {
		return
	}

	details, err := s.service.GetImportDetails(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusForError(err))
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// handleFailedRows downloads an import's validation errors as CSV.
func (s *Server) handleFailedRows(w http.ResponseWriter, r *http.Request) {
	id, ok := importIDParam(w, r)
	if !ok {
		return
	}

	out, err := s.service.GetFailedRowsCSV(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import-%d-failed-rows.csv"`, id))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

// importIDParam parses {importID}, writing a 404 when it is not a positive
// integer.
func importIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "importID"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, errBadImportID, http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func uploaderID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UploaderHeader)); id != "" {
		return id
	}
	return defaultUploader
}

// parseIntParam parses a non-negative integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
