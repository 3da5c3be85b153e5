package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request ID, then
// returned to the client as the user-facing message and code from
// core.MapError.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/statimport/internal/core"
	"github.com/JonMunkholm/statimport/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var (
	errNoFile      = errors.New("no file provided")
	errInvalidForm = errors.New("invalid csv upload form")
	errBadImportID = errors.New("import not found: id must be a positive integer")
)

// respondError logs err and writes its mapped user message as JSON.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusForError picks the HTTP status for an error returned by the service.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case core.MapError(err).Code == "FILE001":
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// statusForResult maps a pipeline outcome to an HTTP status.
func statusForResult(res *core.ImportResult) int {
	switch {
	case res.Duplicate:
		return http.StatusConflict
	case res.Success:
		return http.StatusOK
	case res.Status == core.StatusValidationFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
