// Package respond standardises how JSON bodies and errors are written.
//
// CONSISTENT ERROR FORMAT:
// Every rejected request gets the same body shape as a normal execution
// response, so a caller only ever has to parse one structure:
//
//	{"stdout": null, "stderr": null, "error": {"type": "InputError", "message": "..."},
//	 "exit_code": -1, "output_files": null}
//
// Only the status code and the error field differ between failures.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/model"
)

// InternalMessage is the only text a caller sees for a fault it did not cause.
const InternalMessage = "An unexpected internal error occurred in the executor service."

// ErrorBody is the wire shape of a request that never reached execution.
type ErrorBody struct {
	Stdout      *string               `json:"stdout"`
	Stderr      *string               `json:"stderr"`
	Error       model.StructuredError `json:"error"`
	ExitCode    int                   `json:"exit_code"`
	OutputFiles []model.OutputFile    `json:"output_files"`
}

// JSON sends data with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; anything set
// after the first Write is silently ignored.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// Error maps an error to its HTTP status and writes the structured body.
//
// ERROR MAPPING:
//
//	apperror.ErrInput         → 400
//	apperror.ErrUnauthorized  → 401
//	apperror.ErrRateLimited   → 429
//	apperror.ErrMisconfigured → 500
//	anything else             → 500 with a generic message
//
// Unknown errors never leak their text to the caller.
func Error(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		JSON(w, http.StatusInternalServerError, NewErrorBody(apperror.KindInternal, InternalMessage))
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	JSON(w, status, NewErrorBody(apperror.KindOf(err), appErr.Message))
}

// NewErrorBody builds the body for a rejected request.
func NewErrorBody(kind apperror.Kind, message string) ErrorBody {
	return ErrorBody{
		Error:    model.StructuredError{Type: kind, Message: message},
		ExitCode: model.NoExitCode,
	}
}
