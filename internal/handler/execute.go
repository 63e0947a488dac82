package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/executor"
	"github.com/sakif/script-executor/internal/respond"
)

// DefaultMaxRequestBytes caps the size of an execution request body.
const DefaultMaxRequestBytes = 5 << 20

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	exec      executor.Executor
	validator *RequestValidator
	maxBytes  int64
	logger    *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler. maxBytes <= 0 selects
// DefaultMaxRequestBytes.
func NewExecuteHandler(exec executor.Executor, validator *RequestValidator, maxBytes int64, logger *slog.Logger) *ExecuteHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBytes
	}
	return &ExecuteHandler{
		exec:      exec,
		validator: validator,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// HandleExecute validates the body, runs the script and returns the result.
//
// STATUS CODES:
// Anything that happens once the script is handed to the executor (timeouts,
// launch failures, non-zero exits) is a 200 with the details in the body.
// Only a bad request (400) or a fault in this handler itself (500) changes
// the status.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, apperror.InvalidInput("", fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit)))
			return
		}
		h.logger.Warn("failed to read request body", slog.String("error", err.Error()))
		respond.Error(w, apperror.InvalidInput("", msgBody))
		return
	}

	req, err := h.validator.Decode(body)
	if err != nil {
		h.logger.Warn("invalid execution request", slog.String("error", err.Error()))
		respond.Error(w, err)
		return
	}

	h.logger.Info("executing script",
		slog.Int("code_bytes", len(req.Code)),
		slog.Bool("has_input", req.InputData != nil),
	)

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		h.logger.Error("unhandled execution failure", slog.String("error", err.Error()))
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, result)
}
