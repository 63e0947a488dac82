// Package model defines the data structures exchanged with callers of the executor.
//
// The `json:"..."` tags are the wire contract. Fields that may be absent
// (error, output_files) are pointers or slices WITHOUT omitempty, so they
// serialize as an explicit null rather than disappearing from the body.
package model

import "github.com/sakif/script-executor/internal/apperror"

// NoExitCode is reported when the script never produced an exit status
// (timeout or launch failure).
const NoExitCode = -1

// ExecutionRequest is the inbound payload. InputData is a pointer so that
// "absent" (no stdin at all) can be told apart from "" (empty stdin).
type ExecutionRequest struct {
	Code      string  `json:"code"`
	InputData *string `json:"input_data"`
}

// OutputFile is one regular file harvested from the output directory.
//
// Content is a []byte, and encoding/json marshals []byte as standard base64,
// which is exactly the content_base64 wire format.
type OutputFile struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content_base64"`
}

// StructuredError is the service-level error attached to a response.
type StructuredError struct {
	Type    apperror.Kind `json:"type"`
	Message string        `json:"message"`
}

// ExecutionResponse is the single response shape for every execution outcome.
//
// A script that exits non-zero is NOT a service error: Error stays nil and
// the failure is reported through ExitCode and Stderr alone.
type ExecutionResponse struct {
	Stdout      string           `json:"stdout"`
	Stderr      string           `json:"stderr"`
	Error       *StructuredError `json:"error"`
	ExitCode    int              `json:"exit_code"`
	OutputFiles []OutputFile     `json:"output_files"`
}
