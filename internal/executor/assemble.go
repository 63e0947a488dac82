package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/model"
)

// Assemble converts one Outcome plus the harvested files into the response.
//
//	Completed    → error nil, exit code as reported (non-zero is still success)
//	TimedOut     → ScriptTimeoutError, exit -1, partial output + termination note
//	LaunchFailed → InternalServerError, exit -1, stderr = launch error
//
// harvestErr never turns into a service error: it is appended to stderr.
func Assemble(out Outcome, files []model.OutputFile, harvestErr error) *model.ExecutionResponse {
	resp := &model.ExecutionResponse{ExitCode: model.NoExitCode}

	switch out.Status {
	case StatusCompleted:
		resp.Stdout = decode(out.Stdout)
		resp.Stderr = decode(out.Stderr)
		resp.ExitCode = out.ExitCode

	case StatusTimedOut:
		secs := formatSeconds(out.Timeout)
		stderr := append(append([]byte{}, out.Stderr...),
			fmt.Sprintf("\n--- Execution forcefully terminated after %s seconds. ---", secs)...)
		resp.Stdout = decode(out.Stdout)
		resp.Stderr = decode(stderr)
		resp.Error = &model.StructuredError{
			Type:    apperror.KindScriptTimeout,
			Message: fmt.Sprintf("Execution timed out after %s seconds.", secs),
		}

	case StatusLaunchFailed:
		msg := "unknown launch failure"
		if out.Err != nil {
			msg = out.Err.Error()
		}
		resp.Stderr = msg
		resp.Error = &model.StructuredError{
			Type:    apperror.KindInternal,
			Message: "An unexpected error occurred during script execution: " + msg,
		}

	default:
		resp.Error = &model.StructuredError{
			Type:    apperror.KindInternal,
			Message: fmt.Sprintf("unrecognised execution status %d", out.Status),
		}
	}

	if harvestErr != nil {
		resp.Stderr = strings.TrimSpace(resp.Stderr +
			fmt.Sprintf("\n--- Error retrieving output files: %s ---", harvestErr))
	}

	if len(files) > 0 {
		resp.OutputFiles = files
	}
	return resp
}

// decode turns captured bytes into trimmed text. Invalid UTF-8 becomes U+FFFD
// instead of an error.
func decode(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), "\uFFFD"))
}

// formatSeconds renders 10s as "10" and 1500ms as "1.5".
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
