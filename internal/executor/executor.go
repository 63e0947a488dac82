// Package executor runs submitted code and turns whatever happened into one
// model.ExecutionResponse.
//
// The pipeline is:
//
//	Workspace.Prepare → Runner.Run (bounded by a deadline) → Workspace.Harvest → Assemble
//
// Runner implementations live in subpackages (see executor/process).
package executor

import (
	"context"
	"time"

	"github.com/sakif/script-executor/internal/model"
)

// Executor is the interface the HTTP layer depends on.
type Executor interface {
	Execute(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResponse, error)
}

// Job is everything a Runner needs to start one script.
type Job struct {
	ScriptPath string
	Dir        string  // working directory of the child
	Stdin      *string // nil means no input at all
	Env        []string
}

// Status tags which variant of Outcome applies. Exactly one per run.
type Status int

const (
	StatusCompleted Status = iota
	StatusTimedOut
	StatusLaunchFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusTimedOut:
		return "timed_out"
	case StatusLaunchFailed:
		return "launch_failed"
	default:
		return "unknown"
	}
}

// Outcome is the raw result of a bounded run.
//
//	Completed:    ExitCode, Stdout, Stderr are set (ExitCode may be non-zero).
//	TimedOut:     Stdout, Stderr hold whatever was produced before the kill.
//	LaunchFailed: Err describes why the process could not run.
type Outcome struct {
	Status   Status
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
	Timeout  time.Duration // the deadline that applied to the run
	Duration time.Duration
}

// Runner executes a Job under a hard wall-clock deadline. It never returns
// while the child process is still alive.
type Runner interface {
	Run(ctx context.Context, job Job) Outcome
}

// Completed builds a Completed outcome.
func Completed(exitCode int, stdout, stderr []byte) Outcome {
	return Outcome{Status: StatusCompleted, ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
}

// TimedOut builds a TimedOut outcome.
func TimedOut(timeout time.Duration, stdout, stderr []byte) Outcome {
	return Outcome{Status: StatusTimedOut, ExitCode: model.NoExitCode, Stdout: stdout, Stderr: stderr, Timeout: timeout}
}

// LaunchFailed builds a LaunchFailed outcome.
func LaunchFailed(err error) Outcome {
	return Outcome{Status: StatusLaunchFailed, ExitCode: model.NoExitCode, Err: err}
}
