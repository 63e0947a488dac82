// Package process implements executor.Runner with a local child process.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sakif/script-executor/internal/executor"
)

// Runner implements the executor.Runner interface using os/exec.
type Runner struct {
	config Config
	logger *slog.Logger
}

var _ executor.Runner = (*Runner)(nil)

// New validates cfg and returns a Runner. A missing interpreter is only
// logged: every run will then report a launch failure.
func New(cfg Config, logger *slog.Logger) (*Runner, error) {
	if cfg.Interpreter == "" {
		return nil, errors.New("process: interpreter is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("process: timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.WaitDelay < 0 {
		cfg.WaitDelay = 0
	}

	if path, err := exec.LookPath(cfg.Interpreter); err != nil {
		logger.Warn("interpreter not found, executions will fail to launch",
			slog.String("interpreter", cfg.Interpreter),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("interpreter resolved", slog.String("path", path))
	}

	return &Runner{config: cfg, logger: logger}, nil
}

// Timeout returns the deadline applied to every run.
func (r *Runner) Timeout() time.Duration {
	return r.config.Timeout
}

// Run executes job and blocks until the child has exited and been reaped.
//
// Only the deadline ends a run early: cancellation of ctx (for example a
// disconnected HTTP client) is deliberately not propagated, because a
// half-finished run would still leave its workspace in use.
func (r *Runner) Run(ctx context.Context, job executor.Job) executor.Outcome {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.Timeout)
	defer cancel()

	args := append(slices.Clone(r.config.Args), job.ScriptPath)
	cmd := exec.CommandContext(runCtx, r.config.Interpreter, args...)
	cmd.Dir = job.Dir
	cmd.Env = append(inheritedEnv(os.Environ()), job.Env...)
	if job.Stdin != nil {
		cmd.Stdin = strings.NewReader(*job.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The child leads its own process group so the deadline can take down
	// everything it spawned, not just the interpreter.
	setProcessGroup(cmd)
	var killed atomic.Bool
	cmd.Cancel = func() error {
		killed.Store(true)
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = r.config.WaitDelay

	if err := cmd.Start(); err != nil {
		out := executor.LaunchFailed(err)
		out.Duration = time.Since(start)
		return out
	}

	waitErr := cmd.Wait()

	// Reap stragglers: background jobs the script left running after a normal
	// exit are still in the group.
	if err := killProcessGroup(cmd); err != nil {
		r.logger.Warn("failed to kill process group", slog.String("error", err.Error()))
	}

	out := r.outcome(cmd, waitErr, killed.Load(), stdout.Bytes(), stderr.Bytes())
	out.Duration = time.Since(start)
	return out
}

func (r *Runner) outcome(cmd *exec.Cmd, waitErr error, killed bool, stdout, stderr []byte) executor.Outcome {
	if killed {
		return executor.TimedOut(r.config.Timeout, stdout, stderr)
	}
	if waitErr == nil {
		return executor.Completed(0, stdout, stderr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return executor.Completed(exitStatus(exitErr.ProcessState), stdout, stderr)
	}

	// The child exited but its output pipes had to be force-closed
	// (exec.ErrWaitDelay) or copying failed; the exit status is still valid.
	if cmd.ProcessState != nil {
		r.logger.Warn("child exited with pipe error", slog.String("error", waitErr.Error()))
		return executor.Completed(exitStatus(cmd.ProcessState), stdout, stderr)
	}

	return executor.LaunchFailed(waitErr)
}

// privateEnvPrefix marks the executor's own settings, the shared secret among
// them. Scripts never see these; the job adds back what they need.
const privateEnvPrefix = "EXECUTOR_"

func inheritedEnv(environ []string) []string {
	return slices.DeleteFunc(environ, func(kv string) bool {
		return strings.HasPrefix(kv, privateEnvPrefix)
	})
}
