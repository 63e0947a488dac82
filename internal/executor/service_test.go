package executor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/metrics"
	"github.com/sakif/script-executor/internal/model"
	"github.com/sakif/script-executor/internal/workspace"
)

// fakeRunner records the job it was given and lets the test decide what the
// "script" did, including writing output files.
type fakeRunner struct {
	job     Job
	calls   int
	outcome Outcome
	effect  func(job Job)
}

func (f *fakeRunner) Run(ctx context.Context, job Job) Outcome {
	f.calls++
	f.job = job
	if f.effect != nil {
		f.effect(job)
	}
	return f.outcome
}

type failingWorkspaces struct{ err error }

func (f failingWorkspaces) Prepare(context.Context, string) (*workspace.Workspace, error) {
	return nil, f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestWorkspaces(t *testing.T, isolation workspace.Isolation) *workspace.Manager {
	t.Helper()
	cfg := workspace.DefaultConfig()
	cfg.Root = t.TempDir()
	cfg.Isolation = isolation
	m, err := workspace.New(cfg, newTestLogger())
	require.NoError(t, err)
	return m
}

func outputDirOf(job Job) string {
	for _, kv := range job.Env {
		if v, ok := strings.CutPrefix(kv, OutputDirEnv+"="); ok {
			return v
		}
	}
	return ""
}

func TestService_Execute_Completed(t *testing.T) {
	counters := metrics.New()
	runner := &fakeRunner{outcome: Completed(0, []byte("hi\n"), nil)}
	svc := NewService(newTestWorkspaces(t, workspace.IsolationPerRequest), runner, counters, newTestLogger())

	input := "42"
	resp, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "print(input())", InputData: &input})
	require.NoError(t, err)

	assert.Nil(t, resp.Error)
	assert.Equal(t, 0, resp.ExitCode)
	assert.Equal(t, "hi", resp.Stdout)
	assert.Nil(t, resp.OutputFiles)

	require.Equal(t, 1, runner.calls)
	require.NotNil(t, runner.job.Stdin)
	assert.Equal(t, "42", *runner.job.Stdin)
	assert.Equal(t, runner.job.Dir, filepath.Dir(runner.job.ScriptPath))
	assert.Equal(t, filepath.Join(runner.job.Dir, "outputs"), outputDirOf(runner.job))

	// Per-request workspaces are gone once the call returns.
	_, statErr := os.Stat(runner.job.Dir)
	assert.True(t, os.IsNotExist(statErr))

	snap := counters.Snapshot()
	assert.Equal(t, uint64(1), snap.Requests)
	assert.Equal(t, uint64(1), snap.Completed)
}

func TestService_Execute_ScriptSeesItsCode(t *testing.T) {
	var seen string
	runner := &fakeRunner{
		outcome: Completed(0, nil, nil),
		effect: func(job Job) {
			b, _ := os.ReadFile(job.ScriptPath)
			seen = string(b)
		},
	}
	svc := NewService(newTestWorkspaces(t, workspace.IsolationPerRequest), runner, nil, newTestLogger())

	_, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "x = 1\nprint(x)\n"})
	require.NoError(t, err)
	assert.Equal(t, "x = 1\nprint(x)\n", seen)
	assert.Nil(t, runner.job.Stdin)
}

func TestService_Execute_HarvestsOutputFiles(t *testing.T) {
	runner := &fakeRunner{
		outcome: Completed(0, nil, nil),
		effect: func(job Job) {
			dir := outputDirOf(job)
			os.WriteFile(filepath.Join(dir, "result.csv"), []byte("a,b\n1,2\n"), 0o644)
			os.WriteFile(filepath.Join(dir, "plot.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644)
		},
	}
	svc := NewService(newTestWorkspaces(t, workspace.IsolationPerRequest), runner, nil, newTestLogger())

	resp, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "..."})
	require.NoError(t, err)
	require.Len(t, resp.OutputFiles, 2)
	assert.Equal(t, "plot.png", resp.OutputFiles[0].Filename)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, resp.OutputFiles[0].Content)
	assert.Equal(t, "result.csv", resp.OutputFiles[1].Filename)
}

func TestService_Execute_TimeoutStillHarvests(t *testing.T) {
	counters := metrics.New()
	runner := &fakeRunner{
		outcome: TimedOut(2*time.Second, []byte("partial"), nil),
		effect: func(job Job) {
			os.WriteFile(filepath.Join(outputDirOf(job), "progress.txt"), []byte("50%"), 0o644)
		},
	}
	svc := NewService(newTestWorkspaces(t, workspace.IsolationPerRequest), runner, counters, newTestLogger())

	resp, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "loop"})
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperror.KindScriptTimeout, resp.Error.Type)
	assert.Equal(t, -1, resp.ExitCode)
	assert.Equal(t, "partial", resp.Stdout)
	require.Len(t, resp.OutputFiles, 1)
	assert.Equal(t, uint64(1), counters.Snapshot().Timeouts)
}

func TestService_Execute_LaunchFailure(t *testing.T) {
	runner := &fakeRunner{outcome: LaunchFailed(errors.New("fork/exec python3: no such file or directory"))}
	svc := NewService(newTestWorkspaces(t, workspace.IsolationPerRequest), runner, nil, newTestLogger())

	resp, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "print(1)"})
	require.NoError(t, err, "launch failures are reported in the body, not as an error")
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperror.KindInternal, resp.Error.Type)
	assert.Equal(t, "fork/exec python3: no such file or directory", resp.Stderr)
	assert.Nil(t, resp.OutputFiles)
}

func TestService_Execute_WorkspaceFailureIsLaunchFailure(t *testing.T) {
	counters := metrics.New()
	runner := &fakeRunner{}
	svc := NewService(failingWorkspaces{err: errors.New("workspace: writing script: read-only file system")},
		runner, counters, newTestLogger())

	resp, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "print(1)"})
	require.NoError(t, err)
	assert.Equal(t, 0, runner.calls, "no process is started without a workspace")
	require.NotNil(t, resp.Error)
	assert.Equal(t, apperror.KindInternal, resp.Error.Type)
	assert.Equal(t, -1, resp.ExitCode)
	assert.Contains(t, resp.Stderr, "read-only file system")
	assert.Equal(t, uint64(1), counters.Snapshot().LaunchFailures)
}

func TestService_Execute_SharedWorkspaceResetBetweenRuns(t *testing.T) {
	runs := 0
	var secondSaw []string
	runner := &fakeRunner{outcome: Completed(0, nil, nil)}
	runner.effect = func(job Job) {
		runs++
		dir := outputDirOf(job)
		if runs == 1 {
			os.WriteFile(filepath.Join(dir, "first.txt"), []byte("1"), 0o644)
			return
		}
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			secondSaw = append(secondSaw, e.Name())
		}
	}
	svc := NewService(newTestWorkspaces(t, workspace.IsolationShared), runner, nil, newTestLogger())

	first, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "one"})
	require.NoError(t, err)
	require.Len(t, first.OutputFiles, 1)

	second, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "two"})
	require.NoError(t, err)
	assert.Empty(t, secondSaw, "second run must not observe the first run's outputs")
	assert.Nil(t, second.OutputFiles)
}

func TestService_Execute_Uninitialised(t *testing.T) {
	svc := NewService(nil, nil, nil, newTestLogger())
	_, err := svc.Execute(context.Background(), model.ExecutionRequest{Code: "x"})
	assert.Error(t, err)
}
