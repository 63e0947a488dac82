package executor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/script-executor/internal/metrics"
	"github.com/sakif/script-executor/internal/model"
	"github.com/sakif/script-executor/internal/workspace"
)

// OutputDirEnv tells the script where to write files it wants returned.
const OutputDirEnv = "EXECUTOR_OUTPUT_DIR"

// Workspaces is the part of workspace.Manager the service needs.
type Workspaces interface {
	Prepare(ctx context.Context, code string) (*workspace.Workspace, error)
}

// Service implements Executor on top of a workspace manager and a Runner.
type Service struct {
	workspaces Workspaces
	runner     Runner
	counters   *metrics.Counters
	logger     *slog.Logger
}

// COMPILE-TIME INTERFACE CHECK
var _ Executor = (*Service)(nil)

// NewService wires the pipeline. counters may be nil.
func NewService(ws Workspaces, runner Runner, counters *metrics.Counters, logger *slog.Logger) *Service {
	return &Service{
		workspaces: ws,
		runner:     runner,
		counters:   counters,
		logger:     logger,
	}
}

// Execute runs req.Code once and always produces a response for anything that
// happens inside the bounded-execution path, including workspace and launch
// failures. A non-nil error means the service itself is unusable.
func (s *Service) Execute(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResponse, error) {
	if s.workspaces == nil || s.runner == nil {
		return nil, errors.New("executor: service is not initialised")
	}
	s.counters.IncRequest()

	ws, err := s.workspaces.Prepare(ctx, req.Code)
	if err != nil {
		s.logger.Error("workspace preparation failed", slog.String("error", err.Error()))
		s.counters.IncLaunchFailure()
		return Assemble(LaunchFailed(err), nil, nil), nil
	}
	defer func() {
		if err := ws.Release(); err != nil {
			s.logger.Warn("workspace release failed",
				slog.String("workspace", ws.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	out := s.runner.Run(ctx, Job{
		ScriptPath: ws.ScriptPath,
		Dir:        ws.Dir,
		Stdin:      req.InputData,
		Env:        []string{OutputDirEnv + "=" + ws.OutputDir},
	})

	var (
		files      []model.OutputFile
		harvestErr error
	)
	if out.Status != StatusLaunchFailed {
		files, harvestErr = ws.Harvest()
		if harvestErr != nil {
			s.counters.IncHarvestError()
			s.logger.Error("error retrieving output files",
				slog.String("workspace", ws.ID),
				slog.String("error", harvestErr.Error()),
			)
		}
	}

	s.record(ws.ID, out, len(files))
	return Assemble(out, files, harvestErr), nil
}

func (s *Service) record(id string, out Outcome, files int) {
	switch out.Status {
	case StatusCompleted:
		s.counters.IncCompleted(out.ExitCode != 0)
		s.logger.Info("script finished",
			slog.String("workspace", id),
			slog.Int("exit_code", out.ExitCode),
			slog.Duration("duration", out.Duration),
			slog.Int("output_files", files),
		)
	case StatusTimedOut:
		s.counters.IncTimeout()
		s.logger.Warn("script execution timed out",
			slog.String("workspace", id),
			slog.Duration("timeout", out.Timeout),
		)
	case StatusLaunchFailed:
		s.counters.IncLaunchFailure()
		s.logger.Error("script launch failed",
			slog.String("workspace", id),
			slog.String("error", errString(out.Err)),
		)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
