// Command executor runs untrusted scripts behind an authenticated HTTP API.
//
// Two subcommands share one configuration:
//
//	executor serve              start the HTTP service
//	executor run script.py      execute one file locally and print the result
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/script-executor/internal/config"
	"github.com/sakif/script-executor/internal/executor"
	"github.com/sakif/script-executor/internal/executor/process"
	"github.com/sakif/script-executor/internal/metrics"
	"github.com/sakif/script-executor/internal/workspace"
)

var (
	configFlag  string
	envFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "executor",
	Short: "Run scripts under a deadline and return their output",
	Long: `executor runs a submitted script as a child interpreter process with a hard
wall-clock deadline and returns stdout, stderr, the exit code and any files the
script wrote to its output directory.

Configuration comes from the environment, an optional .env file and an
optional executor.yaml.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file (default ./executor.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "Path to a .env file (default ./.env if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and builds the logger it
// asks for.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.Options{EnvFile: envFileFlag, ConfigFile: configFlag})
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

// newService wires the workspace manager and process runner into an
// execution service.
func newService(wsCfg workspace.Config, procCfg process.Config, counters *metrics.Counters, logger *slog.Logger) (*executor.Service, error) {
	ws, err := workspace.New(wsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("preparing workspace root: %w", err)
	}
	runner, err := process.New(procCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring runner: %w", err)
	}
	return executor.NewService(ws, runner, counters, logger), nil
}
