package main

import (
	"github.com/spf13/cobra"

	"github.com/sakif/script-executor/internal/metrics"
	"github.com/sakif/script-executor/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the executor HTTP service",
	Long: `Start the HTTP service.

POST /internal/execute-script runs a script. Callers must send the shared
secret (EXECUTOR_SHARED_SECRET) in the X-Internal-Auth-Token header.

Examples:
  executor serve
  executor serve --port 9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	counters := metrics.New()
	svc, err := newService(cfg.Workspace(), cfg.Process(), counters, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:             cfg.Port,
		SharedSecret:     cfg.SharedSecret,
		ExecutionTimeout: cfg.Timeout(),
		MaxRequestBytes:  cfg.MaxRequestBytes,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
	}, logger, svc, counters)
	if err != nil {
		return err
	}

	// Blocks until SIGINT/SIGTERM.
	return srv.Start()
}
