package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/script-executor/internal/model"
	"github.com/sakif/script-executor/internal/workspace"
)

var (
	inputFlag       string
	inputFileFlag   string
	saveOutputsFlag string
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Execute one script locally and print the JSON result",
	Long: `Execute a script file exactly as the service would and print the response
body to stdout. No secret is needed; nothing listens on the network.

The run uses a throwaway workspace under the system temp dir unless
EXECUTOR_WORKDIR is set explicitly.

Examples:
  executor run hello.py
  executor run sum.py --input "1 2 3"
  executor run plot.py --save-outputs ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().StringVar(&inputFlag, "input", "", "Text to send to the script's stdin")
	runCmd.Flags().StringVar(&inputFileFlag, "input-file", "", "File whose contents are sent to the script's stdin")
	runCmd.Flags().StringVar(&saveOutputsFlag, "save-outputs", "", "Directory to write the script's output files into")
	runCmd.MarkFlagsMutuallyExclusive("input", "input-file")
	rootCmd.AddCommand(runCmd)
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}
	req := model.ExecutionRequest{Code: string(code)}

	switch {
	case cmd.Flags().Changed("input"):
		req.InputData = &inputFlag
	case inputFileFlag != "":
		b, err := os.ReadFile(inputFileFlag)
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}
		s := string(b)
		req.InputData = &s
	}

	wsCfg := cfg.Workspace()
	if _, set := os.LookupEnv("EXECUTOR_WORKDIR"); !set {
		root, err := os.MkdirTemp("", "executor-run-")
		if err != nil {
			return fmt.Errorf("creating workspace root: %w", err)
		}
		defer os.RemoveAll(root)
		wsCfg.Root = root
		wsCfg.Isolation = workspace.IsolationPerRequest
	}

	svc, err := newService(wsCfg, cfg.Process(), nil, logger)
	if err != nil {
		return err
	}

	resp, err := svc.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}

	if saveOutputsFlag != "" {
		if err := saveOutputs(saveOutputsFlag, resp.OutputFiles); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func saveOutputs(dir string, files []model.OutputFile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	for _, f := range files {
		// Harvested names are plain base names; Base guards the write anyway.
		path := filepath.Join(dir, filepath.Base(f.Filename))
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return fmt.Errorf("saving %s: %w", f.Filename, err)
		}
	}
	return nil
}
