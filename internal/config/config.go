// Package config loads executor settings from the environment, an optional
// .env file and an optional executor.yaml.
//
// Precedence, highest first: real environment variables, .env entries (which
// godotenv copies into the environment without overriding existing ones),
// executor.yaml, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sakif/script-executor/internal/executor/process"
	"github.com/sakif/script-executor/internal/handler"
	"github.com/sakif/script-executor/internal/workspace"
)

// envKeys maps each config key to the environment variable that sets it.
var envKeys = map[string]string{
	"port":              "PORT",
	"timeout_seconds":   "EXECUTION_TIMEOUT_SECONDS",
	"shared_secret":     "EXECUTOR_SHARED_SECRET",
	"workdir":           "EXECUTOR_WORKDIR",
	"script_name":       "EXECUTOR_SCRIPT_NAME",
	"output_dir":        "EXECUTOR_OUTPUT_DIR_NAME",
	"interpreter":       "EXECUTOR_INTERPRETER",
	"interpreter_args":  "EXECUTOR_INTERPRETER_ARGS",
	"isolation":         "EXECUTOR_ISOLATION",
	"max_request_bytes": "EXECUTOR_MAX_REQUEST_BYTES",
	"rate_limit":        "EXECUTOR_RATE_LIMIT",
	"rate_burst":        "EXECUTOR_RATE_BURST",
	"log_level":         "EXECUTOR_LOG_LEVEL",
}

type Config struct {
	Port            int     `mapstructure:"port"`
	TimeoutSeconds  float64 `mapstructure:"timeout_seconds"`
	SharedSecret    string  `mapstructure:"shared_secret"`
	Workdir         string  `mapstructure:"workdir"`
	ScriptName      string  `mapstructure:"script_name"`
	OutputDir       string  `mapstructure:"output_dir"`
	Interpreter     string  `mapstructure:"interpreter"`
	InterpreterArgs string  `mapstructure:"interpreter_args"`
	Isolation       string  `mapstructure:"isolation"`
	MaxRequestBytes int64   `mapstructure:"max_request_bytes"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst"`
	LogLevel        string  `mapstructure:"log_level"`
}

// Options controls where Load looks for files. The zero value uses ".env"
// and executor.yaml in the working directory.
type Options struct {
	EnvFile    string
	ConfigFile string
}

// Load reads the configuration. Missing .env and executor.yaml files are not
// errors; a malformed executor.yaml is.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// A missing .env is the normal case in containers.
	_ = godotenv.Load(envFile)

	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("executor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	ws := workspace.DefaultConfig()
	proc := process.DefaultConfig()

	v.SetDefault("port", 8080)
	v.SetDefault("timeout_seconds", proc.Timeout.Seconds())
	v.SetDefault("shared_secret", "")
	v.SetDefault("workdir", ws.Root)
	v.SetDefault("script_name", ws.ScriptName)
	v.SetDefault("output_dir", ws.OutputDir)
	v.SetDefault("interpreter", proc.Interpreter)
	v.SetDefault("interpreter_args", strings.Join(proc.Args, " "))
	v.SetDefault("isolation", string(ws.Isolation))
	v.SetDefault("max_request_bytes", handler.DefaultMaxRequestBytes)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("log_level", "info")
}

// Validate rejects settings the executor cannot start with. An empty shared
// secret is allowed: the gate refuses every request instead.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be positive, got %g", c.TimeoutSeconds))
	}
	if strings.TrimSpace(c.Interpreter) == "" {
		errs = append(errs, errors.New("interpreter must not be empty"))
	}
	switch workspace.Isolation(c.Isolation) {
	case workspace.IsolationPerRequest, workspace.IsolationShared:
	default:
		errs = append(errs, fmt.Errorf("unknown isolation mode %q", c.Isolation))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate_burst must be at least 1, got %d", c.RateBurst))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Timeout returns the execution deadline as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// Workspace returns the workspace layout.
func (c *Config) Workspace() workspace.Config {
	cfg := workspace.DefaultConfig()
	cfg.Root = c.Workdir
	cfg.ScriptName = c.ScriptName
	cfg.OutputDir = c.OutputDir
	cfg.Isolation = workspace.Isolation(c.Isolation)
	return cfg
}

// Process returns the runner settings.
func (c *Config) Process() process.Config {
	cfg := process.DefaultConfig()
	cfg.Interpreter = c.Interpreter
	cfg.Args = strings.Fields(c.InterpreterArgs)
	cfg.Timeout = c.Timeout()
	return cfg
}

// ParseLevel accepts debug, info, warn or error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
