package process

import (
	"time"
)

// Config holds the configuration for host process execution.
type Config struct {
	// Interpreter is the program that runs the script, e.g. "python3".
	Interpreter string
	// Args are passed to the interpreter before the script path.
	Args []string
	// Timeout is the hard wall-clock limit for one run.
	Timeout time.Duration
	// WaitDelay bounds how long output pipes may stay open after the child
	// exits or is killed (descendants that escaped the process group can
	// otherwise hold them forever).
	WaitDelay time.Duration
}

// DefaultConfig runs Python unbuffered with a 10 second deadline.
func DefaultConfig() Config {
	return Config{
		Interpreter: "python3",
		// -u keeps stdout unbuffered so partial output survives a timeout kill
		Args:      []string{"-u"},
		Timeout:   10 * time.Second,
		WaitDelay: 2 * time.Second,
	}
}
