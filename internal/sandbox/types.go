package sandbox

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrHostClosed is returned when scheduling work on a closed host.
	ErrHostClosed = errors.New("sandbox host is closed")
	// ErrHostBusy is returned by Do while another job holds the host,
	// including a Do issued from inside a running job.
	ErrHostBusy = errors.New("sandbox host is busy")
	// ErrCycleInProgress is returned when a loader is already installed for
	// an extension.
	ErrCycleInProgress = errors.New("load cycle already in progress")
	// ErrModuleNotFound is returned when a specifier does not resolve.
	ErrModuleNotFound = errors.New("module not found")
)

// Config defines host process configuration.
type Config struct {
	Argv        []string          // process.argv
	Cwd         string            // process.cwd(), base for relative entry files
	Env         map[string]string // extra process.env entries
	NodeVersion string            // process.version
	Console     bool              // record console output
}

// DefaultConfig returns the default host configuration.
func DefaultConfig() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	return Config{
		Argv:        []string{"node", "harness"},
		Cwd:         cwd,
		NodeVersion: "v18.19.0",
		Console:     true,
	}
}

// LogEntry represents console output.
type LogEntry struct {
	Level   string    // log, warn, error
	Message string    // formatted message
	Time    time.Time // timestamp
}

// ExitRequest is the interrupt value of an unsandboxed process.exit call.
type ExitRequest struct {
	Code int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("process.exit(%d) called", e.Code)
}

// ExitError is returned by Do when the job ended through process.exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("sandboxed code exited the host process with code %d", e.Code)
}
