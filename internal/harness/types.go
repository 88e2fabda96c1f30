package harness

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/adapter-harness/internal/logging"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

// DefaultHostDependency is the specifier adapters require the host library by.
const DefaultHostDependency = "@iobroker/adapter-core"

// TerminateExitCode is the exit code the host uses when an adapter asks to
// be terminated without giving one.
const TerminateExitCode = 11

var (
	// ErrNotCallable is returned when a compact-mode module does not export
	// a function.
	ErrNotCallable = errors.New("compact mode module does not export a function")
	// ErrNoReadyHandler is returned when the adapter registered no ready
	// handler.
	ErrNoReadyHandler = errors.New("adapter did not register a ready handler")
	// ErrNotStarted is returned by lifecycle calls made before StartAdapter.
	ErrNotStarted = errors.New("adapter has not been started")
)

// Options describes the adapter under test.
type Options struct {
	Name     string // adapter name, default "test"
	Instance int
	// Compact runs the adapter in compact mode: the module exports an
	// initializer instead of registering itself on load.
	Compact bool

	// Objects pre-populate the store before the adapter is loaded.
	Objects []store.Object
	// Mocks replaces modules by specifier. Values are converted with
	// jsval.ToJS on the host runtime.
	Mocks map[string]any
	// AdapterConfig is the native configuration of the instance object.
	AdapterConfig map[string]any
	// HostDependency is the specifier the mock surface is installed under.
	HostDependency string
	// ForwardChanges delivers store changes of subscribed ids to the
	// adapter's change handlers.
	ForwardChanges bool
	LogLevel       string // adapter.log.level
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "test"
	}
	if o.HostDependency == "" {
		o.HostDependency = DefaultHostDependency
	}
	if o.AdapterConfig == nil {
		o.AdapterConfig = map[string]any{}
	}
	return o
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the harness logger.
func WithLogger(logger *logging.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records load cycles, outcomes and stub calls.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(h *Harness) {
		h.metrics = metrics
	}
}

// WithTracer reports the phases of each start (build, load, invoke, settle)
// as spans under one adapter.start span.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(h *Harness) {
		h.tracer = tracer
	}
}

// Outcome is the classified result of starting an adapter.
type Outcome struct {
	Exited          bool          `json:"exited"`
	ExitCode        int           `json:"exitCode"`
	Terminated      bool          `json:"terminated"`
	TerminateReason string        `json:"terminateReason,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Success reports whether the adapter neither exited nor asked to be
// terminated.
func (o *Outcome) Success() bool {
	return !o.Exited && !o.Terminated
}

// Kind names the outcome for metrics and output.
func (o *Outcome) Kind() string {
	switch {
	case o.Terminated:
		return monitoring.OutcomeTerminated
	case o.Exited:
		return monitoring.OutcomeExited
	default:
		return monitoring.OutcomeSuccess
	}
}

// LoadError reports that the adapter module could not be brought up:
// either the file could not be loaded or it broke the module contract.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load adapter %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
