package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/adapter-harness/internal/logging"
)

// Host is one emulated host process: a JS runtime driven by an event loop,
// with its own process object, module cache and extension loaders.
//
// All JS state belongs to the loop goroutine. Go code reaches it through
// Do; methods documented as loop-only must be called from inside a Do
// callback (or from JS running on the loop).
type Host struct {
	config Config
	logger *logging.Logger

	loop     *eventloop.EventLoop
	registry *require.Registry
	vm       *goja.Runtime
	natives  *require.RequireModule

	doMu    sync.Mutex
	running atomic.Bool
	closed  atomic.Bool

	// loop-only
	process    *goja.Object
	main       *Module
	cache      map[string]*Module
	cacheObj   *goja.Object
	extMu      sync.Mutex
	extensions map[string]*Extension
	installed  map[string]*Extension

	exitCode atomic.Int64
	exited   atomic.Bool

	consoleMu sync.Mutex
	console   []LogEntry
}

// NewHost starts an event loop and prepares the host globals.
func NewHost(config Config, logger *logging.Logger) (*Host, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.Cwd == "" {
		config.Cwd = DefaultConfig().Cwd
	}

	h := &Host{
		config:     config,
		logger:     logger,
		cache:      make(map[string]*Module),
		extensions: make(map[string]*Extension),
		installed:  make(map[string]*Extension),
	}

	// Only core and registry-native modules come out of the registry; files
	// go through the host's own resolver so each module's compile step can
	// be intercepted.
	h.registry = require.NewRegistry(require.WithLoader(func(string) ([]byte, error) {
		return nil, require.ModuleFileDoesNotExistError
	}))
	h.registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&hostPrinter{host: h}))

	h.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(h.registry),
		eventloop.EnableConsole(false),
	)
	h.loop.Start()

	setup := make(chan error, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		setup <- h.setup(vm)
	})
	if err := <-setup; err != nil {
		h.loop.Terminate()
		return nil, fmt.Errorf("failed to set up host: %w", err)
	}

	return h, nil
}

// setup configures global objects. Runs on the loop.
func (h *Host) setup(vm *goja.Runtime) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during setup: %v", r)
		}
	}()

	h.vm = vm
	h.natives = h.registry.Enable(vm)

	console.Enable(vm)
	buffer.Enable(vm)
	url.Enable(vm)

	if err := vm.Set("global", vm.GlobalObject()); err != nil {
		return err
	}
	if err := h.setupProcess(vm); err != nil {
		return err
	}

	// require is per module, never global
	if err := vm.GlobalObject().Delete("require"); err != nil {
		return fmt.Errorf("cannot remove global require: %w", err)
	}

	h.main = h.newMainModule()
	h.cacheObj = h.newCacheObject()
	h.extensions[".js"] = h.jsExtension()
	h.extensions[".json"] = h.jsonExtension()
	return nil
}

// Do runs fn on the loop and waits for it. Cancelling ctx interrupts any JS
// fn is executing; Do then still waits for fn to unwind.
//
// An unsandboxed process.exit inside fn ends the job with *ExitError. JS
// exceptions come back as *goja.Exception.
func (h *Host) Do(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	if !h.doMu.TryLock() {
		return ErrHostBusy
	}
	defer h.doMu.Unlock()

	done := make(chan error, 1)
	scheduled := h.loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.ClearInterrupt()
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- h.run(vm, fn)
	})
	if !scheduled {
		return ErrHostClosed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		h.vm.Interrupt(ctx.Err())
		err := <-done
		h.loop.RunOnLoop(func(vm *goja.Runtime) { vm.ClearInterrupt() })
		return err
	}
}

func (h *Host) run(vm *goja.Runtime, fn func(*goja.Runtime) error) (err error) {
	h.running.Store(true)
	defer h.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = h.recovered(vm, r)
		}
	}()

	return h.classify(fn(vm))
}

// recovered turns a panic escaping a job into an error.
func (h *Host) recovered(vm *goja.Runtime, r any) error {
	switch v := r.(type) {
	case *goja.Exception:
		return v
	case *goja.InterruptedError:
		return h.classify(v)
	case goja.Value:
		if ex := vm.Try(func() { panic(v) }); ex != nil {
			return ex
		}
		return errors.New("sandbox job panicked with an empty value")
	case error:
		return fmt.Errorf("panic in sandbox job: %w", v)
	default:
		return fmt.Errorf("panic in sandbox job: %v", v)
	}
}

func (h *Host) classify(err error) error {
	var exit *ExitRequest
	if errors.As(err, &exit) {
		return &ExitError{Code: exit.Code}
	}
	return err
}

// Schedule runs fn on the loop without waiting. Panics are logged.
func (h *Host) Schedule(fn func(vm *goja.Runtime)) bool {
	return h.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Scheduled sandbox job panicked", zap.Any("panic", r))
			}
		}()
		fn(vm)
	})
}

// Running reports whether a Do job is executing.
func (h *Host) Running() bool {
	return h.running.Load()
}

// ExitCode returns the code of the last unsandboxed process.exit call.
func (h *Host) ExitCode() (int, bool) {
	return int(h.exitCode.Load()), h.exited.Load()
}

// Console returns recorded console output.
func (h *Host) Console() []LogEntry {
	h.consoleMu.Lock()
	defer h.consoleMu.Unlock()
	return append([]LogEntry{}, h.console...)
}

// Cwd returns the working directory relative entry files resolve against.
func (h *Host) Cwd() string {
	return h.config.Cwd
}

// Logger returns the host logger.
func (h *Host) Logger() *logging.Logger {
	return h.logger
}

// Close stops the loop and cancels all timers.
func (h *Host) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.doMu.Lock()
	defer h.doMu.Unlock()
	h.loop.Terminate()
	return nil
}

// hostPrinter records console output and forwards it to zap.
type hostPrinter struct {
	host *Host
}

func (p *hostPrinter) Log(s string)   { p.host.print("log", s) }
func (p *hostPrinter) Warn(s string)  { p.host.print("warn", s) }
func (p *hostPrinter) Error(s string) { p.host.print("error", s) }

func (h *Host) print(level, msg string) {
	if h.config.Console {
		h.consoleMu.Lock()
		h.console = append(h.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		h.consoleMu.Unlock()
	}

	fields := []zap.Field{zap.String("source", "console")}
	switch level {
	case "error":
		h.logger.Error(msg, fields...)
	case "warn":
		h.logger.Warn(msg, fields...)
	default:
		h.logger.Info(msg, fields...)
	}
}
