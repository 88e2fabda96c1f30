package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/adapter-harness/internal/adaptermock"
	"github.com/GriffinCanCode/adapter-harness/internal/fixtures"
	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/adapter-harness/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/adapter-harness/internal/logging"
	"github.com/GriffinCanCode/adapter-harness/internal/sandbox"
	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

// Harness runs one adapter module against a mock host on a sandbox host.
type Harness struct {
	host    *sandbox.Host
	opts    Options
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	mu      sync.Mutex
	store   *store.Store         // Protected by mu
	adapter *adaptermock.Adapter // Protected by mu
}

// New creates a harness. The host is shared with the caller, who closes it.
func New(host *sandbox.Host, opts Options, options ...Option) *Harness {
	h := &Harness{
		host:   host,
		opts:   opts.withDefaults(),
		logger: host.Logger(),
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// Store returns the store of the last start, or nil.
func (h *Harness) Store() *store.Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store
}

// Adapter returns the mock surface the adapter constructed during the last
// start, or nil.
func (h *Harness) Adapter() *adaptermock.Adapter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.adapter
}

// InstanceID returns the id of the instance object, system.adapter.<name>.<instance>.
func (h *Harness) InstanceID() string {
	return "system.adapter." + h.opts.Name + "." + strconv.Itoa(h.opts.Instance)
}

// settlement is how a promise returned by the ready handler ended.
type settlement struct {
	outcome *Outcome
	err     error
}

// StartAdapter loads file, invokes its ready handler and classifies how it
// ended. A process.exit or terminate call is an Outcome, not an error. Load
// and contract failures are *LoadError; any other exception thrown by the
// adapter is returned as *goja.Exception.
//
// When the ready handler returns a promise, StartAdapter waits for it to
// settle or for ctx to be done.
func (h *Harness) StartAdapter(ctx context.Context, file string) (*Outcome, error) {
	logger := h.logger.With(zap.String("run_id", uuid.NewString()), zap.String("file", file))
	timer := monitoring.NewTimer(h.metrics)
	span, ctx := h.tracer.StartSpan(ctx, "adapter.start")
	span.SetTag("file", file)
	span.SetTag("compact", strconv.FormatBool(h.opts.Compact))

	outcome, err := h.start(ctx, file)

	kind := monitoring.OutcomeFailed
	if err == nil {
		kind = outcome.Kind()
	}
	duration := timer.Stop(kind)
	h.metrics.RecordOutcome(kind)
	span.SetTag("outcome", kind)
	span.SetError(err)
	h.tracer.Finish(span)

	if err != nil {
		logger.Warn("Adapter start failed", zap.Error(err), zap.Duration("duration", duration))
		return nil, err
	}
	outcome.Duration = duration
	logger.Info("Adapter start classified",
		zap.String("outcome", kind),
		zap.Int("exit_code", outcome.ExitCode),
		zap.String("terminate_reason", outcome.TerminateReason),
		zap.Duration("duration", duration))
	return outcome, nil
}

// phase runs fn inside a child span of ctx.
func (h *Harness) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	span, ctx := h.tracer.StartSpan(ctx, name)
	err := fn(ctx)
	span.SetError(err)
	h.tracer.Finish(span)
	return err
}

func (h *Harness) start(ctx context.Context, file string) (*Outcome, error) {
	var (
		entry string
		st    *store.Store
	)
	err := h.phase(ctx, "build", func(context.Context) error {
		resolved := file
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(h.host.Cwd(), resolved)
		}
		resolved, err := h.host.Resolve(resolved, "")
		if err != nil {
			return &LoadError{File: file, Err: err}
		}
		entry = resolved
		st, err = h.buildStore()
		return err
	})
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.store = st
	h.adapter = nil
	h.mu.Unlock()

	settled := make(chan settlement, 1)
	var (
		outcome *Outcome
		pending bool
	)
	err = h.host.Do(ctx, func(vm *goja.Runtime) error {
		var err error
		outcome, pending, err = h.run(ctx, vm, st, entry, settled)
		return err
	})
	if err != nil {
		var exit *sandbox.ExitError
		if errors.As(err, &exit) {
			return &Outcome{Exited: true, ExitCode: exit.Code}, nil
		}
		return nil, err
	}
	if !pending {
		return outcome, nil
	}

	err = h.phase(ctx, "settle", func(ctx context.Context) error {
		select {
		case s := <-settled:
			outcome = s.outcome
			return s.err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// buildStore creates the store the adapter runs against: the fixture
// objects plus the instance object carrying the native configuration.
func (h *Harness) buildStore() (*store.Store, error) {
	st := store.New()
	if err := fixtures.Seed(st, h.opts.Objects); err != nil {
		return nil, err
	}
	instance := store.Object{
		store.KeyID:   h.InstanceID(),
		store.KeyType: "instance",
		store.KeyCommon: map[string]any{
			"name":    h.opts.Name,
			"enabled": true,
		},
		store.KeyNative: h.opts.AdapterConfig,
	}
	if err := st.PublishObject(instance); err != nil {
		return nil, err
	}
	return st, nil
}

// run loads and invokes the adapter. Runs on the loop. pending is true when
// the outcome arrives later on settled.
func (h *Harness) run(ctx context.Context, vm *goja.Runtime, st *store.Store, entry string, settled chan<- settlement) (*Outcome, bool, error) {
	var (
		m       *sandbox.Module
		outcome *Outcome
	)
	err := h.phase(ctx, "load", func(context.Context) error {
		var err error
		m, outcome, err = h.load(vm, st, entry)
		return err
	})
	if err != nil || outcome != nil {
		return outcome, false, err
	}

	var pending bool
	err = h.phase(ctx, "invoke", func(context.Context) error {
		var err error
		outcome, pending, err = h.invoke(vm, m, entry, settled)
		return err
	})
	return outcome, pending, err
}

// load evaluates the entry module with the mock surface installed. A
// lifecycle outcome reached during evaluation is returned instead of m.
func (h *Harness) load(vm *goja.Runtime, st *store.Store, entry string) (*sandbox.Module, *Outcome, error) {
	exports, err := adaptermock.Module(vm, st, h.mockOptions(), func(a *adaptermock.Adapter) {
		h.mu.Lock()
		h.adapter = a
		h.mu.Unlock()
	})
	if err != nil {
		return nil, nil, err
	}

	mocks := make(map[string]goja.Value, len(h.opts.Mocks)+1)
	for specifier, v := range h.opts.Mocks {
		mocks[specifier] = jsval.ToJS(vm, v)
	}
	mocks[h.opts.HostDependency] = exports

	h.host.Uncache(entry)
	m, err := h.host.LoadModule(entry, sandbox.LoadOptions{
		Mocks:           mocks,
		FakeNotRequired: !h.opts.Compact,
		GlobalPatches: map[string]map[string]goja.Value{
			"process": {"exit": safeExit(vm)},
		},
	})
	if err != nil {
		if o, ok := h.classifyError(err); ok {
			return nil, o, nil
		}
		if isInterrupt(err) {
			return nil, nil, err
		}
		return nil, nil, &LoadError{File: entry, Err: err}
	}
	return m, nil, nil
}

// invoke runs the compact initializer if any and the ready handler. pending
// is true when the outcome arrives later on settled.
func (h *Harness) invoke(vm *goja.Runtime, m *sandbox.Module, entry string, settled chan<- settlement) (outcome *Outcome, pending bool, err error) {
	if h.opts.Compact {
		init, ok := goja.AssertFunction(m.Exports())
		if !ok {
			return nil, false, &LoadError{File: entry, Err: ErrNotCallable}
		}
		if _, err := init(goja.Undefined()); err != nil {
			return h.failed(err)
		}
	}

	a := h.Adapter()
	if a == nil {
		return nil, false, &LoadError{File: entry, Err: ErrNoReadyHandler}
	}
	if _, ok := a.Handler(adaptermock.EventReady); !ok {
		return nil, false, &LoadError{File: entry, Err: ErrNoReadyHandler}
	}

	ret, err := a.Emit(adaptermock.EventReady)
	if err != nil {
		return h.failed(err)
	}
	then, ok := jsval.Thenable(ret)
	if !ok {
		return &Outcome{}, false, nil
	}

	settle := func(s settlement) {
		select {
		case settled <- s:
		default:
		}
	}
	onFulfilled := vm.ToValue(func(goja.FunctionCall) goja.Value {
		settle(settlement{outcome: &Outcome{}})
		return goja.Undefined()
	})
	onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		reason := call.Argument(0)
		if o, ok := h.classify(reason); ok {
			settle(settlement{outcome: o})
		} else {
			settle(settlement{err: exceptionOf(vm, reason)})
		}
		return goja.Undefined()
	})
	if _, err := then(ret, onFulfilled, onRejected); err != nil {
		return h.failed(err)
	}
	return nil, true, nil
}

func (h *Harness) failed(err error) (*Outcome, bool, error) {
	if o, ok := h.classifyError(err); ok {
		return o, false, nil
	}
	return nil, false, err
}

func (h *Harness) mockOptions() adaptermock.Options {
	opts := adaptermock.Options{
		Name:           h.opts.Name,
		Instance:       h.opts.Instance,
		Config:         h.opts.AdapterConfig,
		LogLevel:       h.opts.LogLevel,
		Logger:         h.logger,
		ForwardChanges: h.opts.ForwardChanges,
		Defer: func(fn func()) {
			h.host.Schedule(func(*goja.Runtime) { fn() })
		},
	}
	if h.metrics != nil {
		opts.Observer = h.metrics.StubCalled
	}
	return opts
}

// classifyError recognizes the two markers of a lifecycle outcome on a
// thrown JS value.
func (h *Harness) classifyError(err error) (*Outcome, bool) {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return nil, false
	}
	return h.classify(ex.Value())
}

func (h *Harness) classify(v goja.Value) (*Outcome, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	if code := obj.Get(adaptermock.ProcessExitCodeKey); code != nil && goja.IsNumber(code) {
		return &Outcome{Exited: true, ExitCode: int(code.ToInteger())}, true
	}
	if reason := obj.Get(adaptermock.TerminateReasonKey); reason != nil && goja.IsString(reason) {
		o := &Outcome{Terminated: true, TerminateReason: reason.String()}
		if !h.opts.Compact {
			o.ExitCode = TerminateExitCode
			if code := obj.Get(adaptermock.ExitCodeKey); code != nil && goja.IsNumber(code) {
				o.ExitCode = int(code.ToInteger())
			}
		}
		return o, true
	}
	return nil, false
}

// safeExit replaces process.exit for adapter code: instead of ending the
// host it throws an error carrying the requested code.
func safeExit(vm *goja.Runtime) goja.Value {
	return vm.ToValue(func(call goja.FunctionCall) goja.Value {
		var code int64
		if arg := call.Argument(0); goja.IsNumber(arg) {
			code = arg.ToInteger()
		} else if proc, ok := vm.Get("process").(*goja.Object); ok {
			if v := proc.Get("exitCode"); v != nil && goja.IsNumber(v) {
				code = v.ToInteger()
			}
		}
		panic(jsval.NewError(vm, fmt.Sprintf("process.exit(%d) was called", code), map[string]any{
			adaptermock.ProcessExitCodeKey: code,
		}))
	})
}

// exceptionOf turns a rejection reason into the error a throw would have
// produced. Runs on the loop.
func exceptionOf(vm *goja.Runtime, reason goja.Value) error {
	if ex := vm.Try(func() { panic(reason) }); ex != nil {
		return ex
	}
	return errors.New("promise rejected without a reason")
}

func isInterrupt(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}
