package adaptermock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/adapter-harness/internal/logging"
	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
	"github.com/GriffinCanCode/adapter-harness/internal/stub"
)

// Events the surface keeps a handler for. Handlers registered for any other
// event are kept but never invoked.
const (
	EventReady        = "ready"
	EventMessage      = "message"
	EventObjectChange = "objectChange"
	EventStateChange  = "stateChange"
	EventUnload       = "unload"
)

// Markers carried by the errors that end an adapter run.
const (
	TerminateReasonKey     = "terminateReason"
	ExitCodeKey            = "exitCode"
	ProcessExitCodeKey     = "processExitCode"
	DefaultTerminateReason = "no reason given!"
)

// ErrNoHandler is returned by Emit when no handler is recorded for an event.
var ErrNoHandler = errors.New("no handler registered")

// Options configures a mock surface.
type Options struct {
	Name     string         // adapter name, default "test"
	Instance int            // instance number
	Config   map[string]any // native configuration exposed as adapter.config
	LogLevel string         // adapter.log.level, default "info"

	Logger   *logging.Logger
	Observer stub.Observer // told about every stub call

	// ForwardChanges delivers store changes of subscribed ids to the
	// recorded stateChange/objectChange handlers.
	ForwardChanges bool
	// Defer schedules forwarded deliveries. When nil they run synchronously
	// on the publishing goroutine, which must then own the runtime.
	Defer func(fn func())

	ControllerDir string // exported as controllerDir
	DataDir       string // base of the data directory helpers
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "test"
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Config == nil {
		o.Config = map[string]any{}
	}
	if o.ControllerDir == "" {
		o.ControllerDir = DefaultControllerDir
	}
	if o.DataDir == "" {
		o.DataDir = DefaultDataDir
	}
	return o
}

// Adapter is the mock of the host's adapter object, bound to a store.
type Adapter struct {
	vm        *goja.Runtime
	store     *store.Store
	opts      Options
	namespace string
	logger    *logging.Logger

	obj     *goja.Object
	methods *stub.Set
	log     *stub.Set

	mu        sync.Mutex
	handlers  map[string]goja.Value   // Protected by mu
	listeners map[string][]goja.Value // Protected by mu
	subs      subscriptions           // Protected by mu
	quiet     bool                    // Protected by mu
}

// New creates a mock surface on a fresh JS object.
func New(vm *goja.Runtime, st *store.Store, opts Options) (*Adapter, error) {
	return newAdapter(vm, st, opts, vm.NewObject())
}

// newAdapter installs the surface on obj, which may be the this of a
// constructor call.
func newAdapter(vm *goja.Runtime, st *store.Store, opts Options, obj *goja.Object) (*Adapter, error) {
	opts = opts.withDefaults()
	namespace := opts.Name + "." + strconv.Itoa(opts.Instance)

	a := &Adapter{
		vm:        vm,
		store:     st,
		opts:      opts,
		namespace: namespace,
		logger:    opts.Logger.ForAdapter(namespace),
		obj:       obj,
		handlers:  make(map[string]goja.Value),
		listeners: make(map[string][]goja.Value),
	}

	a.methods = stub.NewSet(vm, opts.Observer)
	a.registerObjectMethods()
	a.registerStateMethods()
	a.registerEventMethods()
	a.registerSubscriptionMethods()
	a.registerTimerMethods()
	for _, name := range bareMethods {
		a.methods.Bare(name)
	}
	if err := stub.Instrument(a.methods, conventions, overridable...); err != nil {
		return nil, fmt.Errorf("instrument adapter methods: %w", err)
	}
	if err := a.methods.Bind(obj); err != nil {
		return nil, err
	}

	logObj, err := a.newLog()
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"name":         opts.Name,
		"namespace":    namespace,
		"instance":     opts.Instance,
		"host":         "testhost",
		"config":       jsval.ToJS(vm, opts.Config),
		"common":       vm.NewObject(),
		"systemConfig": vm.NewObject(),
		"adapterDir":   "",
		"ioPack":       jsval.ToJS(vm, map[string]any{"common": map[string]any{}, "native": map[string]any{}}),
		"pack":         vm.NewObject(),
		"version":      "any",
		"connected":    true,
		"log":          logObj,
		"resetMock": func(goja.FunctionCall) goja.Value {
			a.ResetBehavior()
			a.ResetHistory()
			return goja.Undefined()
		},
		"resetMockHistory": func(goja.FunctionCall) goja.Value {
			a.ResetHistory()
			return goja.Undefined()
		},
		"resetMockBehavior": func(goja.FunctionCall) goja.Value {
			a.ResetBehavior()
			return goja.Undefined()
		},
	}
	for name, v := range props {
		if err := obj.Set(name, v); err != nil {
			return nil, fmt.Errorf("set adapter.%s: %w", name, err)
		}
	}

	if opts.ForwardChanges {
		st.OnStateChange(a.forwardState)
		st.OnObjectChange(a.forwardObject)
	}

	a.logger.Debug("Mock adapter created", zap.Int("methods", len(a.methods.Names())))
	return a, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string { return a.opts.Name }

// Instance returns the instance number.
func (a *Adapter) Instance() int { return a.opts.Instance }

// Namespace returns name.instance.
func (a *Adapter) Namespace() string { return a.namespace }

// Object returns the JS adapter object.
func (a *Adapter) Object() *goja.Object { return a.obj }

// Store returns the backing store.
func (a *Adapter) Store() *store.Store { return a.store }

// Stub returns the stub installed under method name.
func (a *Adapter) Stub(name string) (*stub.Stub, bool) {
	return a.methods.Lookup(name)
}

// LogStub returns the stub behind adapter.log[severity].
func (a *Adapter) LogStub(severity string) (*stub.Stub, bool) {
	return a.log.Lookup(severity)
}

// Methods returns the names of all installed methods.
func (a *Adapter) Methods() []string {
	return a.methods.Names()
}

// ResetHistory forgets the calls of every stub, log methods included.
func (a *Adapter) ResetHistory() {
	for _, set := range []*stub.Set{a.methods, a.log} {
		for _, name := range set.Names() {
			if st, ok := set.Lookup(name); ok {
				st.ResetHistory()
			}
		}
	}
}

// ResetBehavior restores the original behavior of every unprotected stub.
func (a *Adapter) ResetBehavior() {
	for _, set := range []*stub.Set{a.methods, a.log} {
		for _, name := range set.Names() {
			if st, ok := set.Lookup(name); ok && !st.Protected() {
				_ = st.ResetBehavior()
			}
		}
	}
}

// Handler returns the handler recorded for event.
func (a *Adapter) Handler(event string) (goja.Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handlers[event]
	return h, ok
}

// Emit calls the handler recorded for event with this = the adapter object.
// Must run on the goroutine owning the runtime.
func (a *Adapter) Emit(event string, args ...goja.Value) (goja.Value, error) {
	h, ok := a.Handler(event)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, event)
	}
	fn, ok := goja.AssertFunction(h)
	if !ok {
		return nil, fmt.Errorf("handler for %s is not callable", event)
	}
	return fn(a.obj, args...)
}

// Quietly runs fn with change forwarding suspended.
func (a *Adapter) Quietly(fn func()) {
	a.mu.Lock()
	a.quiet = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.quiet = false
		a.mu.Unlock()
	}()
	fn()
}

// fq qualifies an id with the adapter namespace unless it already is.
func (a *Adapter) fq(id string) string {
	if id == a.namespace || strings.HasPrefix(id, a.namespace+".") {
		return id
	}
	return a.namespace + "." + id
}

func (a *Adapter) id(v goja.Value, foreign bool) string {
	if !goja.IsString(v) {
		panic(a.vm.NewTypeError("id must be a string"))
	}
	if foreign {
		return v.String()
	}
	return a.fq(v.String())
}

// terminate ends the run by throwing an error carrying terminateReason.
func (a *Adapter) terminate(call goja.FunctionCall) goja.Value {
	reason := DefaultTerminateReason
	var exitCode goja.Value

	switch first := call.Argument(0); {
	case goja.IsNumber(first):
		exitCode = first
	case goja.IsString(first) && first.String() != "":
		reason = first.String()
	}
	if code := call.Argument(1); goja.IsNumber(code) {
		exitCode = code
	}

	props := map[string]any{TerminateReasonKey: reason}
	if exitCode != nil {
		props[ExitCodeKey] = exitCode.ToInteger()
	}
	a.logger.Info("Adapter terminated", zap.String("reason", reason))
	panic(jsval.NewError(a.vm, "Adapter.terminate was called: "+reason, props))
}

// splitCallback separates a trailing callback from the other arguments.
func splitCallback(args []goja.Value) ([]goja.Value, goja.Callable) {
	if n := len(args); n > 0 {
		if cb, ok := goja.AssertFunction(args[n-1]); ok {
			return args[:n-1], cb
		}
	}
	return args, nil
}

func arg(args []goja.Value, i int) goja.Value {
	if i < len(args) {
		return args[i]
	}
	return goja.Undefined()
}

// reply invokes cb, if any. Exceptions thrown by cb propagate to the caller.
func (a *Adapter) reply(cb goja.Callable, values ...goja.Value) {
	if cb == nil {
		return
	}
	if _, err := cb(goja.Undefined(), values...); err != nil {
		a.rethrow(err)
	}
}

// fail reports err through cb, or throws it when there is no callback.
func (a *Adapter) fail(cb goja.Callable, err error) {
	errObj := jsval.NewError(a.vm, err.Error(), nil)
	if cb == nil {
		panic(errObj)
	}
	a.reply(cb, errObj)
}

func (a *Adapter) rethrow(err error) {
	rethrow(a.vm, err)
}

// rethrow turns an error from a JS call back into a JS throw.
func rethrow(vm *goja.Runtime, err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex)
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		panic(interrupted)
	}
	panic(vm.NewGoError(err))
}
