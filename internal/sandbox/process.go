package sandbox

import (
	"os"
	"runtime"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/process"

	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
)

const nextTickSource = `(function (fn) {
	var args = Array.prototype.slice.call(arguments, 1);
	Promise.resolve().then(function () { fn.apply(undefined, args); });
})`

// setupProcess installs the global process object. Runs on the loop.
func (h *Host) setupProcess(vm *goja.Runtime) error {
	exports, err := h.natives.Require(process.ModuleName)
	if err != nil {
		return err
	}
	proc := exports.ToObject(vm)

	if env, ok := proc.Get("env").Export().(map[string]string); ok {
		for k, v := range h.config.Env {
			env[k] = v
		}
	}

	argv := h.config.Argv
	if len(argv) == 0 {
		argv = DefaultConfig().Argv
	}
	version := h.config.NodeVersion
	if version == "" {
		version = DefaultConfig().NodeVersion
	}

	nextTick, err := vm.RunString(nextTickSource)
	if err != nil {
		return err
	}

	chain := func(goja.FunctionCall) goja.Value { return proc }
	props := map[string]any{
		"argv":     jsval.ToJS(vm, argv),
		"execArgv": vm.NewArray(),
		"platform": runtime.GOOS,
		"arch":     runtime.GOARCH,
		"version":  version,
		"versions": jsval.ToJS(vm, map[string]string{"node": strings.TrimPrefix(version, "v")}),
		"pid":      os.Getpid(),
		"title":    "node",
		"cwd": func(goja.FunctionCall) goja.Value {
			return vm.ToValue(h.config.Cwd)
		},
		"uptime": func(goja.FunctionCall) goja.Value {
			return vm.ToValue(0)
		},
		"nextTick":           nextTick,
		"on":                 chain,
		"once":               chain,
		"off":                chain,
		"removeListener":     chain,
		"removeAllListeners": chain,
		"emit": func(goja.FunctionCall) goja.Value {
			return vm.ToValue(false)
		},
		"exit": h.exit,
	}
	for name, v := range props {
		if err := proc.Set(name, v); err != nil {
			return err
		}
	}

	h.process = proc
	return vm.Set("process", proc)
}

// exit is the unsandboxed process.exit: it records the code and interrupts
// the runtime, which is what a real exit would do to the rest of the run.
func (h *Host) exit(call goja.FunctionCall) goja.Value {
	code := 0
	arg := call.Argument(0)
	if goja.IsUndefined(arg) {
		if v := h.process.Get("exitCode"); v != nil && goja.IsNumber(v) {
			code = int(v.ToInteger())
		}
	} else {
		code = int(arg.ToInteger())
	}

	h.exitCode.Store(int64(code))
	h.exited.Store(true)
	h.vm.Interrupt(&ExitRequest{Code: code})
	return goja.Undefined()
}

// Process returns the global process object. Loop-only.
func (h *Host) Process() *goja.Object {
	return h.process
}
