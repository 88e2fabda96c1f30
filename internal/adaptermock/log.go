package adaptermock

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/logging"
	"github.com/GriffinCanCode/adapter-harness/internal/stub"
)

// LogSeverities are the methods of adapter.log.
var LogSeverities = []string{"silly", "debug", "info", "warn", "error"}

// newLog builds adapter.log. Each severity is an overridable stub that
// forwards the message to the adapter logger until reconfigured.
func (a *Adapter) newLog() (*goja.Object, error) {
	a.log = stub.NewSet(a.vm, a.opts.Observer)
	table := make(stub.Table, len(LogSeverities))
	for _, severity := range LogSeverities {
		a.log.Implement(severity, a.logAt(severity))
		table[severity] = stub.None
	}
	if err := stub.Instrument(a.log, table, LogSeverities...); err != nil {
		return nil, err
	}

	obj := a.vm.NewObject()
	if err := a.log.Bind(obj); err != nil {
		return nil, err
	}
	if err := obj.Set("level", a.opts.LogLevel); err != nil {
		return nil, err
	}
	return obj, nil
}

func (a *Adapter) logAt(severity string) func(goja.FunctionCall) goja.Value {
	level := logging.AdapterLevel(severity)
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, v := range call.Arguments {
			parts[i] = v.String()
		}
		a.logger.Log(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}
