package adaptermock

import (
	"reflect"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

func (a *Adapter) registerStateMethods() {
	a.methods.Implement("getState", a.getState(false))
	a.methods.Implement("getForeignState", a.getState(true))
	a.methods.Implement("getStates", a.getStates(false))
	a.methods.Implement("getForeignStates", a.getStates(true))
	a.methods.Implement("setState", a.setState(false, false))
	a.methods.Implement("setForeignState", a.setState(true, false))
	a.methods.Implement("setStateChanged", a.setState(false, true))
	a.methods.Implement("setForeignStateChanged", a.setState(true, true))
	a.methods.Implement("delState", a.delState(false))
	a.methods.Implement("delForeignState", a.delState(true))
}

// getState(id[, options], callback)
func (a *Adapter) getState(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		state, ok := a.store.GetState(a.id(arg(args, 0), foreign))
		a.reply(cb, goja.Null(), a.stateValue(state, ok))
		return goja.Undefined()
	}
}

// getStates(pattern[, options], callback)
func (a *Adapter) getStates(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		states, err := a.store.GetStates(a.id(arg(args, 0), foreign))
		if err != nil {
			a.fail(cb, err)
			return goja.Undefined()
		}
		out := make(map[string]any, len(states))
		for id, state := range states {
			out[id] = map[string]any(state)
		}
		a.reply(cb, goja.Null(), jsval.ToJS(a.vm, out))
		return goja.Undefined()
	}
}

// setState(id, state[, ack][, options], callback). A state that is not an
// object is taken as the value. setStateChanged only publishes when value
// or ack differ from the stored state and answers (err, id, notChanged).
func (a *Adapter) setState(foreign, onlyChanged bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		id := a.id(arg(args, 0), foreign)
		state := toState(arg(args, 1))
		if ack, ok := arg(args, 2).Export().(bool); ok {
			state[store.KeyAck] = ack
		}

		if onlyChanged {
			if existing, ok := a.store.GetState(id); ok && sameState(existing, state) {
				a.reply(cb, goja.Null(), a.vm.ToValue(id), a.vm.ToValue(true))
				return goja.Undefined()
			}
			a.store.PublishState(id, state)
			a.reply(cb, goja.Null(), a.vm.ToValue(id), a.vm.ToValue(false))
			return goja.Undefined()
		}

		a.store.PublishState(id, state)
		a.reply(cb, goja.Null(), a.vm.ToValue(id))
		return goja.Undefined()
	}
}

// delState(id[, options], callback)
func (a *Adapter) delState(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		a.store.DeleteState(a.id(arg(args, 0), foreign))
		a.reply(cb, goja.Null())
		return goja.Undefined()
	}
}

func toState(v goja.Value) store.State {
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Object" {
		if m, ok := jsval.ExportMap(v); ok {
			return store.State(m)
		}
	}
	return store.State{store.KeyVal: jsval.Export(v)}
}

func sameState(existing, next store.State) bool {
	ack, _ := next[store.KeyAck].(bool)
	return reflect.DeepEqual(existing.Val(), next.Val()) && existing.Ack() == ack
}

func (a *Adapter) stateValue(state store.State, ok bool) goja.Value {
	if !ok {
		return goja.Null()
	}
	return jsval.ToJS(a.vm, map[string]any(state))
}
