package adaptermock

import (
	"path/filepath"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

// Locations reported by the host-dependency module.
const (
	DefaultControllerDir = "/opt/iobroker/node_modules/iobroker.js-controller"
	DefaultDataDir       = "/opt/iobroker/iobroker-data"
)

// handlerOptions are the constructor options that register event handlers.
var handlerOptions = []string{EventReady, EventMessage, EventObjectChange, EventStateChange, EventUnload}

// Module builds the exports of the host-dependency module: the Adapter
// constructor, the adapter factory, and the directory helpers. Every
// surface constructed through it is bound to st and handed to onCreated.
//
// The constructor accepts a name or an options object. The name it is given
// takes precedence over opts.Name.
func Module(vm *goja.Runtime, st *store.Store, opts Options, onCreated func(*Adapter)) (*goja.Object, error) {
	opts = opts.withDefaults()

	ctor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		local := opts
		var handlers map[string]goja.Value

		switch first := call.Argument(0); {
		case goja.IsString(first):
			local.Name = first.String()
		case !jsval.IsNullish(first):
			if obj, ok := first.(*goja.Object); ok {
				if name := obj.Get("name"); name != nil && goja.IsString(name) {
					local.Name = name.String()
				}
				handlers = make(map[string]goja.Value)
				for _, event := range handlerOptions {
					if h := obj.Get(event); h != nil && jsval.IsFunction(h) {
						handlers[event] = h
					}
				}
			}
		}

		a, err := newAdapter(vm, st, local, call.This)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		for event, h := range handlers {
			a.Listen(event, h)
		}
		if onCreated != nil {
			onCreated(a)
		}
		return nil
	}).(*goja.Object)

	factory := func(call goja.FunctionCall) goja.Value {
		obj, err := vm.New(ctor, call.Arguments...)
		if err != nil {
			rethrow(vm, err)
		}
		return obj
	}

	exports := vm.NewObject()
	props := map[string]any{
		"Adapter":       ctor,
		"adapter":       factory,
		"controllerDir": opts.ControllerDir,
		"getAbsoluteDefaultDataDir": func(goja.FunctionCall) goja.Value {
			return vm.ToValue(opts.DataDir)
		},
		"getAbsoluteInstanceDataDir": func(call goja.FunctionCall) goja.Value {
			obj, ok := call.Argument(0).(*goja.Object)
			if !ok {
				panic(vm.NewTypeError("getAbsoluteInstanceDataDir expects an adapter object"))
			}
			ns := obj.Get("namespace")
			if ns == nil || !goja.IsString(ns) {
				panic(vm.NewTypeError("adapter object has no namespace"))
			}
			return vm.ToValue(filepath.Join(opts.DataDir, ns.String()))
		},
	}
	for name, v := range props {
		if err := exports.Set(name, v); err != nil {
			return nil, err
		}
	}
	return exports, nil
}
