package adaptermock

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var recordedEvents = map[string]bool{
	EventReady:        true,
	EventMessage:      true,
	EventObjectChange: true,
	EventStateChange:  true,
	EventUnload:       true,
}

func (a *Adapter) registerEventMethods() {
	a.methods.Implement("on", a.on)
	a.methods.Implement("once", a.on)
	a.methods.Implement("removeListener", a.removeListener)
	a.methods.Implement("off", a.removeListener)
	a.methods.Implement("removeAllListeners", a.removeAllListeners)
	a.methods.Implement("terminate", a.terminate)
}

// on(event, handler) records handler and returns the adapter for chaining.
func (a *Adapter) on(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()
	handler := call.Argument(1)
	if _, ok := goja.AssertFunction(handler); !ok {
		panic(a.vm.NewTypeError("handler for %s must be a function", event))
	}
	a.Listen(event, handler)
	return a.obj
}

// Listen records handler for event as if adapter code had called on().
func (a *Adapter) Listen(event string, handler goja.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if recordedEvents[event] {
		a.handlers[event] = handler
	} else {
		a.listeners[event] = append(a.listeners[event], handler)
	}
	a.logger.Debug("Handler registered", zap.String("event", event))
}

// removeListener(event, handler)
func (a *Adapter) removeListener(call goja.FunctionCall) goja.Value {
	event := call.Argument(0).String()
	handler := call.Argument(1)

	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.handlers[event]; ok && h.StrictEquals(handler) {
		delete(a.handlers, event)
	}
	kept := a.listeners[event][:0]
	for _, h := range a.listeners[event] {
		if !h.StrictEquals(handler) {
			kept = append(kept, h)
		}
	}
	a.listeners[event] = kept
	return a.obj
}

// removeAllListeners([event])
func (a *Adapter) removeAllListeners(call goja.FunctionCall) goja.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event := call.Argument(0); goja.IsString(event) {
		delete(a.handlers, event.String())
		delete(a.listeners, event.String())
		return a.obj
	}
	a.handlers = make(map[string]goja.Value)
	a.listeners = make(map[string][]goja.Value)
	return a.obj
}

// Listeners returns the number of handlers kept for an unrecorded event.
func (a *Adapter) Listeners(event string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners[event])
}
