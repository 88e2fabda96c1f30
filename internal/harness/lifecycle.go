package harness

import (
	"context"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/adaptermock"
	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

func (h *Harness) started() (*adaptermock.Adapter, *store.Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.adapter == nil {
		return nil, nil, ErrNotStarted
	}
	return h.adapter, h.store, nil
}

// SendMessage calls the message handler with msg. A promise returned by the
// handler is not awaited.
func (h *Harness) SendMessage(ctx context.Context, msg any) error {
	a, _, err := h.started()
	if err != nil {
		return err
	}
	return h.host.Do(ctx, func(vm *goja.Runtime) error {
		_, err := a.Emit(adaptermock.EventMessage, jsval.ToJS(vm, msg))
		return err
	})
}

// TriggerStateChange stores state under id and calls the stateChange handler
// with (id, state). A nil state deletes the state and passes null. The store
// write is not forwarded, so the handler runs exactly once.
func (h *Harness) TriggerStateChange(ctx context.Context, id string, state store.State) error {
	a, st, err := h.started()
	if err != nil {
		return err
	}
	return h.host.Do(ctx, func(vm *goja.Runtime) error {
		a.Quietly(func() { st.PublishState(id, state) })

		doc := goja.Null()
		if stored, ok := st.GetState(id); ok {
			doc = jsval.ToJS(vm, map[string]any(stored))
		}
		_, err := a.Emit(adaptermock.EventStateChange, vm.ToValue(id), doc)
		return err
	})
}

// TriggerObjectChange stores obj under id and calls the objectChange handler
// with (id, obj). A nil obj deletes the object and passes null.
func (h *Harness) TriggerObjectChange(ctx context.Context, id string, obj store.Object) error {
	a, st, err := h.started()
	if err != nil {
		return err
	}
	return h.host.Do(ctx, func(vm *goja.Runtime) error {
		var publishErr error
		a.Quietly(func() {
			if obj == nil {
				st.DeleteObject(id)
				return
			}
			doc := store.Extend(nil, obj)
			doc[store.KeyID] = id
			publishErr = st.PublishObject(doc)
		})
		if publishErr != nil {
			return publishErr
		}

		doc := goja.Null()
		if stored, ok := st.GetObject(id); ok {
			doc = jsval.ToJS(vm, map[string]any(stored))
		}
		_, err := a.Emit(adaptermock.EventObjectChange, vm.ToValue(id), doc)
		return err
	})
}

// Unload calls the unload handler with a callback and waits until the
// callback is called or the promise the handler returns settles. A handler
// that does neither holds Unload until ctx is done.
func (h *Harness) Unload(ctx context.Context) error {
	a, _, err := h.started()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	signal := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	err = h.host.Do(ctx, func(vm *goja.Runtime) error {
		callback := vm.ToValue(func(goja.FunctionCall) goja.Value {
			signal(nil)
			return goja.Undefined()
		})
		ret, err := a.Emit(adaptermock.EventUnload, callback)
		if err != nil {
			return err
		}
		then, ok := jsval.Thenable(ret)
		if !ok {
			return nil
		}
		onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			signal(exceptionOf(vm, call.Argument(0)))
			return goja.Undefined()
		})
		_, err = then(ret, callback, onRejected)
		return err
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
