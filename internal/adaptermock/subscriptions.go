package adaptermock

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/adapter-harness/internal/pattern"
	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

// subscriptions holds compiled id patterns by source pattern.
type subscriptions struct {
	states  map[string]*pattern.Matcher
	objects map[string]*pattern.Matcher
}

func matchesAny(set map[string]*pattern.Matcher, id string) bool {
	for _, m := range set {
		if m.Test(id) {
			return true
		}
	}
	return false
}

func (a *Adapter) registerSubscriptionMethods() {
	a.methods.Implement("subscribeStates", a.subscribe(false, false, true))
	a.methods.Implement("subscribeForeignStates", a.subscribe(false, true, true))
	a.methods.Implement("unsubscribeStates", a.subscribe(false, false, false))
	a.methods.Implement("unsubscribeForeignStates", a.subscribe(false, true, false))
	a.methods.Implement("subscribeObjects", a.subscribe(true, false, true))
	a.methods.Implement("subscribeForeignObjects", a.subscribe(true, true, true))
	a.methods.Implement("unsubscribeObjects", a.subscribe(true, false, false))
	a.methods.Implement("unsubscribeForeignObjects", a.subscribe(true, true, false))
}

// subscribe(pattern[, options][, callback]) accepts a pattern or an array
// of patterns.
func (a *Adapter) subscribe(objects, foreign, add bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)

		var patterns []string
		switch v := jsval.Export(arg(args, 0)).(type) {
		case string:
			patterns = []string{v}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					patterns = append(patterns, s)
				}
			}
		default:
			panic(a.vm.NewTypeError("pattern must be a string or an array of strings"))
		}

		for _, p := range patterns {
			if !foreign {
				p = a.fq(p)
			}
			if err := a.updateSubscription(objects, add, p); err != nil {
				a.fail(cb, err)
				return goja.Undefined()
			}
		}
		a.reply(cb, goja.Null())
		return goja.Undefined()
	}
}

func (a *Adapter) updateSubscription(objects, add bool, p string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := &a.subs.states
	if objects {
		set = &a.subs.objects
	}
	if !add {
		delete(*set, p)
		return nil
	}

	m, err := pattern.Compile(p)
	if err != nil {
		return err
	}
	if *set == nil {
		*set = make(map[string]*pattern.Matcher)
	}
	(*set)[p] = m
	return nil
}

// SubscribedState reports whether id matches a state subscription.
func (a *Adapter) SubscribedState(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return matchesAny(a.subs.states, id)
}

// SubscribedObject reports whether id matches an object subscription.
func (a *Adapter) SubscribedObject(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return matchesAny(a.subs.objects, id)
}

func (a *Adapter) forwardState(id string, state store.State) {
	a.mu.Lock()
	forward := !a.quiet && matchesAny(a.subs.states, id)
	a.mu.Unlock()
	if !forward {
		return
	}
	a.deliver(EventStateChange, id, func() goja.Value {
		if state == nil {
			return goja.Null()
		}
		return jsval.ToJS(a.vm, map[string]any(state))
	})
}

func (a *Adapter) forwardObject(id string, obj store.Object) {
	a.mu.Lock()
	forward := !a.quiet && matchesAny(a.subs.objects, id)
	a.mu.Unlock()
	if !forward {
		return
	}
	a.deliver(EventObjectChange, id, func() goja.Value {
		if obj == nil {
			return goja.Null()
		}
		return jsval.ToJS(a.vm, map[string]any(obj))
	})
}

// deliver calls the handler for event with (id, doc), deferred when the
// surface has a scheduler. Handler exceptions are logged.
func (a *Adapter) deliver(event, id string, doc func() goja.Value) {
	run := func() {
		if _, ok := a.Handler(event); !ok {
			return
		}
		if _, err := a.Emit(event, a.vm.ToValue(id), doc()); err != nil {
			a.logger.Warn("Forwarded change handler failed",
				zap.String("event", event),
				zap.String("id", id),
				zap.Error(err))
		}
	}
	if a.opts.Defer != nil {
		a.opts.Defer(run)
		return
	}
	run()
}
