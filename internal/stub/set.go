package stub

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
)

// ErrNoImplementation is returned by Instrument for a table entry without a
// registered implementation.
var ErrNoImplementation = errors.New("no implementation registered")

// AsyncSuffix names the promise-returning twin of a method.
const AsyncSuffix = "Async"

// Set is a named collection of JS-callable methods on one runtime.
type Set struct {
	vm       *goja.Runtime
	observer Observer

	impls map[string]Behavior
	stubs map[string]*Stub
}

// NewSet creates an empty set. observer may be nil.
func NewSet(vm *goja.Runtime, observer Observer) *Set {
	return &Set{
		vm:       vm,
		observer: observer,
		impls:    make(map[string]Behavior),
		stubs:    make(map[string]*Stub),
	}
}

// Runtime returns the runtime the set's functions belong to.
func (s *Set) Runtime() *goja.Runtime {
	return s.vm
}

// Implement registers a hand-written callback-style implementation. It is
// exposed as a plain function until Instrument replaces it with a stub.
func (s *Set) Implement(name string, fn Behavior) {
	s.impls[name] = fn
}

// Bare registers a stub without behavior. It returns undefined until
// configured.
func (s *Set) Bare(name string) *Stub {
	st := newStub(s.vm, name, nil, s.observer)
	s.stubs[name] = st
	return st
}

// Lookup returns the stub registered under name.
func (s *Set) Lookup(name string) (*Stub, bool) {
	st, ok := s.stubs[name]
	return st, ok
}

// MustLookup is Lookup that panics on unknown names. Meant for tests.
func (s *Set) MustLookup(name string) *Stub {
	st, ok := s.stubs[name]
	if !ok {
		panic(fmt.Sprintf("stub %q not registered", name))
	}
	return st
}

// Names returns the names of all stubs and implementations, sorted.
func (s *Set) Names() []string {
	seen := make(map[string]struct{}, len(s.stubs)+len(s.impls))
	for name := range s.stubs {
		seen[name] = struct{}{}
	}
	for name := range s.impls {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind installs every method onto obj. Stubs win over implementations of
// the same name.
func (s *Set) Bind(obj *goja.Object) error {
	for _, name := range s.Names() {
		var v goja.Value
		if st, ok := s.stubs[name]; ok {
			v = st.Value()
		} else {
			v = s.vm.ToValue((func(goja.FunctionCall) goja.Value)(s.impls[name]))
		}
		if err := obj.Set(name, v); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// Instrument turns the implementations named in table into recording stubs.
//
// Every entry gets a stub that calls through to its implementation. Entries
// with a convention other than None additionally get a <name>Async stub that
// returns a promise settled by the implementation's callback. All of them,
// None entries included, are protected unless the name appears in
// overridable.
func Instrument(set *Set, table Table, overridable ...string) error {
	allowed := make(map[string]bool, len(overridable))
	for _, name := range overridable {
		allowed[name] = true
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		impl, ok := set.impls[name]
		if !ok {
			return fmt.Errorf("instrument %s: %w", name, ErrNoImplementation)
		}
		conv := table[name]

		st := newStub(set.vm, name, impl, set.observer)
		set.stubs[name] = st
		if !allowed[name] {
			st.Protect()
		}
		if conv == None {
			continue
		}

		async := newStub(set.vm, name+AsyncSuffix, Promisify(set.vm, impl, conv), set.observer)
		set.stubs[name+AsyncSuffix] = async
		if !allowed[name] {
			async.Protect()
		}
	}
	return nil
}

// Promisify derives a promise-returning behavior from a callback-style one.
// The implementation receives the original arguments plus a trailing
// callback. A synchronous throw rejects the promise.
func Promisify(vm *goja.Runtime, impl Behavior, conv Convention) Behavior {
	return func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()
		settled := false

		callback := vm.ToValue(func(cb goja.FunctionCall) goja.Value {
			if settled {
				return goja.Undefined()
			}
			settled = true
			if conv == Normal && !jsval.IsNullish(cb.Argument(0)) {
				_ = reject(cb.Argument(0))
				return goja.Undefined()
			}
			if conv == Normal {
				_ = resolve(cb.Argument(1))
			} else {
				_ = resolve(cb.Argument(0))
			}
			return goja.Undefined()
		})

		args := make([]goja.Value, 0, len(call.Arguments)+1)
		args = append(args, call.Arguments...)
		args = append(args, callback)

		if ex := vm.Try(func() {
			impl(goja.FunctionCall{This: call.This, Arguments: args})
		}); ex != nil && !settled {
			settled = true
			_ = reject(ex.Value())
		}

		return vm.ToValue(promise)
	}
}
