package stub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// ErrProtected is returned when reconfiguring a protected stub.
var ErrProtected = errors.New("stub is protected")

// Behavior is the Go side of a JS-callable function.
type Behavior func(call goja.FunctionCall) goja.Value

// Observer is told about every stub invocation.
type Observer func(name string)

// Call is one recorded invocation.
type Call struct {
	This      goja.Value
	Args      []goja.Value
	Return    goja.Value
	Threw     bool
	Exception goja.Value
}

// Arg returns argument i or undefined.
func (c Call) Arg(i int) goja.Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return goja.Undefined()
}

// Stub is a recorded, reconfigurable JS function.
type Stub struct {
	name     string
	vm       *goja.Runtime
	observer Observer

	mu        sync.Mutex
	calls     []Call
	behavior  Behavior
	through   Behavior
	protected bool

	fn *goja.Object
}

func newStub(vm *goja.Runtime, name string, through Behavior, observer Observer) *Stub {
	return &Stub{
		name:     name,
		vm:       vm,
		observer: observer,
		behavior: through,
		through:  through,
	}
}

// Name returns the method name the stub is installed under.
func (s *Stub) Name() string {
	return s.name
}

// Protected reports whether the stub refuses reconfiguration.
func (s *Stub) Protected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protected
}

// Protect makes every further reconfiguration fail with ErrProtected.
func (s *Stub) Protect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected = true
}

// Returns makes the stub return v.
func (s *Stub) Returns(v any) error {
	val := s.vm.ToValue(v)
	return s.configure(func(goja.FunctionCall) goja.Value { return val })
}

// Throws makes the stub throw v. A Go error is thrown as a GoError.
func (s *Stub) Throws(v any) error {
	var val goja.Value
	if err, ok := v.(error); ok {
		val = s.vm.NewGoError(err)
	} else {
		val = s.vm.ToValue(v)
	}
	return s.configure(func(goja.FunctionCall) goja.Value { panic(val) })
}

// CallsFake replaces the behavior with fn.
func (s *Stub) CallsFake(fn Behavior) error {
	return s.configure(fn)
}

// CallsThrough restores the captured implementation, if any.
func (s *Stub) CallsThrough() error {
	return s.configure(s.through)
}

// ResetBehavior is an alias of CallsThrough.
func (s *Stub) ResetBehavior() error {
	return s.CallsThrough()
}

// ResetHistory forgets recorded calls. Allowed on protected stubs.
func (s *Stub) ResetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Stub) configure(b Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.protected {
		return fmt.Errorf("%w: %s", ErrProtected, s.name)
	}
	s.behavior = b
	return nil
}

// Calls returns a copy of the call history.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns the number of recorded calls.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Called reports whether the stub was called at least once.
func (s *Stub) Called() bool {
	return s.CallCount() > 0
}

// LastCall returns the most recent call.
func (s *Stub) LastCall() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// Value returns the JS function backed by the stub. The function carries a
// small inspection and configuration API for script-side tests: callCount,
// returns, throws, resetHistory.
func (s *Stub) Value() *goja.Object {
	if s.fn != nil {
		return s.fn
	}
	vm := s.vm
	fn := vm.ToValue(s.invoke).(*goja.Object)

	_ = fn.DefineAccessorProperty("callCount", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(s.CallCount())
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = fn.Set("returns", func(call goja.FunctionCall) goja.Value {
		s.throwIf(s.Returns(call.Argument(0)))
		return fn
	})
	_ = fn.Set("throws", func(call goja.FunctionCall) goja.Value {
		s.throwIf(s.Throws(call.Argument(0)))
		return fn
	})
	_ = fn.Set("resetHistory", func(goja.FunctionCall) goja.Value {
		s.ResetHistory()
		return fn
	})

	s.fn = fn
	return fn
}

func (s *Stub) throwIf(err error) {
	if err != nil {
		panic(s.vm.NewGoError(err))
	}
}

func (s *Stub) invoke(call goja.FunctionCall) goja.Value {
	if s.observer != nil {
		s.observer(s.name)
	}

	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, Call{
		This: call.This,
		Args: append([]goja.Value(nil), call.Arguments...),
	})
	behavior := s.behavior
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.recordThrow(idx, r)
			panic(r)
		}
	}()

	ret := goja.Undefined()
	if behavior != nil {
		if v := behavior(call); v != nil {
			ret = v
		}
	}

	s.mu.Lock()
	if idx < len(s.calls) {
		s.calls[idx].Return = ret
	}
	s.mu.Unlock()
	return ret
}

func (s *Stub) recordThrow(idx int, r any) {
	var val goja.Value
	switch t := r.(type) {
	case *goja.Exception:
		val = t.Value()
	case goja.Value:
		val = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < len(s.calls) {
		s.calls[idx].Threw = true
		s.calls[idx].Exception = val
	}
}
