// Package jsval converts between Go documents and goja values.
//
// Store documents are plain map[string]any trees. Handing such a map to
// goja.Runtime.ToValue produces a live wrapper around the Go map, which lets
// sandboxed code mutate store internals and makes Array.isArray lie about
// nested slices. ToJS builds native JS objects and arrays instead.
package jsval

import (
	"sort"

	"github.com/dop251/goja"
)

// ToJS converts a Go document into a native JS value.
func ToJS(vm *goja.Runtime, v any) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case goja.Value:
		return t
	case map[string]any:
		obj := vm.NewObject()
		for _, k := range sortedKeys(t) {
			_ = obj.Set(k, ToJS(vm, t[k]))
		}
		return obj
	case map[string]string:
		obj := vm.NewObject()
		for k, s := range t {
			_ = obj.Set(k, s)
		}
		return obj
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = ToJS(vm, item)
		}
		return vm.NewArray(items...)
	case []string:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = item
		}
		return vm.NewArray(items...)
	default:
		return vm.ToValue(v)
	}
}

// Export converts a JS value into a Go document. undefined and null become nil.
func Export(v goja.Value) any {
	if IsNullish(v) {
		return nil
	}
	return v.Export()
}

// ExportMap exports v when it is a plain object.
func ExportMap(v goja.Value) (map[string]any, bool) {
	if IsNullish(v) {
		return nil, false
	}
	m, ok := v.Export().(map[string]any)
	return m, ok
}

// IsNullish reports whether v is missing, undefined or null.
func IsNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// IsFunction reports whether v is callable.
func IsFunction(v goja.Value) bool {
	if IsNullish(v) {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}

// Thenable returns the then method of v when v looks like a promise.
// Any object exposing a callable then qualifies.
func Thenable(v goja.Value) (goja.Callable, bool) {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil, false
	}
	then, ok := goja.AssertFunction(obj.Get("then"))
	return then, ok
}

// NewError creates a JS Error carrying the given extra properties.
func NewError(vm *goja.Runtime, message string, props map[string]any) *goja.Object {
	errObj, err := vm.New(vm.Get("Error"), vm.ToValue(message))
	if err != nil {
		errObj = vm.NewObject()
		_ = errObj.Set("message", message)
	}
	for _, k := range sortedKeys(props) {
		_ = errObj.Set(k, props[k])
	}
	return errObj
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
