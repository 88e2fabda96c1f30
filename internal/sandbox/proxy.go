package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"
)

// GlobalProxy wraps target so that reads of the override keys return the
// override and every other read is forwarded. Forwarded functions are bound
// to target, so methods that depend on their receiver keep working when
// called off the proxy. Loop-only.
func (h *Host) GlobalProxy(target *goja.Object, overrides map[string]goja.Value) *goja.Object {
	vm := h.vm
	proxy := vm.NewProxy(target, &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, property string, _ goja.Value) goja.Value {
			if v, ok := overrides[property]; ok {
				return v
			}
			v := target.Get(property)
			if v == nil {
				return goja.Undefined()
			}
			if fn, ok := v.(*goja.Object); ok {
				if _, callable := goja.AssertFunction(fn); callable {
					return bindTo(vm, fn, target)
				}
			}
			return v
		},
		Has: func(target *goja.Object, property string) bool {
			if _, ok := overrides[property]; ok {
				return true
			}
			return target.Get(property) != nil
		},
	})
	return vm.ToValue(proxy).(*goja.Object)
}

func bindTo(vm *goja.Runtime, fn, target *goja.Object) goja.Value {
	bind, ok := goja.AssertFunction(fn.Get("bind"))
	if !ok {
		return fn
	}
	bound, err := bind(fn, target)
	if err != nil {
		return fn
	}
	return bound
}

// patchBinding publishes the proxies of one load cycle under a hidden,
// per-cycle global name.
type patchBinding struct {
	name  string
	names []string
}

func (b *patchBinding) rewrite(code string) string {
	return WrapSource(code, b.names, b.name, IsStrict(code))
}

// publishPatches builds one proxy per patched global and publishes them.
// The returned cleanup removes the hidden global.
func (h *Host) publishPatches(patches map[string]map[string]goja.Value) (*patchBinding, func(), error) {
	if len(patches) == 0 {
		return nil, func() {}, nil
	}
	vm := h.vm
	global := vm.GlobalObject()

	names := make([]string, 0, len(patches))
	for name := range patches {
		names = append(names, name)
	}
	sort.Strings(names)

	holder := vm.NewObject()
	for _, name := range names {
		target, ok := global.Get(name).(*goja.Object)
		if !ok || target == nil {
			target = vm.NewObject()
		}
		if err := holder.Set(name, h.GlobalProxy(target, patches[name])); err != nil {
			return nil, nil, fmt.Errorf("patch %s: %w", name, err)
		}
	}

	binding := &patchBinding{
		name:  "__harness_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		names: names,
	}
	if err := global.DefineDataProperty(binding.name, holder, goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return nil, nil, fmt.Errorf("publish patches: %w", err)
	}

	return binding, func() {
		_ = global.Delete(binding.name)
	}, nil
}
