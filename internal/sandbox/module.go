package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
)

const moduleWrapperHead = "(function (exports, require, module, __filename, __dirname) {"
const moduleWrapperTail = "\n})"

// RequireFunc resolves and loads a specifier on behalf of one module.
type RequireFunc func(specifier string) (goja.Value, error)

// CompileFunc compiles and runs module source.
type CompileFunc func(code, filename string) error

// Module is a loaded (or loading) CommonJS module.
//
// Require and Compile are looked up at call time, so a loader may replace
// them before delegating to the original extension.
type Module struct {
	ID       string
	Filename string
	Parent   *Module
	Children []*Module
	Loaded   bool

	Require RequireFunc
	Compile CompileFunc

	host *Host
	obj  *goja.Object
}

// Dir returns the directory of the module file.
func (m *Module) Dir() string {
	return filepath.Dir(m.Filename)
}

// Object returns the JS module object.
func (m *Module) Object() *goja.Object {
	return m.obj
}

// Exports returns module.exports.
func (m *Module) Exports() goja.Value {
	return m.obj.Get("exports")
}

// IsRequired reports whether the module has a parent, i.e. whether code
// checking module.parent sees it as required rather than run directly.
func (m *Module) IsRequired() bool {
	return m.Parent != nil
}

func (h *Host) newModule(filename string, parent *Module) *Module {
	m := &Module{
		ID:       filename,
		Filename: filename,
		Parent:   parent,
		host:     h,
	}
	m.Require = func(specifier string) (goja.Value, error) {
		return h.requireFrom(m, specifier)
	}
	m.Compile = func(code, filename string) error {
		return h.compile(m, code, filename)
	}
	m.obj = h.newModuleObject(m)
	if parent != nil {
		parent.Children = append(parent.Children, m)
	}
	return m
}

func (h *Host) newMainModule() *Module {
	m := h.newModule(filepath.Join(h.config.Cwd, "[harness]"), nil)
	m.ID = "."
	m.Loaded = true
	_ = m.obj.Set("id", m.ID)
	return m
}

// newModuleObject builds the JS side of m. parent, loaded and children read
// the Go fields so changes made by a loader are visible to module code.
func (h *Host) newModuleObject(m *Module) *goja.Object {
	vm := h.vm
	obj := vm.NewObject()
	_ = obj.Set("id", m.ID)
	_ = obj.Set("filename", m.Filename)
	_ = obj.Set("path", m.Dir())
	_ = obj.Set("exports", vm.NewObject())

	accessor := func(name string, get func() goja.Value) {
		_ = obj.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return get()
		}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	}
	accessor("parent", func() goja.Value {
		if m.Parent == nil {
			return goja.Null()
		}
		return m.Parent.obj
	})
	accessor("loaded", func() goja.Value {
		return vm.ToValue(m.Loaded)
	})
	accessor("children", func() goja.Value {
		items := make([]any, len(m.Children))
		for i, c := range m.Children {
			items[i] = c.obj
		}
		return vm.NewArray(items...)
	})

	_ = obj.Set("require", h.requireFunction(m))
	return obj
}

// requireFunction builds the require function handed to module code.
func (h *Host) requireFunction(m *Module) *goja.Object {
	vm := h.vm
	req := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0)
		if !goja.IsString(specifier) || specifier.String() == "" {
			panic(vm.NewTypeError("The \"id\" argument must be a non-empty string"))
		}
		v, err := m.Require(specifier.String())
		if err != nil {
			panic(h.jsError(err, specifier.String()))
		}
		return v
	}).(*goja.Object)

	_ = req.Set("resolve", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		if h.isNative(specifier) {
			return vm.ToValue(specifier)
		}
		filename, err := h.Resolve(specifier, m.Dir())
		if err != nil {
			panic(h.jsError(err, specifier))
		}
		return vm.ToValue(filename)
	})
	if h.main != nil {
		_ = req.Set("main", h.main.obj)
	}
	if h.cacheObj != nil {
		_ = req.Set("cache", h.cacheObj)
	}
	return req
}

// jsError converts a require failure into a value module code can catch.
func (h *Host) jsError(err error, specifier string) any {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return interrupted
	}
	if errors.Is(err, ErrModuleNotFound) {
		return jsval.NewError(h.vm, fmt.Sprintf("Cannot find module '%s'", specifier), map[string]any{
			"code": "MODULE_NOT_FOUND",
		})
	}
	return h.vm.NewGoError(err)
}

// requireFrom is the default require: core and registry modules first for
// bare specifiers, then files.
func (h *Host) requireFrom(m *Module, specifier string) (goja.Value, error) {
	if !isPathSpecifier(specifier) {
		v, err := h.natives.Require(specifier)
		if err == nil {
			return v, nil
		}
		if !isMissingNative(err) {
			return nil, err
		}
	}

	filename, err := h.Resolve(specifier, m.Dir())
	if err != nil {
		return nil, err
	}
	child, err := h.load(filename, m)
	if err != nil {
		return nil, err
	}
	return child.Exports(), nil
}

func (h *Host) isNative(specifier string) bool {
	if isPathSpecifier(specifier) {
		return false
	}
	_, err := h.natives.Require(specifier)
	return err == nil
}

func isMissingNative(err error) bool {
	return errors.Is(err, require.InvalidModuleError) ||
		errors.Is(err, require.NoSuchBuiltInModuleError) ||
		errors.Is(err, require.ModuleFileDoesNotExistError)
}

func isPathSpecifier(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") ||
		filepath.IsAbs(specifier)
}

// Require resolves specifier relative to dir and loads it with the host
// main module as parent. Loop-only.
func (h *Host) Require(specifier, dir string) (goja.Value, error) {
	if dir == "" {
		dir = h.config.Cwd
	}
	if !isPathSpecifier(specifier) {
		if v, err := h.natives.Require(specifier); err == nil {
			return v, nil
		} else if !isMissingNative(err) {
			return nil, err
		}
	}
	filename, err := h.Resolve(specifier, dir)
	if err != nil {
		return nil, err
	}
	m, err := h.load(filename, h.main)
	if err != nil {
		return nil, err
	}
	return m.Exports(), nil
}

// Load loads an already resolved file with the host main module as parent.
// Loop-only.
func (h *Host) Load(filename string) (*Module, error) {
	return h.load(filename, h.main)
}

// load returns the cached module for filename or loads it through the
// extension registered for its file extension. A failed load leaves no
// cache entry behind.
func (h *Host) load(filename string, parent *Module) (*Module, error) {
	if m, ok := h.cache[filename]; ok {
		return m, nil
	}

	ext := h.extensionFor(filename)
	m := h.newModule(filename, parent)
	h.cache[filename] = m

	if err := ext.Load(m, filename); err != nil {
		delete(h.cache, filename)
		if parent != nil {
			parent.removeChild(m)
		}
		return nil, err
	}

	m.Loaded = true
	return m, nil
}

func (m *Module) removeChild(child *Module) {
	for i, c := range m.Children {
		if c == child {
			m.Children = append(m.Children[:i], m.Children[i+1:]...)
			return
		}
	}
}

// Uncache drops filename from the module cache so the next load reads it
// again. Loop-only.
func (h *Host) Uncache(filename string) {
	delete(h.cache, filename)
}

// Cached returns the cached module for filename. Loop-only.
func (h *Host) Cached(filename string) (*Module, bool) {
	m, ok := h.cache[filename]
	return m, ok
}

// Main returns the synthetic module standing in for the host entry point.
func (h *Host) Main() *Module {
	return h.main
}

// compile wraps code in the CommonJS function wrapper and runs it with
// this = module.exports.
func (h *Host) compile(m *Module, code, filename string) error {
	vm := h.vm
	prg, err := goja.Compile(filename, moduleWrapperHead+StripHashbang(code)+moduleWrapperTail, false)
	if err != nil {
		return err
	}
	wrapper, err := vm.RunProgram(prg)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return fmt.Errorf("module wrapper for %s is not callable", filename)
	}

	exports := m.Exports()
	_, err = fn(exports,
		exports,
		m.obj.Get("require"),
		m.obj,
		vm.ToValue(filename),
		vm.ToValue(filepath.Dir(filename)),
	)
	return err
}

// newCacheObject exposes the module cache as require.cache. Deleting a key
// uncaches the module.
func (h *Host) newCacheObject() *goja.Object {
	vm := h.vm
	proxy := vm.NewProxy(vm.NewObject(), &goja.ProxyTrapConfig{
		Get: func(_ *goja.Object, property string, _ goja.Value) goja.Value {
			if m, ok := h.cache[property]; ok {
				return m.obj
			}
			return goja.Undefined()
		},
		Has: func(_ *goja.Object, property string) bool {
			_, ok := h.cache[property]
			return ok
		},
		DeleteProperty: func(_ *goja.Object, property string) bool {
			h.Uncache(property)
			return true
		},
		OwnKeys: func(_ *goja.Object) *goja.Object {
			keys := make([]any, 0, len(h.cache))
			for filename := range h.cache {
				keys = append(keys, filename)
			}
			return vm.NewArray(keys...)
		},
		GetOwnPropertyDescriptor: func(_ *goja.Object, property string) goja.PropertyDescriptor {
			m, ok := h.cache[property]
			if !ok {
				return goja.PropertyDescriptor{}
			}
			return goja.PropertyDescriptor{
				Value:        m.obj,
				Writable:     goja.FLAG_TRUE,
				Configurable: goja.FLAG_TRUE,
				Enumerable:   goja.FLAG_TRUE,
			}
		},
	})
	return vm.ToValue(proxy).(*goja.Object)
}
