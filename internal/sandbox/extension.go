package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"
)

// Extension turns a file of one kind into module exports.
type Extension struct {
	Name string
	Load func(m *Module, filename string) error
}

// Release undoes an installation. Calling it more than once is a no-op.
type Release func()

// Extension returns the loader currently registered for ext (".js",
// ".json").
func (h *Host) Extension(ext string) *Extension {
	h.extMu.Lock()
	defer h.extMu.Unlock()
	return h.extensions[ext]
}

// InstallScoped replaces the loader for ext with wrap(original) until the
// returned Release is called. Only one installation per extension may be
// active; a second one fails with ErrCycleInProgress and leaves the active
// one untouched. Release restores the exact *Extension that was registered
// before the install.
func (h *Host) InstallScoped(ext string, wrap func(original *Extension) *Extension) (Release, error) {
	h.extMu.Lock()
	defer h.extMu.Unlock()

	if _, busy := h.installed[ext]; busy {
		return nil, fmt.Errorf("%w: loader for %s already installed", ErrCycleInProgress, ext)
	}
	original, ok := h.extensions[ext]
	if !ok {
		return nil, fmt.Errorf("no loader registered for %s", ext)
	}

	replacement := wrap(original)
	if replacement == nil {
		return nil, errors.New("wrap returned no loader")
	}
	h.installed[ext] = original
	h.extensions[ext] = replacement

	var once sync.Once
	return func() {
		once.Do(func() {
			h.extMu.Lock()
			defer h.extMu.Unlock()
			h.extensions[ext] = original
			delete(h.installed, ext)
		})
	}, nil
}

// extensionFor picks the loader by file extension. Unknown extensions load
// as JavaScript.
func (h *Host) extensionFor(filename string) *Extension {
	h.extMu.Lock()
	defer h.extMu.Unlock()
	if ext, ok := h.extensions[filepath.Ext(filename)]; ok {
		return ext
	}
	return h.extensions[".js"]
}

func (h *Host) jsExtension() *Extension {
	return &Extension{
		Name: ".js",
		Load: func(m *Module, filename string) error {
			src, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("read %s: %w", filename, err)
			}
			return m.Compile(string(src), filename)
		},
	}
}

func (h *Host) jsonExtension() *Extension {
	return &Extension{
		Name: ".json",
		Load: func(m *Module, filename string) error {
			src, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("read %s: %w", filename, err)
			}
			vm := h.vm
			parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
			if !ok {
				return errors.New("JSON.parse is not available")
			}
			v, err := parse(goja.Undefined(), vm.ToValue(string(src)))
			if err != nil {
				return fmt.Errorf("%s: %w", filename, err)
			}
			return m.obj.Set("exports", v)
		},
	}
}
