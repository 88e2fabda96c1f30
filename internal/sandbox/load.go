package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// LoadOptions controls one load cycle.
type LoadOptions struct {
	// Mocks replaces modules by specifier. Specifiers starting with "." are
	// keyed by their path joined onto the requiring file's directory; all
	// others are keyed verbatim.
	Mocks map[string]goja.Value

	// FakeNotRequired makes the entry module see module.parent == null, as if
	// it had been started directly instead of required.
	FakeNotRequired bool

	// GlobalPatches shadows globals for code compiled during the cycle. Each
	// entry maps a global name to property overrides; reads of any other
	// property go to the real global.
	GlobalPatches map[string]map[string]goja.Value
}

// LoadModule loads filename with a wrapping .js loader installed for the
// duration of the call. The original loader is restored on every exit path.
// The module cache is left alone: a cached entry is returned as is.
// Loop-only.
func (h *Host) LoadModule(filename string, opts LoadOptions) (*Module, error) {
	entry := filename
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(h.config.Cwd, entry)
	}
	entry, err := h.Resolve(entry, "")
	if err != nil {
		return nil, err
	}

	binding, unpublish, err := h.publishPatches(opts.GlobalPatches)
	if err != nil {
		return nil, err
	}
	defer unpublish()

	release, err := h.InstallScoped(".js", func(original *Extension) *Extension {
		return &Extension{
			Name: original.Name,
			Load: func(m *Module, filename string) error {
				h.prepare(m, filename, entry, opts, binding)
				return original.Load(m, filename)
			},
		}
	})
	if err != nil {
		return nil, err
	}
	defer release()

	h.logger.Debug("Loading module",
		zap.String("file", entry),
		zap.Int("mocks", len(opts.Mocks)),
		zap.Bool("fake_not_required", opts.FakeNotRequired))

	m, err := h.load(entry, h.main)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", entry, err)
	}
	return m, nil
}

// prepare applies the cycle's rewrites to a module about to be compiled.
func (h *Host) prepare(m *Module, filename, entry string, opts LoadOptions, binding *patchBinding) {
	if len(opts.Mocks) > 0 {
		next := m.Require
		m.Require = func(specifier string) (goja.Value, error) {
			key := specifier
			if strings.HasPrefix(specifier, ".") {
				key = filepath.Join(m.Dir(), specifier)
			}
			if v, ok := opts.Mocks[key]; ok {
				return v, nil
			}
			return next(specifier)
		}
	}

	if opts.FakeNotRequired && filename == entry {
		m.Parent = nil
	}

	if binding != nil {
		compile := m.Compile
		m.Compile = func(code, filename string) error {
			return compile(binding.rewrite(code), filename)
		}
	}
}
