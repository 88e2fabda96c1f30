package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja_nodejs/require"
)

var probeSuffixes = []string{"", ".js", ".json"}

type packageManifest struct {
	Main string `json:"main"`
}

// Resolve maps a file specifier to an absolute filename the way Node does:
// relative and absolute paths are probed as file then directory, bare
// specifiers are searched in node_modules directories from dir upwards.
// Core modules are not files and are not resolved here.
func (h *Host) Resolve(specifier, dir string) (string, error) {
	if dir == "" {
		dir = h.config.Cwd
	}

	if isPathSpecifier(specifier) {
		base := dir
		if filepath.IsAbs(specifier) {
			base = ""
		}
		if filename, ok := resolveFileOrDirectory(require.DefaultPathResolver(base, specifier)); ok {
			return filename, nil
		}
		return "", fmt.Errorf("%w: %s (from %s)", ErrModuleNotFound, specifier, dir)
	}

	for start := dir; ; {
		nodeModules := start
		if filepath.Base(start) != "node_modules" {
			nodeModules = filepath.Join(start, "node_modules")
		}
		if filename, ok := resolveFileOrDirectory(require.DefaultPathResolver(nodeModules, specifier)); ok {
			return filename, nil
		}
		parent := filepath.Dir(start)
		if parent == start {
			break
		}
		start = parent
	}
	return "", fmt.Errorf("%w: %s (from %s)", ErrModuleNotFound, specifier, dir)
}

func resolveFileOrDirectory(p string) (string, bool) {
	if filename, ok := resolveFile(p); ok {
		return filename, true
	}
	return resolveDirectory(p)
}

func resolveFile(p string) (string, bool) {
	for _, suffix := range probeSuffixes {
		candidate := p + suffix
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

func resolveDirectory(p string) (string, bool) {
	if info, err := os.Stat(p); err != nil || !info.IsDir() {
		return "", false
	}

	if data, err := os.ReadFile(filepath.Join(p, "package.json")); err == nil {
		var manifest packageManifest
		if err := sonic.Unmarshal(data, &manifest); err == nil && manifest.Main != "" {
			main := filepath.Join(p, filepath.FromSlash(manifest.Main))
			if filename, ok := resolveFile(main); ok {
				return filename, true
			}
			if filename, ok := resolveIndex(main); ok {
				return filename, true
			}
		}
	}
	return resolveIndex(p)
}

func resolveIndex(dir string) (string, bool) {
	return resolveFile(filepath.Join(dir, "index"))
}
