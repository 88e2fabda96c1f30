// Package fixtures reads object documents from disk for pre-populating a
// store.
//
// A fixture file holds a single object (a document with an "_id"), a list of
// objects, or a map from id to object. JSON, YAML and TOML are understood.
package fixtures

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

// DefaultPattern selects every supported fixture file.
const DefaultPattern = "**/*.{json,yaml,yml,toml}"

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported fixture format")

// Load reads all fixture files below dir whose slash-separated relative path
// matches one of patterns (DefaultPattern when none are given). Objects are
// returned ordered by file path, then by position within the file.
func Load(dir string, patterns ...string) ([]store.Object, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid fixture pattern %q", p)
		}
	}

	files, err := find(dir, patterns)
	if err != nil {
		return nil, err
	}

	var objects []store.Object
	for _, file := range files {
		objs, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		objects = append(objects, objs...)
	}
	return objects, nil
}

// find walks dir concurrently and returns the matching files, sorted.
func find(dir string, patterns []string) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, rel); ok {
				mu.Lock()
				files = append(files, path)
				mu.Unlock()
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk fixtures in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile decodes a single fixture file.
func LoadFile(path string) ([]store.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var doc any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = sonic.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".toml":
		var table map[string]any
		err = toml.Unmarshal(data, &table)
		doc = table
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	objects, err := objectsOf(doc)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return objects, nil
}

func objectsOf(doc any) ([]store.Object, error) {
	switch t := doc.(type) {
	case nil:
		return nil, nil
	case []any:
		objects := make([]store.Object, 0, len(t))
		for i, item := range t {
			m, ok := normalize(item).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entry %d is not an object", i)
			}
			objects = append(objects, store.Object(m))
		}
		return objects, nil
	case map[string]any:
		if _, ok := t[store.KeyID]; ok {
			return []store.Object{store.Object(normalize(t).(map[string]any))}, nil
		}
		ids := make([]string, 0, len(t))
		for id := range t {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		objects := make([]store.Object, 0, len(t))
		for _, id := range ids {
			m, ok := normalize(t[id]).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entry %q is not an object", id)
			}
			if _, ok := m[store.KeyID]; !ok {
				m[store.KeyID] = id
			}
			objects = append(objects, store.Object(m))
		}
		return objects, nil
	default:
		return nil, fmt.Errorf("expected an object, a list or a map, got %T", doc)
	}
}

// normalize rewrites decoder specific containers into map[string]any and
// []any trees.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

// Seed publishes objects into st in order.
func Seed(st *store.Store, objects []store.Object) error {
	for _, obj := range objects {
		if err := st.PublishObject(obj); err != nil {
			return fmt.Errorf("seed %q: %w", obj.ID(), err)
		}
	}
	return nil
}
