package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/wanfaliang/finexus-data-collector-sub002/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

const configFileName = "config.toml"

// ConfigStore keeps settings in a TOML file. Tables are read as dot-notation
// keys ("quota.daily_limit") and written back as tables. Overridden keys
// shadow the file for this process only.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
	overlay  map[string]any
}

// NewConfigStore opens configDir/config.toml, creating the directory if
// needed. An empty configDir means ~/.finexus. A missing file is not an error.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		configDir = filepath.Join(home, ".finexus")
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, configFileName),
		overlay:  make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the overridden value for key if any, else the file value.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.overlay[key]; ok {
		return v, true
	}
	v, ok := s.data[key]
	return v, ok
}

func lookup[T any](s *ConfigStore, key string, convert func(any) (T, bool)) T {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero
	}
	if out, ok := convert(v); ok {
		return out
	}
	return zero
}

func typed[T any](v any) (T, bool) {
	out, ok := v.(T)
	return out, ok
}

// toInt accepts the int64 that TOML decodes integers to.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// toStrings accepts the []any that TOML decodes arrays to, dropping
// non-string elements.
func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	}
	return nil, false
}

func (s *ConfigStore) GetString(key string) string { return lookup(s, key, typed[string]) }
func (s *ConfigStore) GetInt(key string) int       { return lookup(s, key, toInt) }
func (s *ConfigStore) GetFloat(key string) float64 { return lookup(s, key, toFloat) }
func (s *ConfigStore) GetBool(key string) bool     { return lookup(s, key, typed[bool]) }

func (s *ConfigStore) GetStringSlice(key string) []string {
	return lookup(s, key, toStrings)
}

// Set stores a file value and writes the file.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.writeLocked()
}

// Save writes the file values; overrides are never written.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

func (s *ConfigStore) writeLocked() error {
	out, err := toml.Marshal(nestMap(s.data))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	// The file may hold the API key.
	if err := os.WriteFile(s.filePath, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", s.filePath, err)
	}
	return nil
}

// Load replaces the file values with the file's contents.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		s.data = make(map[string]any)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.filePath, err)
	}

	tables := make(map[string]any)
	if err := toml.Unmarshal(raw, &tables); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	s.data = flattenMap(tables, "")
	return nil
}

// nestMap turns dot-notation keys back into tables, in sorted key order. A
// key under a prefix that already holds a plain value stays a quoted
// dotted key.
func nestMap(flat map[string]any) map[string]any {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, key := range keys {
		parts := strings.Split(key, ".")
		table, ok := tableFor(root, parts[:len(parts)-1])
		if !ok {
			root[key] = flat[key]
			continue
		}
		table[parts[len(parts)-1]] = flat[key]
	}
	return root
}

// tableFor walks or creates the nested table at path. It reports false when
// a path element is already a plain value.
func tableFor(root map[string]any, path []string) (map[string]any, bool) {
	table := root
	for _, part := range path {
		child, exists := table[part]
		if !exists {
			next := make(map[string]any)
			table[part] = next
			table = next
			continue
		}
		next, isTable := child.(map[string]any)
		if !isTable {
			return nil, false
		}
		table = next
	}
	return table, true
}

// flattenMap turns {"a": {"b": 1}} into {"a.b": 1}.
func flattenMap(tables map[string]any, prefix string) map[string]any {
	flat := make(map[string]any)
	for k, v := range tables {
		if prefix != "" {
			k = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flattenMap(nested, k) {
				flat[nk] = nv
			}
			continue
		}
		flat[k] = v
	}
	return flat
}

// Override shadows key with value for this process only.
func (s *ConfigStore) Override(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay[key] = value
}

// Path returns the config file location.
func (s *ConfigStore) Path() string {
	return s.filePath
}
