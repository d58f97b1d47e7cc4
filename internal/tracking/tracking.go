// Package tracking persists which versions of which components are
// materialized in the working tree.
//
// The map is a JSON object keyed by "<component id>@<version>" (or the bare
// id for a component that was never tagged). Each top-level component has
// exactly one active, authored entry. Nested entries record dependency
// versions and accumulate: a switch adds them and never removes them.
package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/version-vault/internal/component"
)

// Entry origins
const (
	OriginAuthored = "authored"
	OriginNested   = "nested"
)

// File is one tracked file of an entry
type File struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
}

// Entry records the files materialized for one component version
type Entry struct {
	Files  []File `json:"files"`
	Origin string `json:"origin,omitempty"`
	// RootDir is the directory a nested entry is materialized under
	RootDir string `json:"rootDir,omitempty"`
	// Dependencies lists the keys of the entries this version pins
	Dependencies []string `json:"dependencies,omitempty"`
	// Pinned is the dependency copy of an authored key that other
	// versions also pin
	Pinned *Entry `json:"pinned,omitempty"`
}

// IsNested reports whether the entry records a dependency version
func (e Entry) IsNested() bool {
	return e.Origin == OriginNested
}

// Paths returns the relative paths of the tracked files
func (e Entry) Paths() []string {
	paths := make([]string, len(e.Files))
	for i, f := range e.Files {
		paths[i] = f.RelativePath
	}
	return paths
}

// FilesOf builds tracked files from relative paths, sorted by path
func FilesOf(paths []string) []File {
	files := make([]File, len(paths))
	for i, p := range paths {
		p = path.Clean(p)
		files[i] = File{Name: path.Base(p), RelativePath: p}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files
}

// Map is the in-memory tracking map with explicit Load and Flush. Reads and
// writes of entries are safe for concurrent use; a read-modify-write
// spanning several calls must hold the component's Lock.
type Map struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	entries map[string]Entry
	// raw is the file content last read or written
	raw []byte

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Load reads the map at path. A missing file is an empty map.
func Load(fs afero.Fs, path string) (*Map, error) {
	m := &Map{
		fs:      fs,
		path:    path,
		entries: make(map[string]Entry),
		locks:   make(map[string]*sync.Mutex),
	}

	data, err := m.read()
	if err != nil {
		return nil, err
	}
	if m.entries, err = decode(path, data); err != nil {
		return nil, err
	}
	m.raw = data
	return m, nil
}

// Refresh re-reads the map if the file changed since the last Load or
// Flush, discarding in-memory changes. It picks up writes made by other
// processes sharing the workspace; callers hold the component's Lock.
func (m *Map) Refresh() error {
	data, err := m.read()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if data == nil || bytes.Equal(data, m.raw) {
		return nil
	}
	entries, err := decode(m.path, data)
	if err != nil {
		return err
	}
	m.entries, m.raw = entries, data
	log.WithFields(log.Fields{"path": m.path, "entries": len(entries)}).Debug("reloaded tracking map")
	return nil
}

// read returns the file content, nil for a missing file
func (m *Map) read() ([]byte, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking map: %w", err)
	}
	return data, nil
}

func decode(path string, data []byte) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode tracking map %s: %w", path, err)
	}
	for key := range entries {
		if _, _, err := component.ParseKey(key); err != nil {
			return nil, fmt.Errorf("invalid tracking map key: %w", err)
		}
	}
	return entries, nil
}

// Path returns the location the map flushes to
func (m *Map) Path() string {
	return m.path
}

// Flush writes the complete map to a temporary file and then moves it to
// the well-known location, so a failed write never leaves a partial map.
func (m *Map) Flush() error {
	m.mu.Lock()
	count := len(m.entries)
	data, err := json.MarshalIndent(m.entries, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode tracking map: %w", err)
	}

	next := m.path + ".next"
	if dir := filepath.Dir(m.path); dir != "." {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create tracking map dir: %w", err)
		}
	}
	data = append(data, '\n')
	if err := afero.WriteFile(m.fs, next, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tracking map: %w", err)
	} else if err = m.fs.Rename(next, m.path); err != nil {
		return fmt.Errorf("failed to rename tracking map: %w", err)
	}

	m.mu.Lock()
	m.raw = data
	m.mu.Unlock()

	log.WithFields(log.Fields{"path": m.path, "entries": count}).Debug("flushed tracking map")
	return nil
}

// Lock serializes read-modify-write cycles on one component. It returns
// the unlock function.
func (m *Map) Lock(id component.ID) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[id.String()]
	if !ok {
		mu = new(sync.Mutex)
		m.locks[id.String()] = mu
	}
	m.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Get returns the entry at key
func (m *Map) Get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return e, ok
}

// AddNested records a dependency entry unless one is already present. A
// key held by an authored entry keeps the dependency copy alongside it.
func (m *Map) AddNested(key string, e Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Origin, e.Pinned = OriginNested, nil
	existing, ok := m.entries[key]
	switch {
	case !ok:
		m.entries[key] = e
	case existing.IsNested() || existing.Pinned != nil:
		return false
	default:
		existing.Pinned = &e
		m.entries[key] = existing
	}
	return true
}

// Nested returns the dependency entry at key, whether stored on its own or
// alongside an authored entry
func (m *Map) Nested(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	switch {
	case !ok:
		return Entry{}, false
	case e.IsNested():
		return e, true
	case e.Pinned != nil:
		return *e.Pinned, true
	}
	return Entry{}, false
}

// SetAuthored makes e the authored entry at key. A dependency entry at the
// same key is kept.
func (m *Map) SetAuthored(key string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Origin, e.Pinned = OriginAuthored, nil
	if existing, ok := m.entries[key]; ok {
		if existing.IsNested() {
			pinned := existing
			e.Pinned = &pinned
		} else {
			e.Pinned = existing.Pinned
		}
	}
	m.entries[key] = e
}

// RemoveAuthored drops the authored entry at key, leaving any dependency
// entry in place
func (m *Map) RemoveAuthored(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	switch {
	case !ok, e.IsNested():
	case e.Pinned != nil:
		m.entries[key] = *e.Pinned
	default:
		delete(m.entries, key)
	}
}

// Active returns the authored entry of a top-level component. version is
// empty for a component tracked without a tag.
func (m *Map) Active(id component.ID) (key string, version component.Version, entry Entry, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.entries {
		if e.IsNested() {
			continue
		}
		kid, kv, err := component.ParseKey(k)
		if err != nil || kid != id {
			continue
		}
		// more than one authored entry is not expected; prefer the newest
		if !ok || component.CompareVersions(kv, version) > 0 {
			key, version, entry, ok = k, kv, e, true
		}
	}
	return key, version, entry, ok
}

// Keys returns all keys in sorted order
func (m *Map) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of the map
func (m *Map) Entries() map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Entry, len(m.entries))
	for k, e := range m.entries {
		out[k] = e
	}
	return out
}

// Restore replaces all entries, undoing changes since entries was taken
// with Entries
func (m *Map) Restore(entries map[string]Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry, len(entries))
	for k, e := range entries {
		m.entries[k] = e
	}
}
