package component

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrSnapshotNotFound is returned by a SnapshotProvider when no snapshot
// exists for the requested component and version
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ID is the global identity of a component
type ID struct {
	Scope string `json:"scope,omitempty"`
	Name  string `json:"name"`
}

// ParseID parses "scope/box/name" or "box/name" into an ID.
// Paths with three or more segments carry a scope in the first segment.
func ParseID(s string) (ID, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return ID{}, fmt.Errorf("component id is empty")
	}
	if strings.Contains(s, "@") {
		return ID{}, fmt.Errorf("component id %q must not contain a version", s)
	}

	parts := strings.Split(s, "/")
	for _, p := range parts {
		if p == "" {
			return ID{}, fmt.Errorf("component id %q has an empty segment", s)
		}
	}
	if len(parts) >= 3 {
		return ID{Scope: parts[0], Name: strings.Join(parts[1:], "/")}, nil
	}
	return ID{Name: s}, nil
}

// String returns the canonical form of the id
func (id ID) String() string {
	if id.Scope == "" {
		return id.Name
	}
	return id.Scope + "/" + id.Name
}

// IsZero reports whether the id is unset
func (id ID) IsZero() bool {
	return id.Name == ""
}

// Version is an immutable tag of a component
type Version string

// String returns the tag
func (v Version) String() string { return string(v) }

// Key returns the tracking map key for a component at a version.
// An empty version yields the bare id, used for untagged components.
func Key(id ID, v Version) string {
	if v == "" {
		return id.String()
	}
	return id.String() + "@" + string(v)
}

// ParseKey splits a tracking map key into its id and version
func ParseKey(key string) (ID, Version, error) {
	var v Version
	if i := strings.LastIndex(key, "@"); i >= 0 {
		v = Version(key[i+1:])
		key = key[:i]
		if v == "" {
			return ID{}, "", fmt.Errorf("tracking key %q has an empty version", key)
		}
	}
	id, err := ParseID(key)
	if err != nil {
		return ID{}, "", err
	}
	return id, v, nil
}

// FileRecord is one file's content at a point in time
type FileRecord struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Hash    string `json:"hash"`
}

// NewFileRecord creates a file record with its content hash derived
func NewFileRecord(relPath string, content []byte) FileRecord {
	return FileRecord{
		Path:    path.Clean(relPath),
		Content: content,
		Hash:    ComputeHash(content),
	}
}

// Name returns the base name of the file
func (f FileRecord) Name() string {
	return path.Base(f.Path)
}

// ComputeHash computes the SHA256 hash of content
func ComputeHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Dependency pins a component at the version another version requires
type Dependency struct {
	ID      ID      `json:"id"`
	Version Version `json:"version"`
}

// String returns the tracking key of the pin
func (d Dependency) String() string {
	return Key(d.ID, d.Version)
}

// ParseDependency parses "id@version"
func ParseDependency(s string) (Dependency, error) {
	id, v, err := ParseKey(s)
	if err != nil {
		return Dependency{}, err
	}
	if v == "" {
		return Dependency{}, fmt.Errorf("dependency %q has no version", s)
	}
	return Dependency{ID: id, Version: v}, nil
}

// Snapshot is the immutable file set of one component version
type Snapshot struct {
	ID           ID           `json:"id"`
	Version      Version      `json:"version"`
	Files        []FileRecord `json:"files"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// NewSnapshot builds a snapshot with its files sorted by path
func NewSnapshot(id ID, v Version, files []FileRecord, deps []Dependency) *Snapshot {
	sorted := make([]FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	return &Snapshot{
		ID:           id,
		Version:      v,
		Files:        sorted,
		Dependencies: append([]Dependency(nil), deps...),
	}
}

// File returns the record at relPath, if present
func (s *Snapshot) File(relPath string) (FileRecord, bool) {
	relPath = path.Clean(relPath)
	i := sort.Search(len(s.Files), func(i int) bool { return s.Files[i].Path >= relPath })
	if i < len(s.Files) && s.Files[i].Path == relPath {
		return s.Files[i], true
	}
	return FileRecord{}, false
}

// Paths returns the file paths in order
func (s *Snapshot) Paths() []string {
	paths := make([]string, len(s.Files))
	for i, f := range s.Files {
		paths[i] = f.Path
	}
	return paths
}

// SnapshotProvider fetches immutable snapshots of component versions
type SnapshotProvider interface {
	// GetSnapshot returns the snapshot of id at v, or ErrSnapshotNotFound
	GetSnapshot(ctx context.Context, id ID, v Version) (*Snapshot, error)
	// ListVersions returns all tagged versions of id in ascending order
	ListVersions(ctx context.Context, id ID) ([]Version, error)
}
