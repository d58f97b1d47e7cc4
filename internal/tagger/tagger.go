// Package tagger starts tracking components and records tagged versions
// of their working files in the snapshot store.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/switcher"
	"github.com/version-vault/internal/tracking"
)

// SnapshotWriter stores and serves snapshots
type SnapshotWriter interface {
	component.SnapshotProvider
	CreateSnapshot(ctx context.Context, snapshot *component.Snapshot) error
}

// Tagger writes new tracking entries and snapshots
type Tagger struct {
	fs        afero.Fs
	tracking  *tracking.Map
	snapshots SnapshotWriter
}

// New creates a Tagger over a working tree rooted at fs
func New(fs afero.Fs, tm *tracking.Map, snapshots SnapshotWriter) *Tagger {
	return &Tagger{fs: fs, tracking: tm, snapshots: snapshots}
}

// Add starts tracking files as part of component id. Files already tracked
// by the component are kept; an untagged component gets a bare entry.
func (t *Tagger) Add(id component.ID, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no files to add to %s", id)
	}
	defer t.tracking.Lock(id)()

	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		p = path.Clean(filepath.ToSlash(p))
		if path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
			return "", fmt.Errorf("path %s is outside the workspace", p)
		}
		info, err := t.fs.Stat(p)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", p)
		}
		clean = append(clean, p)
	}

	if err := t.tracking.Refresh(); err != nil {
		return "", err
	}
	key, _, entry, ok := t.tracking.Active(id)
	if !ok {
		key = component.Key(id, "")
	}
	entry.Files = tracking.FilesOf(union(entry.Paths(), clean))
	t.tracking.SetAuthored(key, entry)

	if err := t.tracking.Flush(); err != nil {
		return "", &switcher.TrackingMapWriteError{Err: err}
	}
	log.WithFields(log.Fields{"component": id.String(), "files": len(entry.Files)}).Info("tracking files")
	return key, nil
}

// Tag snapshots the tracked working files of id as version v, pinning deps.
// The active entry is re-keyed to the new version.
func (t *Tagger) Tag(ctx context.Context, id component.ID, v component.Version, deps []component.Dependency) (*component.Snapshot, error) {
	if v == "" {
		return nil, fmt.Errorf("version is required")
	}
	defer t.tracking.Lock(id)()

	if err := t.tracking.Refresh(); err != nil {
		return nil, err
	}
	key, _, entry, ok := t.tracking.Active(id)
	if !ok {
		return nil, &switcher.NotFoundError{ID: id}
	}

	for _, d := range deps {
		if _, err := t.snapshots.GetSnapshot(ctx, d.ID, d.Version); err != nil {
			if errors.Is(err, component.ErrSnapshotNotFound) {
				return nil, &switcher.UnknownVersionError{ID: d.ID, Version: d.Version}
			}
			return nil, fmt.Errorf("failed to get dependency %s: %w", d, err)
		}
	}

	var files []component.FileRecord
	var present []string
	for _, p := range entry.Paths() {
		content, err := afero.ReadFile(t.fs, p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, component.NewFileRecord(p, content))
		present = append(present, p)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("component %s has no files to tag", id)
	}

	snapshot := component.NewSnapshot(id, v, files, deps)
	if err := t.snapshots.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to tag %s: %w", component.Key(id, v), err)
	}

	depKeys := make([]string, len(deps))
	for i, d := range deps {
		depKeys[i] = d.String()
	}
	newKey := component.Key(id, v)
	t.tracking.RemoveAuthored(key)
	t.tracking.SetAuthored(newKey, tracking.Entry{
		Files:        tracking.FilesOf(present),
		Dependencies: depKeys,
	})
	if err := t.tracking.Flush(); err != nil {
		return nil, &switcher.TrackingMapWriteError{Err: err}
	}

	log.WithFields(log.Fields{"component": id.String(), "version": v, "files": len(files)}).Info("tagged component")
	return snapshot, nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
