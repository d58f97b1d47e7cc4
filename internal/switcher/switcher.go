// Package switcher switches the working copy of a component between
// versions, merging local edits into the target version.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/delta"
	"github.com/version-vault/internal/merge"
	"github.com/version-vault/internal/metrics"
	"github.com/version-vault/internal/tmpspace"
	"github.com/version-vault/internal/tracking"
)

// Options configure a Switcher
type Options struct {
	// DependenciesDir is where dependency versions are materialized,
	// relative to the working tree
	DependenciesDir string
	// StagingFs and TempDir locate merge staging; StagingFs defaults to
	// the working tree filesystem
	StagingFs afero.Fs
	TempDir   string
	// Workers bounds concurrent merges; 0 means one per CPU
	Workers int
}

// Switcher is the only writer of the working tree and the tracking map
// during a switch
type Switcher struct {
	fs        afero.Fs
	tracking  *tracking.Map
	snapshots component.SnapshotProvider
	merger    *merge.Merger
	opts      Options
}

// Result summarizes a completed switch
type Result struct {
	ID       component.ID      `json:"id"`
	Version  component.Version `json:"version"`
	Previous component.Version `json:"previous"`
	Outcome  *merge.Outcome    `json:"outcome"`
	// Dependencies are the dependency keys newly added to the tracking map
	Dependencies []string `json:"dependencies,omitempty"`
	// Conflicts are the files needing manual resolution
	Conflicts []string `json:"conflicts,omitempty"`
}

// New creates a Switcher over a working tree rooted at fs
func New(fs afero.Fs, tm *tracking.Map, snapshots component.SnapshotProvider, opts Options) *Switcher {
	if opts.StagingFs == nil {
		opts.StagingFs = fs
	}
	if opts.DependenciesDir == "" {
		opts.DependenciesDir = ".dependencies"
	}
	return &Switcher{
		fs:        fs,
		tracking:  tm,
		snapshots: snapshots,
		merger:    merge.New(opts.Workers),
		opts:      opts,
	}
}

// Switch materializes version target of component id, keeping local edits
// where they merge cleanly. Conflicts do not fail the switch; the
// conflicted files are written with markers and listed in the Result.
func (s *Switcher) Switch(ctx context.Context, id component.ID, target component.Version) (*Result, error) {
	start := time.Now()
	defer s.tracking.Lock(id)()

	res, err := s.doSwitch(ctx, id, target)

	switch {
	case err == nil && len(res.Conflicts) > 0:
		metrics.SwitchesTotal.WithLabelValues(metrics.Conflict).Inc()
	case err == nil:
		metrics.SwitchesTotal.WithLabelValues(metrics.Ok).Inc()
	case IsPrecondition(err):
		metrics.SwitchesTotal.WithLabelValues(metrics.Rejected).Inc()
	default:
		metrics.SwitchesTotal.WithLabelValues(metrics.Fail).Inc()
	}
	if err != nil {
		log.WithFields(log.Fields{"component": id.String(), "version": target, "err": err}).Warn("switch failed")
		return nil, err
	}

	metrics.SwitchDurationSeconds.Observe(time.Since(start).Seconds())
	log.WithFields(log.Fields{
		"component": id.String(),
		"from":      res.Previous,
		"to":        res.Version,
		"conflicts": len(res.Conflicts),
	}).Info("switched component version")
	return res, nil
}

func (s *Switcher) doSwitch(ctx context.Context, id component.ID, target component.Version) (*Result, error) {
	if err := s.tracking.Refresh(); err != nil {
		return nil, err
	}

	// Preconditions. Nothing is mutated until all of them pass.
	activeKey, current, entry, ok := s.tracking.Active(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if current == "" {
		return nil, &NoVersionError{ID: id}
	}

	base, err := s.getSnapshot(ctx, id, target)
	if err != nil {
		return nil, err
	}
	deps := make([]*component.Snapshot, 0, len(base.Dependencies))
	for _, d := range base.Dependencies {
		ds, err := s.getSnapshot(ctx, d.ID, d.Version)
		if err != nil {
			return nil, err
		}
		deps = append(deps, ds)
	}

	cur, err := s.snapshots.GetSnapshot(ctx, id, current)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked version %s: %w", component.Key(id, current), err)
	}

	working, err := s.readWorking(entry)
	if err != nil {
		return nil, err
	}
	if delta.IsModified(working, cur) {
		versions, err := s.snapshots.ListVersions(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to list versions: %w", err)
		}
		if len(versions) < 2 || target == current {
			return nil, &UnsupportedMergeError{ID: id}
		}
	}

	// Classify and merge.
	classified := delta.Classify(working, base, cur)
	outcome, err := s.mergeAll(ctx, classified, target)
	if err != nil {
		return nil, err
	}
	counts := delta.Counts(classified)
	log.WithFields(log.Fields{
		"component":  id.String(),
		"add":        counts[delta.KindAdd],
		"unmodified": counts[delta.KindUnmodified],
		"override":   counts[delta.KindOverride],
		"modified":   counts[delta.KindModified],
	}).Debug("classified working files")

	// Apply. Working tree writes are not rolled back on failure.
	tracked, err := s.apply(base, classified, outcome)
	if err != nil {
		return nil, err
	}

	newKey := component.Key(id, target)
	depKeys := make([]string, len(deps))
	for i, ds := range deps {
		depKeys[i] = component.Key(ds.ID, ds.Version)
	}
	saved := s.tracking.Entries()
	s.tracking.RemoveAuthored(activeKey)
	s.tracking.SetAuthored(newKey, tracking.Entry{
		Files:        tracking.FilesOf(tracked),
		Dependencies: depKeys,
	})

	var added []string
	for _, ds := range deps {
		key, ok, err := s.materializeDependency(ds)
		if err != nil {
			s.tracking.Restore(saved)
			return nil, err
		}
		if ok {
			added = append(added, key)
		}
	}

	if err := s.tracking.Flush(); err != nil {
		s.tracking.Restore(saved)
		return nil, &TrackingMapWriteError{Err: err}
	}

	return &Result{
		ID:           id,
		Version:      target,
		Previous:     current,
		Outcome:      outcome,
		Dependencies: added,
		Conflicts:    outcome.Conflicts(),
	}, nil
}

// getSnapshot fetches a snapshot, mapping a missing one to UnknownVersionError
func (s *Switcher) getSnapshot(ctx context.Context, id component.ID, v component.Version) (*component.Snapshot, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, id, v)
	if errors.Is(err, component.ErrSnapshotNotFound) {
		return nil, &UnknownVersionError{ID: id, Version: v}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", component.Key(id, v), err)
	}
	return snap, nil
}

// readWorking reads the tracked files present on disk. Tracked files that
// were deleted are skipped.
func (s *Switcher) readWorking(entry tracking.Entry) ([]component.FileRecord, error) {
	var files []component.FileRecord
	for _, f := range entry.Files {
		content, err := afero.ReadFile(s.fs, f.RelativePath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.RelativePath, err)
		}
		files = append(files, component.NewFileRecord(f.RelativePath, content))
	}
	return files, nil
}

// mergeAll merges the modified candidates inside a scoped temp workspace
func (s *Switcher) mergeAll(ctx context.Context, classified []delta.Result, target component.Version) (*merge.Outcome, error) {
	candidates := merge.Candidates(classified)
	if len(candidates) == 0 {
		return merge.Aggregate(classified, nil)
	}

	ws, err := tmpspace.Acquire(s.opts.StagingFs, s.opts.TempDir)
	if err != nil {
		return nil, &merge.IOError{Path: s.opts.TempDir, Err: err}
	}
	defer ws.Release()
	log.WithFields(log.Fields{"dir": ws.Dir(), "files": len(candidates)}).Debug("merging in staging workspace")

	merged, err := s.merger.MergeAll(ctx, ws, candidates, target)
	if err != nil {
		return nil, err
	}
	return merge.Aggregate(classified, merged)
}

// apply writes the target version into the working tree and returns the
// paths materialized under it
func (s *Switcher) apply(base *component.Snapshot, classified []delta.Result, outcome *merge.Outcome) ([]string, error) {
	seen := make(map[string]bool, len(classified))
	adds := make(map[string]bool)
	merged := make(map[string][]byte, len(outcome.Modified))
	for _, m := range outcome.Modified {
		merged[m.Path] = m.Output
	}

	for _, r := range classified {
		seen[r.Path] = true

		switch r.Kind {
		case delta.KindAdd:
			// left on disk, the user may still need it
			adds[r.Path] = true
		case delta.KindUnmodified:
			if err := s.writeFile(r.Path, r.Base.Content); err != nil {
				return nil, err
			}
		case delta.KindOverride:
			// already holds the target content
		case delta.KindModified:
			if err := s.writeFile(r.Path, merged[r.Path]); err != nil {
				return nil, err
			}
		}
	}

	var tracked []string
	for _, f := range base.Files {
		if adds[f.Path] {
			continue
		}
		if !seen[f.Path] {
			if err := s.writeFile(f.Path, f.Content); err != nil {
				return nil, err
			}
		}
		tracked = append(tracked, f.Path)
	}
	return tracked, nil
}

// materializeDependency writes a dependency version under its own
// directory and adds its nested entry. Existing nested entries are left
// alone.
func (s *Switcher) materializeDependency(ds *component.Snapshot) (string, bool, error) {
	key := component.Key(ds.ID, ds.Version)
	if _, ok := s.tracking.Nested(key); ok {
		return key, false, nil
	}

	root := path.Join(filepath.ToSlash(s.opts.DependenciesDir), ds.ID.String(), string(ds.Version))
	paths := make([]string, len(ds.Files))
	for i, f := range ds.Files {
		paths[i] = path.Join(root, f.Path)
		if err := s.writeFile(paths[i], f.Content); err != nil {
			return "", false, err
		}
	}

	var pins []string
	for _, d := range ds.Dependencies {
		pins = append(pins, d.String())
	}
	return key, s.tracking.AddNested(key, tracking.Entry{
		Files:        tracking.FilesOf(paths),
		RootDir:      root,
		Dependencies: pins,
	}), nil
}

func (s *Switcher) writeFile(p string, content []byte) error {
	if dir := filepath.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(s.fs, p, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// Modified reports whether the working files of a tagged component differ
// from its tracked version
func (s *Switcher) Modified(ctx context.Context, id component.ID) (bool, error) {
	defer s.tracking.Lock(id)()
	if err := s.tracking.Refresh(); err != nil {
		return false, err
	}

	_, current, entry, ok := s.tracking.Active(id)
	if !ok {
		return false, &NotFoundError{ID: id}
	}
	if current == "" {
		return true, nil
	}

	cur, err := s.snapshots.GetSnapshot(ctx, id, current)
	if err != nil {
		return false, fmt.Errorf("failed to get tracked version %s: %w", component.Key(id, current), err)
	}
	working, err := s.readWorking(entry)
	if err != nil {
		return false, err
	}
	return delta.IsModified(working, cur), nil
}
