// Package merge runs the three-way merges of a version switch.
package merge

import (
	"context"
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/delta"
	"github.com/version-vault/internal/diff"
	"github.com/version-vault/internal/metrics"
	"github.com/version-vault/internal/tmpspace"
)

// Conflict kinds carried by FileResult.Conflict
const (
	ConflictText   = "conflict"
	ConflictBinary = "binary"
)

// FileResult is the merge result of one modified file
type FileResult struct {
	Path string `json:"path"`
	// Output is the merged content, conflict-marked when Conflict is set
	Output []byte `json:"-"`
	// Conflict is empty for a clean merge
	Conflict string `json:"conflict,omitempty"`
	// Regions counts the conflict regions in Output
	Regions int `json:"regions,omitempty"`
}

// Outcome aggregates the classification and merge results of one switch
type Outcome struct {
	Add          []string     `json:"add_files"`
	Unmodified   []string     `json:"unmodified_files"`
	Override     []string     `json:"override_files"`
	Modified     []FileResult `json:"modified_files"`
	HasConflicts bool         `json:"has_conflicts"`
}

// Conflicts returns the paths that need manual resolution
func (o *Outcome) Conflicts() []string {
	var paths []string
	for _, m := range o.Modified {
		if m.Conflict != "" {
			paths = append(paths, m.Path)
		}
	}
	return paths
}

// IOError is a staging or merge failure that persisted after a retry
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to merge %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Stager materializes merge inputs. *tmpspace.Workspace is a Stager.
type Stager interface {
	Stage(content []byte) (tmpspace.Handle, error)
	Read(h tmpspace.Handle) ([]byte, error)
}

// Merger merges modified files with a bounded number of concurrent tasks
type Merger struct {
	workers int
}

// New creates a Merger. A non-positive workers uses one per CPU.
func New(workers int) *Merger {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Merger{workers: workers}
}

// MergeAll merges every candidate against target, the version being
// switched to. Results keep candidate order. The first I/O failure cancels
// outstanding merges and is returned as an *IOError.
func (m *Merger) MergeAll(ctx context.Context, st Stager, candidates []delta.Result, target component.Version) ([]FileResult, error) {
	for _, c := range candidates {
		if c.Kind != delta.KindModified {
			return nil, fmt.Errorf("file %s is %s, not a merge candidate", c.Path, c.Kind)
		}
	}
	results := make([]FileResult, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i := range candidates {
		i := i
		c := candidates[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := m.Merge(st, c, target)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Merge applies the local edits of one file (current→working) onto the
// target content (current→base)
func (m *Merger) Merge(st Stager, c delta.Result, target component.Version) (FileResult, error) {
	working, base, current, err := stageWithRetry(st, c)
	if err != nil {
		metrics.MergedFilesTotal.WithLabelValues(metrics.Fail).Inc()
		return FileResult{}, &IOError{Path: c.Path, Err: err}
	}
	result := FileResult{Path: c.Path}

	if diff.IsBinary(working) || diff.IsBinary(base) || diff.IsBinary(current) {
		result.Output = working
		result.Conflict = ConflictBinary
		metrics.MergedFilesTotal.WithLabelValues(metrics.Binary).Inc()
		log.WithField("path", c.Path).Warn("binary file changed on both sides, keeping working copy")
		return result, nil
	}

	merged, err := diff.Merge3(current, working, base, diff.Labels{
		Ours:   c.Path + " (working)",
		Theirs: fmt.Sprintf("%s (%s)", c.Path, target),
	})
	if err != nil {
		metrics.MergedFilesTotal.WithLabelValues(metrics.Fail).Inc()
		return FileResult{}, &IOError{Path: c.Path, Err: err}
	}

	result.Output = merged.Content
	result.Regions = merged.Conflicts
	if merged.Conflicts > 0 {
		result.Conflict = ConflictText
		metrics.MergedFilesTotal.WithLabelValues(metrics.Conflict).Inc()
		log.WithFields(log.Fields{"path": c.Path, "regions": merged.Conflicts}).Info("merge conflict")
	} else {
		metrics.MergedFilesTotal.WithLabelValues(metrics.Merged).Inc()
	}
	return result, nil
}

// stageWithRetry stages the three variants and reads them back, retrying
// once on failure
func stageWithRetry(st Stager, c delta.Result) (working, base, current []byte, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			metrics.MergeRetriesTotal.Inc()
			log.WithFields(log.Fields{"path": c.Path, "err": err}).Warn("retrying merge staging")
		}
		if working, base, current, err = stageTriple(st, c); err == nil {
			return working, base, current, nil
		}
	}
	return nil, nil, nil, err
}

func stageTriple(st Stager, c delta.Result) (working, base, current []byte, err error) {
	contents := [][]byte{c.Working.Content, c.Base.Content, c.Current.Content}
	out := make([][]byte, len(contents))

	for i, content := range contents {
		h, err := st.Stage(content)
		if err != nil {
			return nil, nil, nil, err
		}
		if out[i], err = st.Read(h); err != nil {
			return nil, nil, nil, err
		}
	}
	return out[0], out[1], out[2], nil
}

// Aggregate builds the Outcome from the classification and the merge
// results of its modified files, both in classification order
func Aggregate(classified []delta.Result, merged []FileResult) (*Outcome, error) {
	o := &Outcome{
		Add:        []string{},
		Unmodified: []string{},
		Override:   []string{},
		Modified:   []FileResult{},
	}
	byPath := make(map[string]FileResult, len(merged))
	for _, m := range merged {
		byPath[m.Path] = m
	}

	for _, r := range classified {
		switch r.Kind {
		case delta.KindAdd:
			o.Add = append(o.Add, r.Path)
		case delta.KindUnmodified:
			o.Unmodified = append(o.Unmodified, r.Path)
		case delta.KindOverride:
			o.Override = append(o.Override, r.Path)
		case delta.KindModified:
			m, ok := byPath[r.Path]
			if !ok {
				return nil, fmt.Errorf("unable to find %s in merge results", r.Path)
			}
			if m.Conflict == ConflictText && !diff.HasConflictMarkers(m.Output) {
				return nil, fmt.Errorf("text conflict in %s carries no conflict markers", r.Path)
			}
			o.Modified = append(o.Modified, m)
			if m.Conflict != "" {
				o.HasConflicts = true
			}
		default:
			return nil, fmt.Errorf("unknown classification %s for %s", r.Kind, r.Path)
		}
	}
	return o, nil
}

// Candidates filters the modified files out of a classification
func Candidates(classified []delta.Result) []delta.Result {
	var out []delta.Result
	for _, r := range classified {
		if r.Kind == delta.KindModified {
			out = append(out, r)
		}
	}
	return out
}
