package diff

import (
	"fmt"
	"sort"

	"github.com/version-vault/internal/component"
)

// File change statuses
const (
	StatusAdded    = "added"
	StatusRemoved  = "removed"
	StatusModified = "modified"
)

// FileDiff is the change of one file between two snapshots
type FileDiff struct {
	Path   string      `json:"path"`
	Status string      `json:"status"`
	Diff   *DiffResult `json:"diff"`
}

// Snapshots compares every file of two versions of a component, in path
// order. Unchanged files are omitted.
func Snapshots(from, to *component.Snapshot) ([]FileDiff, error) {
	paths := make(map[string]bool)
	for _, p := range from.Paths() {
		paths[p] = true
	}
	for _, p := range to.Paths() {
		paths[p] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var out []FileDiff
	for _, p := range sorted {
		a, inOld := from.File(p)
		b, inNew := to.File(p)
		if inOld && inNew && a.Hash == b.Hash {
			continue
		}

		status := StatusModified
		switch {
		case !inOld:
			status = StatusAdded
		case !inNew:
			status = StatusRemoved
		}

		d, err := CompareVersions(a.Content, b.Content,
			fmt.Sprintf("%s (%s)", p, from.Version),
			fmt.Sprintf("%s (%s)", p, to.Version))
		if err != nil {
			return nil, fmt.Errorf("failed to diff %s: %w", p, err)
		}
		out = append(out, FileDiff{Path: p, Status: status, Diff: d})
	}
	return out, nil
}
