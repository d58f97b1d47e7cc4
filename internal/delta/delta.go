// Package delta classifies working-tree files against the target and the
// currently recorded snapshot of a component.
package delta

import (
	"fmt"

	"github.com/version-vault/internal/component"
)

// Kind is the classification of one working-tree file
type Kind int

const (
	// KindAdd has no counterpart in the base or the current snapshot
	KindAdd Kind = iota
	// KindUnmodified matches the current snapshot and is replaced by the base
	KindUnmodified
	// KindOverride already matches the base and is kept as is
	KindOverride
	// KindModified diverges from both and needs a three-way merge
	KindModified
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindUnmodified:
		return "unmodified"
	case KindOverride:
		return "override"
	case KindModified:
		return "modified"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the classification of one working file. Base and Current are
// set for every kind except KindAdd.
type Result struct {
	Path    string
	Kind    Kind
	Working component.FileRecord
	Base    component.FileRecord
	Current component.FileRecord
}

// Classify buckets every working file, in working-file order. base is the
// snapshot being switched to and current the one presently recorded.
// Files only present in the snapshots are not reported.
func Classify(working []component.FileRecord, base, current *component.Snapshot) []Result {
	results := make([]Result, 0, len(working))

	for _, w := range working {
		r := Result{Path: w.Path, Working: w}

		b, inBase := base.File(w.Path)
		c, inCurrent := current.File(w.Path)

		switch {
		case !inBase || !inCurrent:
			r.Kind = KindAdd
		case w.Hash == c.Hash:
			// no local edits, checking base as well is not needed
			r.Kind = KindUnmodified
		case w.Hash == b.Hash:
			r.Kind = KindOverride
		default:
			r.Kind = KindModified
		}
		if r.Kind != KindAdd {
			r.Base, r.Current = b, c
		}
		results = append(results, r)
	}
	return results
}

// IsModified reports whether the working files differ from the snapshot:
// different content, a tracked file missing on disk, or an extra file
func IsModified(working []component.FileRecord, snapshot *component.Snapshot) bool {
	if len(working) != len(snapshot.Files) {
		return true
	}
	for _, w := range working {
		s, ok := snapshot.File(w.Path)
		if !ok || s.Hash != w.Hash {
			return true
		}
	}
	return false
}

// Counts tallies results per kind
func Counts(results []Result) map[Kind]int {
	counts := make(map[Kind]int, 4)
	for _, r := range results {
		counts[r.Kind]++
	}
	return counts
}
