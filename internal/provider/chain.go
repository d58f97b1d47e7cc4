// Package provider composes snapshot providers.
package provider

import (
	"context"
	"errors"

	"github.com/version-vault/internal/component"
)

// Chain asks each provider in turn. A snapshot missing from one provider
// is looked up in the next; any other error stops the lookup.
type Chain []component.SnapshotProvider

var _ component.SnapshotProvider = Chain(nil)

// GetSnapshot returns the snapshot from the first provider holding it
func (c Chain) GetSnapshot(ctx context.Context, id component.ID, v component.Version) (*component.Snapshot, error) {
	for _, p := range c {
		s, err := p.GetSnapshot(ctx, id, v)
		if errors.Is(err, component.ErrSnapshotNotFound) {
			continue
		}
		return s, err
	}
	return nil, component.ErrSnapshotNotFound
}

// ListVersions returns the union of all providers' versions, ascending
func (c Chain) ListVersions(ctx context.Context, id component.ID) ([]component.Version, error) {
	seen := make(map[component.Version]bool)
	var out []component.Version

	for _, p := range c {
		vs, err := p.ListVersions(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	component.SortVersions(out)
	return out, nil
}
