package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/version-vault/internal/component"
)

// SnapshotProvider serves snapshots exported as JSON documents named
// "<prefix><component id>/<version>.json". It never writes.
type SnapshotProvider struct {
	objects objectReader
	prefix  string
}

var _ component.SnapshotProvider = (*SnapshotProvider)(nil)

// NewSnapshotProvider creates a provider over the client's container
func NewSnapshotProvider(c *Client) *SnapshotProvider {
	return newSnapshotProvider(c, c.cfg.Prefix)
}

func newSnapshotProvider(objects objectReader, prefix string) *SnapshotProvider {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &SnapshotProvider{objects: objects, prefix: prefix}
}

func (p *SnapshotProvider) componentPrefix(id component.ID) string {
	return p.prefix + id.String() + "/"
}

// GetSnapshot downloads and verifies one snapshot document
func (p *SnapshotProvider) GetSnapshot(ctx context.Context, id component.ID, v component.Version) (*component.Snapshot, error) {
	name := p.componentPrefix(id) + string(v) + ".json"

	content, err := p.objects.Download(ctx, name)
	if errors.Is(err, errBlobNotFound) {
		return nil, fmt.Errorf("%s: %w", component.Key(id, v), component.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, err
	}

	var doc component.Snapshot
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
	}
	if doc.ID != id || doc.Version != v {
		return nil, fmt.Errorf("snapshot %s describes %s", name, component.Key(doc.ID, doc.Version))
	}

	files := make([]component.FileRecord, len(doc.Files))
	for i, f := range doc.Files {
		files[i] = component.NewFileRecord(f.Path, f.Content)
		if f.Hash != "" && f.Hash != files[i].Hash {
			return nil, fmt.Errorf("snapshot %s: content hash mismatch for %s", name, f.Path)
		}
	}

	log.WithFields(log.Fields{"component": id.String(), "version": v, "blob": name}).Debug("fetched remote snapshot")
	return component.NewSnapshot(id, v, files, doc.Dependencies), nil
}

// ListVersions lists the exported versions of a component
func (p *SnapshotProvider) ListVersions(ctx context.Context, id component.ID) ([]component.Version, error) {
	prefix := p.componentPrefix(id)

	names, err := p.objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var versions []component.Version
	for _, name := range names {
		rest := strings.TrimPrefix(name, prefix)
		if strings.Contains(rest, "/") || path.Ext(rest) != ".json" {
			continue
		}
		versions = append(versions, component.Version(strings.TrimSuffix(rest, ".json")))
	}
	component.SortVersions(versions)
	return versions, nil
}
