package store

import (
	"context"
	"errors"
	"time"

	"github.com/version-vault/internal/component"
)

// ErrVersionExists is returned when tagging a version that is already stored
var ErrVersionExists = errors.New("version already exists")

// Component represents a component known to the store
type Component struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ComponentID returns the global identity of the component
func (c Component) ComponentID() component.ID {
	return component.ID{Scope: c.Scope, Name: c.Name}
}

// ComponentWithVersionCount extends Component with version info for listing
type ComponentWithVersionCount struct {
	Component
	VersionCount  int               `json:"version_count"`
	LatestVersion component.Version `json:"latest_version"`
}

// TaggedVersion represents one stored version of a component
type TaggedVersion struct {
	Version   component.Version `json:"version"`
	FileCount int               `json:"file_count"`
	TaggedAt  time.Time         `json:"tagged_at"`
}

// Store defines the interface for the snapshot store
type Store interface {
	component.SnapshotProvider

	// Component operations
	GetComponent(ctx context.Context, id component.ID) (*Component, error)
	ListComponents(ctx context.Context) ([]ComponentWithVersionCount, error)

	// Version operations
	CreateSnapshot(ctx context.Context, snapshot *component.Snapshot) error
	ListTaggedVersions(ctx context.Context, id component.ID) ([]TaggedVersion, error)

	// Utility
	Close() error
}
