package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-vault/internal/component"
)

func newTestStore(t *testing.T) *SQLiteStore {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	id := component.ID{Scope: "remote", Name: "bar/foo"}
	dep := component.Dependency{ID: component.ID{Scope: "remote", Name: "utils/is-string"}, Version: "0.0.1"}
	snap := component.NewSnapshot(id, "0.0.1", []component.FileRecord{
		component.NewFileRecord("bar/foo.js", []byte("got foo")),
		component.NewFileRecord("bar/empty.js", []byte{}),
	}, []component.Dependency{dep})

	require.NoError(t, st.CreateSnapshot(ctx, snap))

	got, err := st.GetSnapshot(ctx, id, "0.0.1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// re-fetching yields identical content
	again, err := st.GetSnapshot(ctx, id, "0.0.1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestVersionsAreImmutable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	id := component.ID{Name: "bar/foo"}
	snap := component.NewSnapshot(id, "0.0.1", []component.FileRecord{
		component.NewFileRecord("bar/foo.js", []byte("A")),
	}, nil)
	require.NoError(t, st.CreateSnapshot(ctx, snap))

	changed := component.NewSnapshot(id, "0.0.1", []component.FileRecord{
		component.NewFileRecord("bar/foo.js", []byte("B")),
	}, nil)
	err := st.CreateSnapshot(ctx, changed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionExists))

	got, err := st.GetSnapshot(ctx, id, "0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "A", string(got.Files[0].Content))
}

func TestMissingSnapshot(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetSnapshot(context.Background(), component.ID{Name: "bar/foo"}, "1.0.0")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	c, err := st.GetComponent(context.Background(), component.ID{Name: "bar/foo"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestVersionOrdering(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	id := component.ID{Name: "bar/foo"}

	for _, v := range []component.Version{"0.0.10", "0.0.5", "0.0.9"} {
		require.NoError(t, st.CreateSnapshot(ctx, component.NewSnapshot(id, v, []component.FileRecord{
			component.NewFileRecord("bar/foo.js", []byte(v)),
		}, nil)))
	}

	versions, err := st.ListVersions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []component.Version{"0.0.5", "0.0.9", "0.0.10"}, versions)

	tagged, err := st.ListTaggedVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, tagged, 3)
	assert.Equal(t, 1, tagged[0].FileCount)

	components, err := st.ListComponents(ctx)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, 3, components[0].VersionCount)
	assert.Equal(t, component.Version("0.0.10"), components[0].LatestVersion)

	c, err := st.GetComponent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, id, c.ComponentID())
}

func TestSharedObjects(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	id := component.ID{Name: "bar/foo"}

	for _, v := range []component.Version{"0.0.1", "0.0.2"} {
		require.NoError(t, st.CreateSnapshot(ctx, component.NewSnapshot(id, v, []component.FileRecord{
			component.NewFileRecord("bar/foo.js", []byte("same")),
		}, nil)))
	}

	var objects int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM objects`).Scan(&objects))
	assert.Equal(t, 1, objects)
}
