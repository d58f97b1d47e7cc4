package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-vault/internal/component"
)

var id = component.ID{Name: "bar/foo"}

func rec(path, content string) component.FileRecord {
	return component.NewFileRecord(path, []byte(content))
}

func TestClassify(t *testing.T) {
	base := component.NewSnapshot(id, "0.0.1", []component.FileRecord{
		rec("bar/unmodified.js", "v1"),
		rec("bar/override.js", "v1"),
		rec("bar/modified.js", "v1"),
		rec("bar/only-base.js", "v1"),
	}, nil)
	current := component.NewSnapshot(id, "0.0.2", []component.FileRecord{
		rec("bar/unmodified.js", "v2"),
		rec("bar/override.js", "v2"),
		rec("bar/modified.js", "v2"),
		rec("bar/only-current.js", "v2"),
	}, nil)

	working := []component.FileRecord{
		rec("bar/unmodified.js", "v2"),
		rec("bar/override.js", "v1"),
		rec("bar/modified.js", "local"),
		rec("bar/only-current.js", "v2"),
		rec("bar/only-base.js", "v1"),
		rec("bar/new.js", "new"),
	}

	results := Classify(working, base, current)
	require.Len(t, results, len(working))

	var got []Kind
	for i, r := range results {
		assert.Equal(t, working[i].Path, r.Path)
		got = append(got, r.Kind)
	}
	assert.Equal(t, []Kind{KindUnmodified, KindOverride, KindModified, KindAdd, KindAdd, KindAdd}, got)

	assert.Equal(t, "v1", string(results[2].Base.Content))
	assert.Equal(t, "v2", string(results[2].Current.Content))
	assert.Equal(t, "local", string(results[2].Working.Content))

	counts := Counts(results)
	assert.Equal(t, 3, counts[KindAdd])
	assert.Equal(t, 1, counts[KindModified])
}

func TestUnmodifiedCheckedFirst(t *testing.T) {
	// base and current hold the same content, so the file matches both
	same := []component.FileRecord{rec("bar/foo.js", "same")}
	base := component.NewSnapshot(id, "0.0.1", same, nil)
	current := component.NewSnapshot(id, "0.0.2", same, nil)

	results := Classify(same, base, current)
	require.Len(t, results, 1)
	assert.Equal(t, KindUnmodified, results[0].Kind)
}

func TestIsModified(t *testing.T) {
	snap := component.NewSnapshot(id, "0.0.5", []component.FileRecord{rec("bar/foo.js", "A")}, nil)

	assert.False(t, IsModified([]component.FileRecord{rec("bar/foo.js", "A")}, snap))
	assert.True(t, IsModified([]component.FileRecord{rec("bar/foo.js", "B")}, snap))
	assert.True(t, IsModified(nil, snap))
	assert.True(t, IsModified([]component.FileRecord{rec("bar/foo.js", "A"), rec("bar/x.js", "")}, snap))
}
