package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-vault/internal/component"
)

var labels = Labels{Ours: "bar/foo.js (working)", Theirs: "bar/foo.js (0.0.1)"}

func TestMerge3NonOverlapping(t *testing.T) {
	result, err := Merge3(
		[]byte("a\nb\nc\nd\ne\n"),
		[]byte("a\nB\nc\nd\ne\n"),
		[]byte("a\nb\nc\nD\ne\n"),
		labels,
	)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Conflicts)
	assert.Equal(t, "a\nB\nc\nD\ne\n", string(result.Content))
}

func TestMerge3Conflict(t *testing.T) {
	result, err := Merge3(
		[]byte("a\nb\nc\n"),
		[]byte("a\nX\nc\n"),
		[]byte("a\nY\nc\n"),
		labels,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t,
		"a\n<<<<<<< bar/foo.js (working)\nX\n=======\nY\n>>>>>>> bar/foo.js (0.0.1)\nc\n",
		string(result.Content))
	assert.True(t, HasConflictMarkers(result.Content))
}

func TestMerge3IdenticalEditsTakenOnce(t *testing.T) {
	result, err := Merge3(
		[]byte("a\nb\nc\nd\n"),
		[]byte("a\nX\nc\nD\n"),
		[]byte("a\nX\nc\nd\n"),
		labels,
	)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Conflicts)
	assert.Equal(t, "a\nX\nc\nD\n", string(result.Content))
}

func TestMerge3InsertionsAtSamePointConflict(t *testing.T) {
	result, err := Merge3(
		[]byte("a\nb\n"),
		[]byte("a\nX\nb\n"),
		[]byte("a\nY\nb\n"),
		labels,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Contains(t, string(result.Content), "X\n=======\nY\n")
}

func TestMerge3OneSidedChanges(t *testing.T) {
	result, err := Merge3([]byte("a\n"), []byte("a\n"), []byte("b\n"), labels)
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(result.Content))

	result, err = Merge3([]byte("a\n"), []byte("b\n"), []byte("a\n"), labels)
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(result.Content))
}

func TestMerge3MissingTrailingNewline(t *testing.T) {
	result, err := Merge3([]byte("a"), []byte("b"), []byte("c"), labels)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t,
		"<<<<<<< bar/foo.js (working)\nb\n=======\nc\n>>>>>>> bar/foo.js (0.0.1)\n",
		string(result.Content))
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("module.exports = 1;\n")))
	assert.False(t, IsBinary(nil))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))
	assert.True(t, IsBinary([]byte{0xff, 0xfe}))
}

func TestHasConflictMarkers(t *testing.T) {
	assert.False(t, HasConflictMarkers([]byte("a\n<<<<<<<<<< not a marker\n")))
	assert.True(t, HasConflictMarkers([]byte("<<<<<<<\nx\n")))
}

func TestCompare(t *testing.T) {
	result, err := Compare([]byte("a\nb\n"), []byte("a\nc\n"))
	require.NoError(t, err)

	assert.True(t, result.HasChanges)
	assert.Equal(t, DiffStats{LinesAdded: 1, LinesRemoved: 1, LinesChanged: 1}, result.Stats)
	assert.Contains(t, result.UnifiedDiff, "--- old")
	assert.Contains(t, result.UnifiedDiff, "+++ new")
	assert.Contains(t, result.UnifiedDiff, "-b\n")
	assert.Contains(t, result.UnifiedDiff, "+c\n")

	require.Len(t, result.Lines, 3)
	assert.Equal(t, DiffLine{Type: DiffLineContext, OldLineNum: 1, NewLineNum: 1, Content: "a"}, result.Lines[0])
}

func TestCompareUnchangedAndBinary(t *testing.T) {
	result, err := Compare([]byte("same"), []byte("same"))
	require.NoError(t, err)
	assert.False(t, result.HasChanges)
	assert.Empty(t, result.Lines)

	result, err = CompareVersions([]byte{0, 1}, []byte{0, 2}, "x@0.0.1", "x@0.0.2")
	require.NoError(t, err)
	assert.True(t, result.HasChanges)
	assert.True(t, result.Binary)
	assert.Empty(t, result.UnifiedDiff)
}

func TestSnapshots(t *testing.T) {
	id := component.ID{Name: "a"}
	from := component.NewSnapshot(id, "1", []component.FileRecord{
		component.NewFileRecord("same.txt", []byte("x\n")),
		component.NewFileRecord("gone.txt", []byte("bye\n")),
		component.NewFileRecord("f.txt", []byte("a\nb\n")),
	}, nil)
	to := component.NewSnapshot(id, "2", []component.FileRecord{
		component.NewFileRecord("same.txt", []byte("x\n")),
		component.NewFileRecord("f.txt", []byte("a\nc\n")),
		component.NewFileRecord("new.txt", []byte("hi\n")),
	}, nil)

	diffs, err := Snapshots(from, to)
	require.NoError(t, err)
	require.Len(t, diffs, 3)

	assert.Equal(t, "f.txt", diffs[0].Path)
	assert.Equal(t, StatusModified, diffs[0].Status)
	assert.Contains(t, diffs[0].Diff.UnifiedDiff, "--- f.txt (1)")
	assert.Contains(t, diffs[0].Diff.UnifiedDiff, "+++ f.txt (2)")
	assert.Equal(t, 1, diffs[0].Diff.Stats.LinesAdded)

	assert.Equal(t, "gone.txt", diffs[1].Path)
	assert.Equal(t, StatusRemoved, diffs[1].Status)
	assert.Equal(t, "new.txt", diffs[2].Path)
	assert.Equal(t, StatusAdded, diffs[2].Status)
}
