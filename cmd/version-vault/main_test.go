package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-vault/internal/tracking"
)

type workspace struct {
	root string
	cfg  string
}

func newWorkspace(t *testing.T) *workspace {
	return newSharedWorkspace(t, filepath.Join(t.TempDir(), "objects.db"))
}

// newSharedWorkspace creates a workspace using the snapshot store at db
func newSharedWorkspace(t *testing.T, db string) *workspace {
	root := t.TempDir()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	content := "workspace:\n  root: " + root + "\ndatabase:\n  path: " + db + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o644))
	return &workspace{root: root, cfg: cfg}
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", w.cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (w *workspace) mustRun(t *testing.T, args ...string) string {
	out, err := w.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (w *workspace) write(t *testing.T, name, content string) {
	p := filepath.Join(w.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (w *workspace) read(t *testing.T, name string) string {
	content, err := os.ReadFile(filepath.Join(w.root, name))
	require.NoError(t, err)
	return string(content)
}

// tagTwo tags bar/foo.js twice and leaves the workspace at 0.0.2
func (w *workspace) tagTwo(t *testing.T) {
	w.write(t, "bar/foo.js", "module.exports = 1;\n")
	w.mustRun(t, "add", "bar/foo", "bar/foo.js")
	w.mustRun(t, "tag", "bar/foo", "0.0.1")
	w.write(t, "bar/foo.js", "module.exports = 2;\n")
	w.mustRun(t, "tag", "bar/foo", "0.0.2")
}

func TestUseSwitchesVersion(t *testing.T) {
	w := newWorkspace(t)
	w.tagTwo(t)

	out := w.mustRun(t, "use", "0.0.1", "bar/foo")
	assert.Contains(t, out, "the following components were switched to version 0.0.1: bar/foo")
	assert.Equal(t, "module.exports = 1;\n", w.read(t, "bar/foo.js"))

	tm, err := tracking.Load(afero.NewOsFs(), filepath.Join(w.root, ".vault.map.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"bar/foo@0.0.1"}, tm.Keys())

	out = w.mustRun(t, "status")
	assert.Contains(t, out, "bar/foo@0.0.1\tunmodified")

	out = w.mustRun(t, "versions", "bar/foo")
	assert.Equal(t, "* 0.0.1\n  0.0.2\n", out)
}

func TestUseReportsConflicts(t *testing.T) {
	w := newWorkspace(t)
	w.tagTwo(t)
	w.write(t, "bar/foo.js", "module.exports = 3;\n")

	out := w.mustRun(t, "use", "0.0.1", "bar/foo")
	assert.Contains(t, out, "the following components were switched to version 0.0.1")
	assert.Contains(t, out, "files with conflicts (please resolve manually):\n  bar/foo.js\n")
	assert.Contains(t, w.read(t, "bar/foo.js"), "<<<<<<< bar/foo.js (working)")
}

func TestUsePreconditionMessages(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "use", "0.0.1", "bar/foo")
	assert.EqualError(t, err, `component "bar/foo" was not found`)

	w.write(t, "bar/foo.js", "module.exports = 1;\n")
	w.mustRun(t, "add", "bar/foo", "bar/foo.js")
	_, err = w.run(t, "use", "0.0.1", "bar/foo")
	assert.EqualError(t, err, "component bar/foo doesn't have any version yet")

	w.mustRun(t, "tag", "bar/foo", "0.0.1")
	_, err = w.run(t, "use", "0.0.5", "bar/foo")
	assert.EqualError(t, err, "component bar/foo doesn't have version 0.0.5")

	w.write(t, "bar/foo.js", "module.exports = 9;\n")
	_, err = w.run(t, "use", "0.0.1", "bar/foo")
	assert.EqualError(t, err, "component bar/foo is modified, merging your changes is not supported just yet, please revert your local changes and try again")
	assert.Equal(t, "module.exports = 9;\n", w.read(t, "bar/foo.js"))
}

func TestDiffCommand(t *testing.T) {
	w := newWorkspace(t)
	w.tagTwo(t)

	out := w.mustRun(t, "diff", "bar/foo", "0.0.1", "0.0.2")
	assert.Contains(t, out, "--- bar/foo.js (0.0.1)")
	assert.Contains(t, out, "+++ bar/foo.js (0.0.2)")
	assert.Contains(t, out, "-module.exports = 1;")
	assert.Contains(t, out, "+module.exports = 2;")
}

func TestTagWithDependency(t *testing.T) {
	db := filepath.Join(t.TempDir(), "objects.db")

	// the dependency is authored in another workspace sharing the store
	lib := newSharedWorkspace(t, db)
	lib.write(t, "utils/is-string.js", "module.exports = s => typeof s === 'string';\n")
	lib.mustRun(t, "add", "utils/is-string", "utils/is-string.js")
	lib.mustRun(t, "tag", "utils/is-string", "1.0.0")

	w := newSharedWorkspace(t, db)
	w.tagTwo(t)
	w.write(t, "bar/foo.js", "require('utils/is-string');\n")
	w.mustRun(t, "tag", "bar/foo", "0.0.3", "--dep", "utils/is-string@1.0.0")
	w.mustRun(t, "use", "0.0.1", "bar/foo")

	out := w.mustRun(t, "use", "0.0.3", "bar/foo")
	assert.Contains(t, out, "dependencies added:\n  utils/is-string@1.0.0\n")
	assert.Equal(t, "module.exports = s => typeof s === 'string';\n",
		w.read(t, ".dependencies/utils/is-string/1.0.0/utils/is-string.js"))
}

func TestRootCmdDefinition(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"use", "add", "tag", "versions", "diff", "status", "serve"})

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config.yaml", flag.DefValue)
}
