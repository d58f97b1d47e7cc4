package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/config"
	"github.com/version-vault/internal/store"
	"github.com/version-vault/internal/switcher"
	"github.com/version-vault/internal/tagger"
	"github.com/version-vault/internal/tracking"
)

type fixture struct {
	fs     afero.Fs
	tm     *tracking.Map
	server *Server
}

// newFixture tags two versions of "a" and one of "lib/box/b", leaving "a"
// at version 2 and "c" tracked but untagged
func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	tm, err := tracking.Load(fs, ".vault.map.json")
	require.NoError(t, err)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tg := tagger.New(fs, tm, st)
	write := func(name, content string) {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}

	a := component.ID{Name: "a"}
	write("a.txt", "one\n")
	_, err = tg.Add(a, []string{"a.txt"})
	require.NoError(t, err)
	_, err = tg.Tag(ctx, a, "1", nil)
	require.NoError(t, err)
	write("a.txt", "two\n")
	_, err = tg.Tag(ctx, a, "2", nil)
	require.NoError(t, err)

	b, err := component.ParseID("lib/box/b")
	require.NoError(t, err)
	write("b.txt", "b\n")
	_, err = tg.Add(b, []string{"b.txt"})
	require.NoError(t, err)
	_, err = tg.Tag(ctx, b, "0.1", nil)
	require.NoError(t, err)

	write("c.txt", "c\n")
	_, err = tg.Add(component.ID{Name: "c"}, []string{"c.txt"})
	require.NoError(t, err)

	sw := switcher.New(fs, tm, st, switcher.Options{})
	return &fixture{
		fs:     fs,
		tm:     tm,
		server: NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, st, st, tm, sw),
	}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestTracking(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/tracking")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries map[string]tracking.Entry
	decode(t, rec, &entries)
	assert.Contains(t, entries, "a@2")
	assert.Contains(t, entries, "lib/box/b@0.1")
	assert.Contains(t, entries, "c")
}

func TestVersions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/components/a/versions")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp VersionsResponse
	decode(t, rec, &resp)
	assert.Equal(t, []component.Version{"1", "2"}, resp.Versions)
	assert.Equal(t, component.Version("2"), resp.Latest)

	require.Len(t, resp.Tagged, 2)
	assert.Equal(t, component.Version("1"), resp.Tagged[0].Version)
	assert.Equal(t, 1, resp.Tagged[0].FileCount)
	assert.False(t, resp.Tagged[0].TaggedAt.IsZero())
	require.NotNil(t, resp.CreatedAt)

	rec = f.do(t, http.MethodGet, "/api/components/lib%2Fbox%2Fb/versions")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "lib/box/b", resp.ID)

	rec = f.do(t, http.MethodGet, "/api/components/nope/versions")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListComponents(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/components")
	require.Equal(t, http.StatusOK, rec.Code)
	var components []store.ComponentWithVersionCount
	decode(t, rec, &components)
	require.Len(t, components, 2)

	// ordered by scope, then name
	assert.Equal(t, "a", components[0].Name)
	assert.Equal(t, 2, components[0].VersionCount)
	assert.Equal(t, component.Version("2"), components[0].LatestVersion)
	assert.Equal(t, "lib", components[1].Scope)
	assert.Equal(t, "box/b", components[1].Name)
}

func TestGetVersion(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/components/a/versions/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SnapshotResponse
	decode(t, rec, &resp)
	assert.Equal(t, "a", resp.ID)
	assert.Equal(t, "1", resp.Version)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, SnapshotFile{Path: "a.txt", Hash: component.ComputeHash([]byte("one\n")), Size: 4}, resp.Files[0])
	assert.Empty(t, resp.Dependencies)

	rec = f.do(t, http.MethodGet, "/api/components/a/versions/3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiff(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/components/a/diff/1/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DiffResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "a.txt", resp.Files[0].Path)
	assert.Contains(t, resp.Files[0].Diff.UnifiedDiff, "+two")

	rec = f.do(t, http.MethodGet, "/api/components/a/diff/1/7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUse(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/components/a/use/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var result switcher.Result
	decode(t, rec, &result)
	assert.Equal(t, component.Version("1"), result.Version)
	assert.Equal(t, component.Version("2"), result.Previous)

	content, err := afero.ReadFile(f.fs, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(content))
	_, ok := f.tm.Get("a@1")
	assert.True(t, ok)
}

func TestUseErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown component", "/api/components/zzz/use/1", http.StatusNotFound},
		{"unknown version", "/api/components/a/use/9", http.StatusNotFound},
		{"untagged", "/api/components/c/use/1", http.StatusConflict},
		{"bad id", "/api/components/a@1/use/1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			var apiErr APIError
			decode(t, rec, &apiErr)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/components/a/use/1").Code)

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "version_vault_switches_total")
}
