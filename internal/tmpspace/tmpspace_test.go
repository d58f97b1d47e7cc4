package tmpspace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageReadRelease(t *testing.T) {
	fs := afero.NewMemMapFs()

	ws, err := Acquire(fs, "/tmp/vault")
	require.NoError(t, err)

	h1, err := ws.Stage([]byte("one"))
	require.NoError(t, err)
	h2, err := ws.Stage([]byte("one"))
	require.NoError(t, err)
	assert.NotEqual(t, h1.Path, h2.Path)

	content, err := ws.Read(h1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(content))

	require.NoError(t, ws.Release())
	exists, err := afero.DirExists(fs, ws.Dir())
	require.NoError(t, err)
	assert.False(t, exists)

	// Release is idempotent and staging afterwards fails.
	require.NoError(t, ws.Release())
	_, err = ws.Stage([]byte("late"))
	assert.Error(t, err)
}

func TestConcurrentStaging(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, err := Acquire(fs, "")
	require.NoError(t, err)
	defer ws.Release()

	var wg sync.WaitGroup
	handles := make([]Handle, 32)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := ws.Stage([]byte(fmt.Sprintf("content-%d", i)))
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i, h := range handles {
		content, err := ws.Read(h)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("content-%d", i), string(content))
	}
}

func TestReleaseOnFailurePath(t *testing.T) {
	fs := afero.NewMemMapFs()
	var dir string

	err := func() (err error) {
		ws, err := Acquire(fs, "/stage")
		if err != nil {
			return err
		}
		defer ws.Release()
		dir = ws.Dir()

		if _, err = ws.Stage([]byte("partial")); err != nil {
			return err
		}
		return fmt.Errorf("merge tool failed")
	}()
	require.Error(t, err)

	exists, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	assert.False(t, exists)
}
