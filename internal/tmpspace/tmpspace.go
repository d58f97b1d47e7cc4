// Package tmpspace provides the private staging directory used while
// merging the files of one switch.
package tmpspace

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Handle locates one staged buffer
type Handle struct {
	Path string
}

// Workspace is a scoped staging directory. Stage and Read are safe for
// concurrent use; Release removes everything staged and may be called
// more than once.
type Workspace struct {
	fs  afero.Fs
	dir string

	mu       sync.Mutex
	staged   int
	released bool
}

// Acquire creates a fresh staging directory below dir. An empty dir
// uses the filesystem's default temp location.
func Acquire(fs afero.Fs, dir string) (*Workspace, error) {
	if dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create temp root: %w", err)
		}
	}
	tmp, err := afero.TempDir(fs, dir, "merge-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp workspace: %w", err)
	}
	return &Workspace{fs: fs, dir: tmp}, nil
}

// Dir returns the staging directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Stage writes content at a unique location
func (w *Workspace) Stage(content []byte) (Handle, error) {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return Handle{}, fmt.Errorf("temp workspace %s already released", w.dir)
	}
	w.staged++
	w.mu.Unlock()

	h := Handle{Path: filepath.Join(w.dir, uuid.NewString())}
	if err := afero.WriteFile(w.fs, h.Path, content, 0o600); err != nil {
		return Handle{}, fmt.Errorf("failed to stage file: %w", err)
	}
	return h, nil
}

// Read returns the content behind a handle
func (w *Workspace) Read(h Handle) ([]byte, error) {
	content, err := afero.ReadFile(w.fs, h.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged file: %w", err)
	}
	return content, nil
}

// Release removes the staging directory and all staged files
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if err := w.fs.RemoveAll(w.dir); err != nil {
		log.WithFields(log.Fields{"dir": w.dir, "err": err}).Error("failed to remove temp workspace")
		return fmt.Errorf("failed to remove temp workspace: %w", err)
	}
	log.WithFields(log.Fields{"dir": w.dir, "staged": w.staged}).Debug("released temp workspace")
	return nil
}
