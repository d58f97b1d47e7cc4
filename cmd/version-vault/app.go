package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/version-vault/internal/blob"
	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/config"
	"github.com/version-vault/internal/provider"
	"github.com/version-vault/internal/store"
	"github.com/version-vault/internal/switcher"
	"github.com/version-vault/internal/tagger"
	"github.com/version-vault/internal/tracking"
)

// app wires the workspace for one command invocation
type app struct {
	cfg       *config.Config
	fs        afero.Fs
	store     *store.SQLiteStore
	snapshots component.SnapshotProvider
	tracking  *tracking.Map
	switcher  *switcher.Switcher
	tagger    *tagger.Tagger
}

// openApp loads the configuration and opens the store and tracking map
// of the workspace. The caller must Close the app.
func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Log.Apply(); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	osFs := afero.NewOsFs()
	fs := afero.NewBasePathFs(osFs, root)

	dbPath := cfg.Workspace.Resolve(cfg.Database.Path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.WithField("path", dbPath).Debug("database initialized")

	var snapshots component.SnapshotProvider = st
	if cfg.Remote.Enabled {
		client, err := blob.NewClient(cfg.Remote)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize Azure Blob client: %w", err)
		}
		snapshots = provider.Chain{st, blob.NewSnapshotProvider(client)}
		log.WithFields(log.Fields{
			"account":   cfg.Remote.StorageAccount,
			"container": cfg.Remote.Container,
		}).Debug("remote snapshot provider enabled")
	}

	tm, err := tracking.Load(fs, cfg.Workspace.TrackingFile)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		fs:        fs,
		store:     st,
		snapshots: snapshots,
		tracking:  tm,
		switcher: switcher.New(fs, tm, snapshots, switcher.Options{
			DependenciesDir: cfg.Workspace.DependenciesDir,
			StagingFs:       osFs,
			TempDir:         cfg.Workspace.Resolve(cfg.Workspace.TempDir),
			Workers:         cfg.Merge.Workers,
		}),
		tagger: tagger.New(fs, tm, st),
	}, nil
}

// Close releases the store
func (a *app) Close() error {
	return a.store.Close()
}
