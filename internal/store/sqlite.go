package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/version-vault/internal/component"
)

// SQLiteStore implements the Store interface using SQLite. File contents
// are stored once per content hash.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store and initializes the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS components (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(scope, name)
	);

	CREATE TABLE IF NOT EXISTS versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		component_id INTEGER NOT NULL REFERENCES components(id),
		tag TEXT NOT NULL,
		tagged_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(component_id, tag)
	);

	CREATE TABLE IF NOT EXISTS objects (
		hash TEXT PRIMARY KEY,
		content BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS version_files (
		version_id INTEGER NOT NULL REFERENCES versions(id),
		path TEXT NOT NULL,
		content_hash TEXT NOT NULL REFERENCES objects(hash),
		PRIMARY KEY (version_id, path)
	);

	CREATE TABLE IF NOT EXISTS dependencies (
		version_id INTEGER NOT NULL REFERENCES versions(id),
		dep_scope TEXT NOT NULL DEFAULT '',
		dep_name TEXT NOT NULL,
		dep_version TEXT NOT NULL,
		PRIMARY KEY (version_id, dep_scope, dep_name)
	);

	CREATE INDEX IF NOT EXISTS idx_versions_component_id ON versions(component_id);
	CREATE INDEX IF NOT EXISTS idx_version_files_version_id ON version_files(version_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetComponent retrieves a component by its id
func (s *SQLiteStore) GetComponent(ctx context.Context, id component.ID) (*Component, error) {
	var c Component
	var createdAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, scope, name, created_at
		FROM components WHERE scope = ? AND name = ?
	`, id.Scope, id.Name).Scan(&c.ID, &c.Scope, &c.Name, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component: %w", err)
	}

	if createdAt.Valid {
		c.CreatedAt = parseTime(createdAt.String)
	}

	return &c, nil
}

// ListComponents returns all components with version counts
func (s *SQLiteStore) ListComponents(ctx context.Context) ([]ComponentWithVersionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.scope, c.name, c.created_at, COUNT(v.id) AS version_count
		FROM components c
		LEFT JOIN versions v ON c.id = v.component_id
		GROUP BY c.id
		ORDER BY c.scope, c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	defer rows.Close()

	var components []ComponentWithVersionCount
	for rows.Next() {
		var c ComponentWithVersionCount
		var createdAt sql.NullString

		if err := rows.Scan(&c.ID, &c.Scope, &c.Name, &createdAt, &c.VersionCount); err != nil {
			return nil, fmt.Errorf("failed to scan component row: %w", err)
		}
		if createdAt.Valid {
			c.CreatedAt = parseTime(createdAt.String)
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Tags are ordered numerically, which SQL ordering cannot express
	for i := range components {
		versions, err := s.ListVersions(ctx, components[i].ComponentID())
		if err != nil {
			return nil, err
		}
		components[i].LatestVersion = component.Latest(versions)
	}

	return components, nil
}

// CreateSnapshot stores a new version with its files and dependency pins.
// Stored versions are immutable: tagging an existing version fails with
// ErrVersionExists.
func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snapshot *component.Snapshot) error {
	if snapshot.Version == "" {
		return fmt.Errorf("snapshot of %s has no version", snapshot.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO components (scope, name) VALUES (?, ?)
		ON CONFLICT(scope, name) DO NOTHING
	`, snapshot.ID.Scope, snapshot.ID.Name); err != nil {
		return fmt.Errorf("failed to upsert component: %w", err)
	}

	var componentID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM components WHERE scope = ? AND name = ?
	`, snapshot.ID.Scope, snapshot.ID.Name).Scan(&componentID); err != nil {
		return fmt.Errorf("failed to get component id: %w", err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM versions WHERE component_id = ? AND tag = ?
	`, componentID, string(snapshot.Version)).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check version: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("%s: %w", component.Key(snapshot.ID, snapshot.Version), ErrVersionExists)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO versions (component_id, tag, tagged_at) VALUES (?, ?, ?)
	`, componentID, string(snapshot.Version), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	versionID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get version id: %w", err)
	}

	for _, f := range snapshot.Files {
		content := f.Content
		if content == nil {
			content = []byte{}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO objects (hash, content) VALUES (?, ?)
			ON CONFLICT(hash) DO NOTHING
		`, f.Hash, content); err != nil {
			return fmt.Errorf("failed to store object: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO version_files (version_id, path, content_hash) VALUES (?, ?, ?)
		`, versionID, f.Path, f.Hash); err != nil {
			return fmt.Errorf("failed to store file %s: %w", f.Path, err)
		}
	}

	for _, d := range snapshot.Dependencies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies (version_id, dep_scope, dep_name, dep_version) VALUES (?, ?, ?, ?)
		`, versionID, d.ID.Scope, d.ID.Name, string(d.Version)); err != nil {
			return fmt.Errorf("failed to store dependency %s: %w", d, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the files and pins of one version
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id component.ID, v component.Version) (*component.Snapshot, error) {
	var versionID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT v.id FROM versions v
		JOIN components c ON v.component_id = c.id
		WHERE c.scope = ? AND c.name = ? AND v.tag = ?
	`, id.Scope, id.Name, string(v)).Scan(&versionID)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", component.Key(id, v), component.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	files, err := s.getFiles(ctx, versionID)
	if err != nil {
		return nil, err
	}
	deps, err := s.getDependencies(ctx, versionID)
	if err != nil {
		return nil, err
	}

	return component.NewSnapshot(id, v, files, deps), nil
}

// getFiles loads the file records of a version ordered by path
func (s *SQLiteStore) getFiles(ctx context.Context, versionID int64) ([]component.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, f.content_hash, o.content
		FROM version_files f
		JOIN objects o ON f.content_hash = o.hash
		WHERE f.version_id = ?
		ORDER BY f.path
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get files: %w", err)
	}
	defer rows.Close()

	var files []component.FileRecord
	for rows.Next() {
		var f component.FileRecord
		if err := rows.Scan(&f.Path, &f.Hash, &f.Content); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		if f.Content == nil {
			f.Content = []byte{}
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// getDependencies loads the dependency pins of a version
func (s *SQLiteStore) getDependencies(ctx context.Context, versionID int64) ([]component.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dep_scope, dep_name, dep_version
		FROM dependencies WHERE version_id = ?
		ORDER BY dep_scope, dep_name
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer rows.Close()

	var deps []component.Dependency
	for rows.Next() {
		var d component.Dependency
		var v string
		if err := rows.Scan(&d.ID.Scope, &d.ID.Name, &v); err != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", err)
		}
		d.Version = component.Version(v)
		deps = append(deps, d)
	}

	return deps, rows.Err()
}

// ListVersions returns the tags of a component in ascending order
func (s *SQLiteStore) ListVersions(ctx context.Context, id component.ID) ([]component.Version, error) {
	tagged, err := s.ListTaggedVersions(ctx, id)
	if err != nil {
		return nil, err
	}

	versions := make([]component.Version, len(tagged))
	for i, t := range tagged {
		versions[i] = t.Version
	}
	return versions, nil
}

// ListTaggedVersions returns the versions of a component in ascending order
func (s *SQLiteStore) ListTaggedVersions(ctx context.Context, id component.ID) ([]TaggedVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.tag, v.tagged_at, COUNT(f.path)
		FROM versions v
		JOIN components c ON v.component_id = c.id
		LEFT JOIN version_files f ON f.version_id = v.id
		WHERE c.scope = ? AND c.name = ?
		GROUP BY v.id
	`, id.Scope, id.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []TaggedVersion
	for rows.Next() {
		var t TaggedVersion
		var tag string
		var taggedAt sql.NullString

		if err := rows.Scan(&tag, &taggedAt, &t.FileCount); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		t.Version = component.Version(tag)
		if taggedAt.Valid {
			t.TaggedAt = parseTime(taggedAt.String)
		}
		versions = append(versions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return component.CompareVersions(versions[i].Version, versions[j].Version) < 0
	})
	return versions, nil
}

// IsNotFound reports whether err is a missing snapshot
func IsNotFound(err error) bool {
	return errors.Is(err, component.ErrSnapshotNotFound)
}

// parseTime parses a SQLite datetime string into time.Time
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	// Try various SQLite datetime formats
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
