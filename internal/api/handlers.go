package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/diff"
	"github.com/version-vault/internal/store"
	"github.com/version-vault/internal/switcher"
)

// getPathParam extracts and URL-decodes a path parameter from the request
func getPathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw // return original if decode fails
	}
	return decoded
}

// getComponentID parses the {id} parameter, responding 400 on failure
func getComponentID(w http.ResponseWriter, r *http.Request) (component.ID, bool) {
	id, err := component.ParseID(getPathParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return component.ID{}, false
	}
	return id, true
}

// APIError represents an error response
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// VersionsResponse lists the versions of a component. Tagged carries the
// metadata of the versions held by the local store.
type VersionsResponse struct {
	ID        string                `json:"id"`
	Versions  []component.Version   `json:"versions"`
	Latest    component.Version     `json:"latest"`
	Tagged    []store.TaggedVersion `json:"tagged"`
	CreatedAt *time.Time            `json:"created_at,omitempty"`
}

// SnapshotFile describes one file of a version
type SnapshotFile struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int    `json:"size"`
}

// SnapshotResponse describes one version of a component
type SnapshotResponse struct {
	ID           string         `json:"id"`
	Version      string         `json:"version"`
	Files        []SnapshotFile `json:"files"`
	Dependencies []string       `json:"dependencies"`
}

// DiffResponse describes the changes between two versions of a component
type DiffResponse struct {
	ID    string          `json:"id"`
	From  string          `json:"from"`
	To    string          `json:"to"`
	Files []diff.FileDiff `json:"files"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.WithField("err", err).Error("failed to encode JSON response")
		}
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, APIError{Error: http.StatusText(status), Message: message})
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleTracking returns the tracking map
func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tracking.Entries())
}

// handleListComponents returns all components of the local store
func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	components, err := s.store.ListComponents(r.Context())
	if err != nil {
		log.WithField("err", err).Error("failed to list components")
		respondError(w, http.StatusInternalServerError, "Failed to list components")
		return
	}

	if components == nil {
		components = []store.ComponentWithVersionCount{}
	}

	respondJSON(w, http.StatusOK, components)
}

// handleVersions returns the versions of a component, oldest first
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := getComponentID(w, r)
	if !ok {
		return
	}

	versions, err := s.snapshots.ListVersions(r.Context(), id)
	if err != nil {
		log.WithFields(log.Fields{"component": id.String(), "err": err}).Error("failed to list versions")
		respondError(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}
	if len(versions) == 0 {
		respondError(w, http.StatusNotFound, "Component not found")
		return
	}

	tagged, err := s.store.ListTaggedVersions(r.Context(), id)
	if err != nil {
		log.WithFields(log.Fields{"component": id.String(), "err": err}).Error("failed to list tagged versions")
		respondError(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}
	if tagged == nil {
		tagged = []store.TaggedVersion{}
	}

	resp := VersionsResponse{
		ID:       id.String(),
		Versions: versions,
		Latest:   component.Latest(versions),
		Tagged:   tagged,
	}

	c, err := s.store.GetComponent(r.Context(), id)
	if err != nil {
		log.WithFields(log.Fields{"component": id.String(), "err": err}).Error("failed to get component")
		respondError(w, http.StatusInternalServerError, "Failed to get component")
		return
	}
	if c != nil {
		resp.CreatedAt = &c.CreatedAt
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleGetVersion returns the files and pins of one version
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := getComponentID(w, r)
	if !ok {
		return
	}
	version := component.Version(getPathParam(r, "version"))

	snap, err := s.snapshots.GetSnapshot(r.Context(), id, version)
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, "Version not found")
		return
	}
	if err != nil {
		log.WithFields(log.Fields{"component": id.String(), "version": version, "err": err}).Error("failed to get snapshot")
		respondError(w, http.StatusInternalServerError, "Failed to get version")
		return
	}

	resp := SnapshotResponse{
		ID:           snap.ID.String(),
		Version:      string(snap.Version),
		Files:        make([]SnapshotFile, len(snap.Files)),
		Dependencies: make([]string, len(snap.Dependencies)),
	}
	for i, f := range snap.Files {
		resp.Files[i] = SnapshotFile{Path: f.Path, Hash: f.Hash, Size: len(f.Content)}
	}
	for i, d := range snap.Dependencies {
		resp.Dependencies[i] = d.String()
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleDiff returns the file diffs between two versions
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id, ok := getComponentID(w, r)
	if !ok {
		return
	}
	v1 := component.Version(getPathParam(r, "v1"))
	v2 := component.Version(getPathParam(r, "v2"))

	var snaps [2]*component.Snapshot
	for i, v := range []component.Version{v1, v2} {
		snap, err := s.snapshots.GetSnapshot(r.Context(), id, v)
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "Version "+string(v)+" not found")
			return
		}
		if err != nil {
			log.WithFields(log.Fields{"component": id.String(), "version": v, "err": err}).Error("failed to get snapshot")
			respondError(w, http.StatusInternalServerError, "Failed to get version")
			return
		}
		snaps[i] = snap
	}

	files, err := diff.Snapshots(snaps[0], snaps[1])
	if err != nil {
		log.WithFields(log.Fields{"component": id.String(), "err": err}).Error("failed to diff versions")
		respondError(w, http.StatusInternalServerError, "Failed to generate diff")
		return
	}
	if files == nil {
		files = []diff.FileDiff{}
	}

	respondJSON(w, http.StatusOK, DiffResponse{
		ID:    id.String(),
		From:  string(v1),
		To:    string(v2),
		Files: files,
	})
}

// handleUse switches the working copy of a component to a version
func (s *Server) handleUse(w http.ResponseWriter, r *http.Request) {
	id, ok := getComponentID(w, r)
	if !ok {
		return
	}
	version := component.Version(getPathParam(r, "version"))

	result, err := s.switcher.Switch(r.Context(), id, version)
	if err != nil {
		var (
			unsupported *switcher.UnsupportedMergeError
			noVersion   *switcher.NoVersionError
		)
		switch {
		case errors.As(err, &unsupported), errors.As(err, &noVersion):
			respondError(w, http.StatusConflict, err.Error())
		case switcher.IsPrecondition(err):
			respondError(w, http.StatusNotFound, err.Error())
		default:
			log.WithFields(log.Fields{"component": id.String(), "version": version, "err": err}).Error("failed to switch component")
			respondError(w, http.StatusInternalServerError, "Failed to switch component")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}
