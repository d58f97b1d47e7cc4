package switcher

import (
	"errors"
	"fmt"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/merge"
)

// NotFoundError is returned for a component absent from the tracking map
type NotFoundError struct {
	ID component.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("component %q was not found", e.ID.String())
}

// NoVersionError is returned for a tracked component never tagged
type NoVersionError struct {
	ID component.ID
}

func (e *NoVersionError) Error() string {
	return fmt.Sprintf("component %s doesn't have any version yet", e.ID)
}

// UnknownVersionError is returned when a version has no snapshot
type UnknownVersionError struct {
	ID      component.ID
	Version component.Version
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("component %s doesn't have version %s", e.ID, e.Version)
}

// UnsupportedMergeError is returned when the working tree is modified and
// no distinct tagged version exists to serve as a merge base
type UnsupportedMergeError struct {
	ID component.ID
}

func (e *UnsupportedMergeError) Error() string {
	return fmt.Sprintf("component %s is modified, merging your changes is not supported just yet, please revert your local changes and try again", e.ID)
}

// TrackingMapWriteError is returned when the tracking map cannot be persisted
type TrackingMapWriteError struct {
	Err error
}

func (e *TrackingMapWriteError) Error() string {
	return fmt.Sprintf("failed to write tracking map: %v", e.Err)
}

func (e *TrackingMapWriteError) Unwrap() error { return e.Err }

// MergeIOError is a staging or merge failure that persisted after a retry
type MergeIOError = merge.IOError

// IsPrecondition reports whether err is one of the checks a switch performs
// before mutating anything
func IsPrecondition(err error) bool {
	var (
		notFound    *NotFoundError
		noVersion   *NoVersionError
		unknown     *UnknownVersionError
		unsupported *UnsupportedMergeError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &noVersion) ||
		errors.As(err, &unknown) ||
		errors.As(err, &unsupported)
}
