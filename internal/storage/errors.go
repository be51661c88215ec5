package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("storage: not found")
	// ErrVersionConflict matches every *VersionConflictError.
	ErrVersionConflict = errors.New("storage: version conflict")
	// ErrAlreadyExists is returned when a unique key is already taken.
	ErrAlreadyExists = errors.New("storage: already exists")
)

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// VersionConflictError reports a conditional write whose expected version
// no longer matches the stored one.
type VersionConflictError struct {
	Entity   string
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict (expected %d, current %d)", e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
