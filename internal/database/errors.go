package database

import "errors"

var (
	// ErrNotFound is returned when a booking does not exist.
	ErrNotFound = errors.New("booking not found")

	// ErrConcurrentModification is returned when a version-guarded update
	// loses a race with another writer.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)
