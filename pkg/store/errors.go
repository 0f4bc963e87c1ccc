package store

import "errors"

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write loses a race: a unique key already
	// exists, or the database aborted the transaction to keep it serializable.
	// The whole operation may be retried.
	ErrConflict = errors.New("store: conflict")
)
