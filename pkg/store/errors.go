package store

import "errors"

var (
	// ErrNilResult is returned when Save is given no result.
	ErrNilResult = errors.New("store: nil result")

	// ErrSave wraps every failure to persist a result.
	ErrSave = errors.New("store: save failed")
)
