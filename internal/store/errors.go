package store

import "errors"

// ErrNotFound is returned when a requested trace does not exist.
var ErrNotFound = errors.New("store: trace not found")
