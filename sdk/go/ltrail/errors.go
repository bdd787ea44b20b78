// Package ltrail provides a Go client for recording pipeline traces to
// an LTrail server.
package ltrail

import (
	"errors"
	"fmt"
)

// Error represents an error from the LTrail API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ltrail: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsInvalidInput returns true if the error is a 400.
func IsInvalidInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// StorageError reports a failure writing a local trace snapshot. It is a
// distinct type so callers can tell local persistence problems apart from
// API errors.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ltrail: storage %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
