package storage

import "errors"

// Common client storage errors
var (
	// ErrProfileNotFound indicates that no saved login exists
	ErrProfileNotFound = errors.New("profile not found")
)
