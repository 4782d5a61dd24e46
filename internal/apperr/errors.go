// Package apperr holds sentinel errors mapped to transport status codes.
package apperr

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrEmptyQuery = errors.New("query is required")
	ErrGeneration = errors.New("generation failed")
	ErrConflict   = errors.New("conflict")
)
