// Package shared holds cross-cutting helpers used by the pipeline and its
// HTTP surface.
package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidConfig indicates the runtime configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)
