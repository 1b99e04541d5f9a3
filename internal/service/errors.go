// Package service provides business logic services for Workroom.
package service

import "errors"

// Service-level errors. Business rule violations use the sentinels in
// the domain package; these cover failures of the machinery itself.
var (
	// ErrInternalError wraps unexpected infrastructure failures so
	// handlers can map them to a 500 without leaking detail.
	ErrInternalError = errors.New("internal server error")

	// ErrEncryptionFailed indicates an API key could not be sealed or
	// opened with the configured encryption key.
	ErrEncryptionFailed = errors.New("api key encryption failed")

	// ErrInvalidEmail indicates the registration email does not parse.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmptyMessage indicates a supervisor request with no content.
	ErrEmptyMessage = errors.New("message must not be empty")
)
