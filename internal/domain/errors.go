// Package domain contains the core business entities for Workroom.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (filesystem, database, network).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same username exists.
	ErrUserAlreadyExists = errors.New("username already exists")

	// ErrUserDisabled indicates the user account is disabled.
	ErrUserDisabled = errors.New("user account is disabled")

	// ErrInvalidCredentials indicates authentication failed.
	// Deliberately uniform: it never says whether the username or the
	// password was at fault.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrCorruptRecord indicates a persisted user record is missing
	// required fields or cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt user record")

	// ===========================================
	// Validation Errors
	// ===========================================

	// ErrInvalidUsername indicates the username format is invalid.
	ErrInvalidUsername = errors.New("invalid username format: must be 6-20 characters of letters, digits, and underscores")

	// ErrInvalidPassword indicates the password does not satisfy the policy.
	ErrInvalidPassword = errors.New("invalid password format: must be at least 8 characters with an uppercase letter, a lowercase letter, a digit, and one of @$!%*?&")

	// ErrInvalidProjectName indicates the project name format is invalid.
	ErrInvalidProjectName = errors.New("invalid project name: must contain only letters, digits, underscores, and hyphens")

	// ErrInvalidFileName indicates the filename is empty or escapes its folder.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrInvalidFolder indicates the folder is neither "main" nor "temp".
	ErrInvalidFolder = errors.New("invalid folder: must be \"main\" or \"temp\"")

	// ErrInvalidAPIKey indicates the external API key failed probe validation.
	ErrInvalidAPIKey = errors.New("invalid external API key")

	// ===========================================
	// Project/File Errors
	// ===========================================

	// ErrProjectNotFound indicates the requested project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectAlreadyExists indicates a project with the same name exists
	// in the user's namespace.
	ErrProjectAlreadyExists = errors.New("project already exists")

	// ErrFileNotFound indicates the file exists in neither main nor temp.
	ErrFileNotFound = errors.New("file not found")

	// ===========================================
	// Authentication Errors
	// ===========================================

	// ErrInvalidToken indicates the bearer token is missing, malformed,
	// expired, or carries no subject. All causes collapse to this one
	// error so the response gives attackers no oracle.
	ErrInvalidToken = errors.New("could not validate credentials")

	// ===========================================
	// Infrastructure Errors
	// ===========================================

	// ErrExternalService indicates the external key-validation service
	// could not be reached. Surfaced to callers as a validation failure
	// but logged distinctly.
	ErrExternalService = errors.New("external validation service unavailable")

	// ErrStorage indicates an unexpected filesystem failure.
	ErrStorage = errors.New("storage failure")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., project name, filename).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
