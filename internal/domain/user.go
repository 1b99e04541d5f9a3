// Package domain contains the core business entities for Workroom.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the project-management backend.
package domain

import (
	"regexp"
	"time"
)

// usernameRegex validates usernames: 6-20 characters, letters, digits,
// and underscores only.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{6,20}$`)

// Password policy pieces. Go's regexp has no lookahead, so the policy is
// checked as one class match per rule.
var (
	passwordUpperRegex   = regexp.MustCompile(`[A-Z]`)
	passwordLowerRegex   = regexp.MustCompile(`[a-z]`)
	passwordDigitRegex   = regexp.MustCompile(`[0-9]`)
	passwordSpecialRegex = regexp.MustCompile(`[@$!%*?&]`)
)

// User represents a registered user in the system.
// Each user owns exactly one namespace directory holding their projects.
type User struct {
	// Username is the unique identifier for login and namespace ownership.
	// Constraints: 6-20 characters, [A-Za-z0-9_].
	Username string `json:"username"`

	// Email is the contact address supplied at registration.
	Email string `json:"email"`

	// FullName is an optional display name.
	FullName string `json:"full_name"`

	// PasswordHash is the bcrypt hash of the user's password.
	// Never exposed in API responses.
	PasswordHash string `json:"-"`

	// APIKey is the user's external LLM service key, validated by a probe
	// request at write time. Never exposed unmasked.
	APIKey string `json:"-"`

	// Disabled marks an account that may no longer authenticate.
	// Disabled users are rejected at the access gate even with a valid token.
	Disabled bool `json:"disabled"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`

	// LastLogin is the timestamp of the most recent successful login.
	// Zero until the first login.
	LastLogin time.Time `json:"last_login,omitempty"`
}

// NewUser creates a new User with default values.
func NewUser(username, email, passwordHash, apiKey string) *User {
	return &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		APIKey:       apiKey,
		Disabled:     false,
		CreatedAt:    time.Now().UTC(),
	}
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return !u.Disabled
}

// MaskedAPIKey returns the stored key with all but the last four
// characters replaced, for display purposes.
func (u *User) MaskedAPIKey() string {
	if len(u.APIKey) <= 4 {
		return "****"
	}
	return "****" + u.APIKey[len(u.APIKey)-4:]
}

// ValidateUsername checks the username format rule.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword checks the password policy: at least 8 characters,
// one uppercase letter, one lowercase letter, one digit, and one of @$!%*?&.
func ValidatePassword(password string) error {
	if len(password) < 8 ||
		!passwordUpperRegex.MatchString(password) ||
		!passwordLowerRegex.MatchString(password) ||
		!passwordDigitRegex.MatchString(password) ||
		!passwordSpecialRegex.MatchString(password) {
		return ErrInvalidPassword
	}
	return nil
}
