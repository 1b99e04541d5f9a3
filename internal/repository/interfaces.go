// Package repository defines data access interfaces for Workroom credential
// records. These interfaces abstract the persistence of user records, allowing
// different backends (per-user JSON files, SQLite, PostgreSQL) while keeping
// the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/workroom/internal/domain"
)

// UserRepository defines the interface for user record access.
type UserRepository interface {
	// Create persists a new user record. Fails with
	// domain.ErrUserAlreadyExists if the username is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByUsername retrieves a user by username. Returns ErrNotFound when
	// absent and domain.ErrCorruptRecord when the persisted record cannot
	// be decoded.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// Update overwrites an existing user record.
	Update(ctx context.Context, user *domain.User) error

	// TouchLastLogin updates only the last-login timestamp.
	TouchLastLogin(ctx context.Context, username string, at time.Time) error

	// Delete removes a user record. There is no user-facing delete
	// operation; this exists to roll back a failed registration and for
	// administrative use.
	Delete(ctx context.Context, username string) error

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// List returns user records with pagination, newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)
}

// ListOptions holds pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// ListResult holds a page of items plus the total count.
type ListResult[T any] struct {
	Items  []*T
	Total  int64
	Offset int
	Limit  int
}
