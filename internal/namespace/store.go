// Package namespace manages per-user hierarchical storage: each user owns a
// namespace of projects, and each project holds a main (committed) and a temp
// (staging) folder of files. The Store interface abstracts the tree so the
// filesystem backing could later be swapped for an embedded database without
// touching the service contracts.
package namespace

import (
	"context"
	"io"

	"github.com/prn-tf/workroom/internal/domain"
)

// Store is the per-user tree store: user -> project -> {main,temp} -> file.
// Implementations must confine every operation to the owning user's subtree
// and reject any input that would resolve outside it.
type Store interface {
	// Provision creates the user's empty namespace (the projects root).
	// Idempotent: provisioning an existing namespace is not an error.
	Provision(ctx context.Context, username string) error

	// RemoveNamespace deletes the user's entire namespace. Used only to
	// roll back a failed registration; there is no user-facing delete.
	RemoveNamespace(ctx context.Context, username string) error

	// CreateProject creates a project with empty main and temp folders and
	// a project-info record. All-or-nothing: on any mid-creation failure
	// the partial tree is rolled back before the error surfaces. A
	// duplicate name fails with domain.ErrProjectAlreadyExists and leaves
	// the existing project untouched.
	CreateProject(ctx context.Context, username, name string) (*domain.Project, error)

	// ListProjects enumerates the user's projects, newest first. Projects
	// whose info record is missing report a zero CreatedAt rather than
	// failing the listing.
	ListProjects(ctx context.Context, username string) ([]domain.Project, error)

	// ListFiles reports the files in each folder of a project. A missing
	// folder yields an empty list; a missing project is an error.
	ListFiles(ctx context.Context, username, project string) (*domain.FileListing, error)

	// Upload writes content to project/folder/filename, creating the
	// folder if missing and silently overwriting an existing file.
	// Returns the number of bytes written.
	Upload(ctx context.Context, username, project string, folder domain.Folder, filename string, content io.Reader) (int64, error)

	// Read opens a file, resolving filename against main first, then temp.
	// The caller must close the returned reader.
	Read(ctx context.Context, username, project, filename string) (io.ReadCloser, error)

	// Delete removes a file, resolving the same way as Read (main takes
	// precedence).
	Delete(ctx context.Context, username, project, filename string) error

	// MoveToMain relocates a file from temp to main, atomically from the
	// caller's perspective.
	MoveToMain(ctx context.Context, username, project, filename string) error
}
