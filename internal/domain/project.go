// Package domain contains the core business entities for Workroom.
package domain

import (
	"regexp"
	"time"
)

// Folder identifies one of the two areas inside a project.
type Folder string

const (
	// FolderMain holds committed artifacts.
	FolderMain Folder = "main"

	// FolderTemp holds staged uploads awaiting promotion to main.
	FolderTemp Folder = "temp"
)

// Valid reports whether the folder is one of the two known areas.
func (f Folder) Valid() bool {
	return f == FolderMain || f == FolderTemp
}

// MaxProjectNameLength bounds project names; the format rule allows
// arbitrarily long names, the bound keeps paths sane.
const MaxProjectNameLength = 64

// projectNameRegex validates project names: letters, digits, underscores,
// and hyphens only. The character class alone confines the name to a single
// path element.
var projectNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Project represents a named workspace within a user's namespace.
// It owns a main (committed) and a temp (staging) folder.
type Project struct {
	// ID is an opaque identifier assigned at creation.
	ID string `json:"id"`

	// Name is the project name, unique within the owning user's namespace.
	Name string `json:"name"`

	// CreatedAt is set at creation and immutable afterwards.
	// Zero when the project-info record is missing (tolerated on listing).
	CreatedAt time.Time `json:"created_at"`
}

// FileListing reports the files in a project, split by folder.
type FileListing struct {
	Main []string `json:"main"`
	Temp []string `json:"temp"`
}

// ValidateProjectName checks the project name format rule.
func ValidateProjectName(name string) error {
	if name == "" || len(name) > MaxProjectNameLength || !projectNameRegex.MatchString(name) {
		return ErrInvalidProjectName
	}
	return nil
}
