package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateProjectName(t *testing.T) {
	tests := []struct {
		name    string
		project string
		wantErr bool
	}{
		{"valid simple", "thesis", false},
		{"valid with separators", "my_project-2", false},
		{"valid single char", "a", false},
		{"valid at length cap", strings.Repeat("a", MaxProjectNameLength), false},
		{"over length cap", strings.Repeat("a", MaxProjectNameLength+1), true},
		{"empty", "", true},
		{"dot rejected", "my.project", true},
		{"slash rejected", "a/b", true},
		{"traversal rejected", "..", true},
		{"space rejected", "my project", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectName(tt.project)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidProjectName)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFolderValid(t *testing.T) {
	require.True(t, FolderMain.Valid())
	require.True(t, FolderTemp.Valid())
	require.False(t, Folder("").Valid())
	require.False(t, Folder("other").Valid())
	require.False(t, Folder("Main").Valid())
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError(ErrProjectNotFound, "no such project", "thesis")
	require.ErrorIs(t, err, ErrProjectNotFound)
	require.Contains(t, err.Error(), "thesis")
}
