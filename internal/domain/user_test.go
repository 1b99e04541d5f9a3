package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid simple", "alice_dev1", false},
		{"valid minimum length", "abc123", false},
		{"valid maximum length", "a1234567890123456789", false},
		{"too short", "alice", true},
		{"too long", "a12345678901234567890", true},
		{"empty", "", true},
		{"hyphen rejected", "alice-dev1", true},
		{"space rejected", "alice dev1", true},
		{"path traversal rejected", "../../etc", true},
		{"unicode rejected", "алиса_dev", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidUsername)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng!Pass", false},
		{"valid minimal", "Aa1@aaaa", false},
		{"too short", "Aa1@aaa", true},
		{"no uppercase", "aa1@aaaa", true},
		{"no lowercase", "AA1@AAAA", true},
		{"no digit", "Aaa@aaaa", true},
		{"no special", "Aa1aaaaa", true},
		{"wrong special", "Aa1#aaaa", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPassword)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUserCanAuthenticate(t *testing.T) {
	user := NewUser("alice_dev1", "alice@example.com", "hash", "key")
	require.True(t, user.CanAuthenticate())

	user.Disabled = true
	require.False(t, user.CanAuthenticate())
}

func TestMaskedAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		want   string
	}{
		{"normal key", "sk-abcdef123456", "****3456"},
		{"short key", "abcd", "****"},
		{"very short key", "ab", "****"},
		{"empty key", "", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{APIKey: tt.apiKey}
			require.Equal(t, tt.want, user.MaskedAPIKey())
		})
	}
}
