package fsrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/repository"
)

func newTestRepo(t *testing.T) *UserRepository {
	t.Helper()
	repo, err := NewUserRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func testUser(username string) *domain.User {
	user := domain.NewUser(username, username+"@example.com", "$2a$10$fakehash", "sk-test-key")
	user.FullName = "Test User"
	return user
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testUser("alice_dev1")))

	got, err := repo.GetByUsername(ctx, "alice_dev1")
	require.NoError(t, err)
	require.Equal(t, "alice_dev1", got.Username)
	require.Equal(t, "alice_dev1@example.com", got.Email)
	require.Equal(t, "Test User", got.FullName)
	require.Equal(t, "$2a$10$fakehash", got.PasswordHash)
	require.Equal(t, "sk-test-key", got.APIKey)
	require.False(t, got.Disabled)
}

func TestCreateDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testUser("alice_dev1")))
	err := repo.Create(ctx, testUser("alice_dev1"))
	require.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByUsername(context.Background(), "ghost_user")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetCorruptRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("invalid json", func(t *testing.T) {
		dir := filepath.Join(repo.root, "broken_json")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.json"), []byte("{not json"), 0o600))

		_, err := repo.GetByUsername(ctx, "broken_json")
		require.ErrorIs(t, err, domain.ErrCorruptRecord)
	})

	t.Run("missing required fields", func(t *testing.T) {
		dir := filepath.Join(repo.root, "no_hash1")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(`{"username":"no_hash1"}`), 0o600))

		_, err := repo.GetByUsername(ctx, "no_hash1")
		require.ErrorIs(t, err, domain.ErrCorruptRecord)
	})
}

func TestUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := testUser("alice_dev1")
	require.NoError(t, repo.Create(ctx, user))

	user.Disabled = true
	user.APIKey = "sk-new-key"
	require.NoError(t, repo.Update(ctx, user))

	got, err := repo.GetByUsername(ctx, "alice_dev1")
	require.NoError(t, err)
	require.True(t, got.Disabled)
	require.Equal(t, "sk-new-key", got.APIKey)
}

func TestUpdateMissing(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Update(context.Background(), testUser("ghost_user"))
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTouchLastLogin(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testUser("alice_dev1")))

	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.TouchLastLogin(ctx, "alice_dev1", at))

	got, err := repo.GetByUsername(ctx, "alice_dev1")
	require.NoError(t, err)
	require.True(t, got.LastLogin.Equal(at))
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testUser("alice_dev1")))
	require.NoError(t, repo.Delete(ctx, "alice_dev1"))

	_, err := repo.GetByUsername(ctx, "alice_dev1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.ErrorIs(t, repo.Delete(ctx, "alice_dev1"), repository.ErrNotFound)
}

func TestExistsByUsername(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	exists, err := repo.ExistsByUsername(ctx, "alice_dev1")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, repo.Create(ctx, testUser("alice_dev1")))

	exists, err = repo.ExistsByUsername(ctx, "alice_dev1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestUsernameConfinement(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, username := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := repo.GetByUsername(ctx, username)
		require.ErrorIs(t, err, domain.ErrInvalidUsername, username)
	}
}

func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, name := range []string{"user_one1", "user_two2", "user_three3"} {
		u := testUser(name)
		u.CreatedAt = time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Create(ctx, u))
	}

	// A stray directory without a record must not fail the listing.
	require.NoError(t, os.MkdirAll(filepath.Join(repo.root, "empty_dir"), 0o755))

	result, err := repo.List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(3), result.Total)
	require.Len(t, result.Items, 3)
	require.Equal(t, "user_three3", result.Items[0].Username) // newest first

	t.Run("pagination", func(t *testing.T) {
		page, err := repo.List(ctx, repository.ListOptions{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Equal(t, int64(3), page.Total)
		require.Len(t, page.Items, 2)
		require.Equal(t, "user_two2", page.Items[0].Username)
	})

	t.Run("offset past end", func(t *testing.T) {
		page, err := repo.List(ctx, repository.ListOptions{Limit: 2, Offset: 10})
		require.NoError(t, err)
		require.Empty(t, page.Items)
	})
}
