package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/pkg/crypto"
	"github.com/prn-tf/workroom/internal/repository"
)

// MockUserRepository is an in-memory implementation of
// repository.UserRepository with injectable failures.
type MockUserRepository struct {
	users     map[string]domain.User
	createErr error
	getErr    error
	updateErr error
	touchErr  error
	deleted   []string
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]domain.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.Username]; exists {
		return domain.ErrUserAlreadyExists
	}
	m.users[user.Username] = *user
	return nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, exists := m.users[username]
	if !exists {
		return nil, repository.ErrNotFound
	}
	clone := u
	return &clone, nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.users[user.Username]; !exists {
		return repository.ErrNotFound
	}
	m.users[user.Username] = *user
	return nil
}

func (m *MockUserRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	u, exists := m.users[username]
	if !exists {
		return repository.ErrNotFound
	}
	u.LastLogin = at
	m.users[username] = u
	return nil
}

func (m *MockUserRepository) Delete(ctx context.Context, username string) error {
	if _, exists := m.users[username]; !exists {
		return repository.ErrNotFound
	}
	delete(m.users, username)
	m.deleted = append(m.deleted, username)
	return nil
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, exists := m.users[username]
	return exists, nil
}

func (m *MockUserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	var items []*domain.User
	for _, u := range m.users {
		clone := u
		items = append(items, &clone)
	}
	return &repository.ListResult[domain.User]{Items: items, Total: int64(len(items))}, nil
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

// MockStore is an in-memory namespace.Store tracking provisioning calls.
type MockStore struct {
	provisioned  map[string]bool
	removed      []string
	provisionErr error
	listings     map[string]*domain.FileListing
	projects     map[string][]domain.Project
}

func NewMockStore() *MockStore {
	return &MockStore{
		provisioned: make(map[string]bool),
		listings:    make(map[string]*domain.FileListing),
		projects:    make(map[string][]domain.Project),
	}
}

func (m *MockStore) Provision(ctx context.Context, username string) error {
	if m.provisionErr != nil {
		return m.provisionErr
	}
	m.provisioned[username] = true
	return nil
}

func (m *MockStore) RemoveNamespace(ctx context.Context, username string) error {
	delete(m.provisioned, username)
	m.removed = append(m.removed, username)
	return nil
}

func (m *MockStore) CreateProject(ctx context.Context, username, name string) (*domain.Project, error) {
	p := domain.Project{ID: "id-" + name, Name: name, CreatedAt: time.Now()}
	m.projects[username] = append(m.projects[username], p)
	return &p, nil
}

func (m *MockStore) ListProjects(ctx context.Context, username string) ([]domain.Project, error) {
	return m.projects[username], nil
}

func (m *MockStore) ListFiles(ctx context.Context, username, project string) (*domain.FileListing, error) {
	if l, ok := m.listings[project]; ok {
		return l, nil
	}
	return nil, domain.ErrProjectNotFound
}

func (m *MockStore) Upload(ctx context.Context, username, project string, folder domain.Folder, filename string, content io.Reader) (int64, error) {
	n, err := io.Copy(io.Discard, content)
	return n, err
}

func (m *MockStore) Read(ctx context.Context, username, project, filename string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (m *MockStore) Delete(ctx context.Context, username, project, filename string) error {
	return nil
}

func (m *MockStore) MoveToMain(ctx context.Context, username, project, filename string) error {
	return nil
}

// MockValidator returns a configured verdict per key; keys not listed
// get the default verdict.
type MockValidator struct {
	verdicts   map[string]error
	defaultErr error
	calls      int
}

func (m *MockValidator) Validate(ctx context.Context, apiKey string) error {
	m.calls++
	if err, ok := m.verdicts[apiKey]; ok {
		return err
	}
	return m.defaultErr
}

func newTestUserService(t *testing.T) (*UserService, *MockUserRepository, *MockStore, *MockValidator) {
	t.Helper()
	repo := NewMockUserRepository()
	store := NewMockStore()
	validator := &MockValidator{verdicts: make(map[string]error)}
	svc := NewUserService(repo, store, validator, nil, zerolog.Nop())
	return svc, repo, store, validator
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username: "alice_dev1",
		Email:    "alice@example.com",
		FullName: "Alice Developer",
		Password: "Str0ng!Pass",
		APIKey:   "sk-valid-key",
	}
}

func TestRegister(t *testing.T) {
	svc, repo, store, _ := newTestUserService(t)

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)
	require.Equal(t, "alice_dev1", user.Username)
	require.Equal(t, "sk-valid-key", user.APIKey)
	require.NotEqual(t, "Str0ng!Pass", user.PasswordHash)

	// Record persisted and namespace provisioned.
	stored, ok := repo.users["alice_dev1"]
	require.True(t, ok)
	require.Equal(t, "alice@example.com", stored.Email)
	require.True(t, store.provisioned["alice_dev1"])
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	t.Run("bad username", func(t *testing.T) {
		input := validRegisterInput()
		input.Username = "ab"
		_, err := svc.Register(ctx, input)
		require.ErrorIs(t, err, domain.ErrInvalidUsername)
	})

	t.Run("bad password", func(t *testing.T) {
		input := validRegisterInput()
		input.Password = "weak"
		_, err := svc.Register(ctx, input)
		require.ErrorIs(t, err, domain.ErrInvalidPassword)
	})

	t.Run("bad email", func(t *testing.T) {
		input := validRegisterInput()
		input.Email = "not-an-email"
		_, err := svc.Register(ctx, input)
		require.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("missing api key", func(t *testing.T) {
		input := validRegisterInput()
		input.APIKey = ""
		_, err := svc.Register(ctx, input)
		require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
	})
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegisterInput())
	require.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestRegisterRejectedKey(t *testing.T) {
	svc, repo, _, validator := newTestUserService(t)
	validator.verdicts["sk-valid-key"] = domain.ErrInvalidAPIKey

	_, err := svc.Register(context.Background(), validRegisterInput())
	require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
	require.Empty(t, repo.users)
}

func TestRegisterProbeUnreachable(t *testing.T) {
	svc, repo, _, validator := newTestUserService(t)
	validator.verdicts["sk-valid-key"] = domain.ErrExternalService

	_, err := svc.Register(context.Background(), validRegisterInput())
	require.ErrorIs(t, err, domain.ErrExternalService)
	require.Empty(t, repo.users)
}

func TestRegisterRollsBackOnProvisioningFailure(t *testing.T) {
	svc, repo, store, _ := newTestUserService(t)
	store.provisionErr = errors.New("disk full")

	_, err := svc.Register(context.Background(), validRegisterInput())
	require.ErrorIs(t, err, ErrInternalError)

	// All-or-nothing: the record must be gone again.
	require.Empty(t, repo.users)
	require.Contains(t, repo.deleted, "alice_dev1")
}

func registerTestUser(t *testing.T, svc *UserService) {
	t.Helper()
	_, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	svc, repo, _, _ := newTestUserService(t)
	registerTestUser(t, svc)

	out, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "alice_dev1",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	require.Equal(t, "alice_dev1", out.User.Username)
	require.Equal(t, APIKeyValid, out.APIKeyStatus)
	require.False(t, out.KeyUpdated)

	// Last login recorded.
	require.False(t, repo.users["alice_dev1"].LastLogin.IsZero())
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	registerTestUser(t, svc)

	_, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "alice_dev1",
		Password: "Wr0ng!Pass",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)

	_, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "ghost_user1",
		Password: "Str0ng!Pass",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticateDisabledUser(t *testing.T) {
	svc, repo, _, _ := newTestUserService(t)
	registerTestUser(t, svc)

	u := repo.users["alice_dev1"]
	u.Disabled = true
	repo.users["alice_dev1"] = u

	_, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "alice_dev1",
		Password: "Str0ng!Pass",
	})
	require.ErrorIs(t, err, domain.ErrUserDisabled)
}

func TestAuthenticateStaleAccept(t *testing.T) {
	svc, _, _, validator := newTestUserService(t)
	registerTestUser(t, svc)

	// Upstream goes away after registration; login must still succeed.
	validator.defaultErr = domain.ErrExternalService
	validator.verdicts["sk-valid-key"] = domain.ErrExternalService

	out, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "alice_dev1",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	require.Equal(t, APIKeyUnknown, out.APIKeyStatus)
}

func TestAuthenticateInvalidStoredKey(t *testing.T) {
	svc, _, _, validator := newTestUserService(t)
	registerTestUser(t, svc)

	validator.verdicts["sk-valid-key"] = domain.ErrInvalidAPIKey

	out, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "alice_dev1",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	require.Equal(t, APIKeyInvalid, out.APIKeyStatus)
}

func TestAuthenticateReplacementKey(t *testing.T) {
	svc, repo, _, validator := newTestUserService(t)
	registerTestUser(t, svc)

	t.Run("valid replacement is stored", func(t *testing.T) {
		out, err := svc.Authenticate(context.Background(), AuthenticateInput{
			Username:  "alice_dev1",
			Password:  "Str0ng!Pass",
			NewAPIKey: "sk-replacement",
		})
		require.NoError(t, err)
		require.True(t, out.KeyUpdated)
		require.Equal(t, APIKeyValid, out.APIKeyStatus)
		require.Equal(t, "sk-replacement", repo.users["alice_dev1"].APIKey)
	})

	t.Run("invalid replacement keeps the old key", func(t *testing.T) {
		validator.verdicts["sk-bogus"] = domain.ErrInvalidAPIKey

		out, err := svc.Authenticate(context.Background(), AuthenticateInput{
			Username:  "alice_dev1",
			Password:  "Str0ng!Pass",
			NewAPIKey: "sk-bogus",
		})
		require.NoError(t, err)
		require.False(t, out.KeyUpdated)
		require.Equal(t, APIKeyInvalid, out.APIKeyStatus)
		require.Equal(t, "sk-replacement", repo.users["alice_dev1"].APIKey)
	})
}

func TestAuthenticateTouchFailureIsNotFatal(t *testing.T) {
	svc, repo, _, _ := newTestUserService(t)
	registerTestUser(t, svc)
	repo.touchErr = errors.New("disk full")

	_, err := svc.Authenticate(context.Background(), AuthenticateInput{
		Username: "alice_dev1",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
}

func TestUpdateAPIKey(t *testing.T) {
	svc, repo, _, validator := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, svc.UpdateAPIKey(ctx, "alice_dev1", "sk-new"))
		require.Equal(t, "sk-new", repo.users["alice_dev1"].APIKey)
	})

	t.Run("invalid is rejected and nothing stored", func(t *testing.T) {
		validator.verdicts["sk-bad"] = domain.ErrInvalidAPIKey
		err := svc.UpdateAPIKey(ctx, "alice_dev1", "sk-bad")
		require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
		require.Equal(t, "sk-new", repo.users["alice_dev1"].APIKey)
	})

	t.Run("unreachable upstream is an error", func(t *testing.T) {
		validator.verdicts["sk-maybe"] = domain.ErrExternalService
		err := svc.UpdateAPIKey(ctx, "alice_dev1", "sk-maybe")
		require.ErrorIs(t, err, domain.ErrExternalService)
	})

	t.Run("empty key", func(t *testing.T) {
		err := svc.UpdateAPIKey(ctx, "alice_dev1", "")
		require.ErrorIs(t, err, domain.ErrInvalidAPIKey)
	})
}

func TestSetDisabled(t *testing.T) {
	svc, repo, _, _ := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.SetDisabled(ctx, "alice_dev1", true))
	require.True(t, repo.users["alice_dev1"].Disabled)

	require.NoError(t, svc.SetDisabled(ctx, "alice_dev1", false))
	require.False(t, repo.users["alice_dev1"].Disabled)

	err := svc.SetDisabled(ctx, "ghost_user1", true)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAPIKeyEncryptionAtRest(t *testing.T) {
	repo := NewMockUserRepository()
	store := NewMockStore()
	validator := &MockValidator{verdicts: make(map[string]error)}
	encryptor, err := crypto.NewEncryptor(bytes.Repeat([]byte("k"), crypto.KeySize))
	require.NoError(t, err)

	svc := NewUserService(repo, store, validator, encryptor, zerolog.Nop())
	ctx := context.Background()

	_, err = svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	// The persisted record must not contain the plaintext key.
	require.NotEqual(t, "sk-valid-key", repo.users["alice_dev1"].APIKey)
	require.NotEmpty(t, repo.users["alice_dev1"].APIKey)

	// But reads decrypt it transparently.
	user, err := svc.GetByUsername(ctx, "alice_dev1")
	require.NoError(t, err)
	require.Equal(t, "sk-valid-key", user.APIKey)

	// And authentication still re-validates the decrypted key.
	out, err := svc.Authenticate(ctx, AuthenticateInput{
		Username: "alice_dev1",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	require.Equal(t, APIKeyValid, out.APIKeyStatus)
}
