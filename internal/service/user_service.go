package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/metrics"
	"github.com/prn-tf/workroom/internal/namespace"
	"github.com/prn-tf/workroom/internal/pkg/crypto"
	"github.com/prn-tf/workroom/internal/probe"
	"github.com/prn-tf/workroom/internal/repository"
	"github.com/prn-tf/workroom/internal/token"
)

// APIKeyStatus reports the outcome of re-validating a user's external
// API key during login.
type APIKeyStatus string

const (
	// APIKeyValid means the probe accepted the key.
	APIKeyValid APIKeyStatus = "valid"

	// APIKeyInvalid means the upstream rejected the key.
	APIKeyInvalid APIKeyStatus = "invalid"

	// APIKeyUnknown means the upstream could not be reached; the login
	// proceeds on the last known-good key.
	APIKeyUnknown APIKeyStatus = "unknown"
)

// UserService handles registration, authentication, and API key
// management. It keeps the credential record and the user's namespace
// in lockstep: a user either has both or neither.
type UserService struct {
	userRepo  repository.UserRepository
	store     namespace.Store
	validator probe.Validator
	encryptor *crypto.Encryptor // nil when keys are stored in the clear
	logger    zerolog.Logger
}

// NewUserService creates a new UserService. encryptor may be nil, in
// which case API keys are persisted unencrypted.
func NewUserService(userRepo repository.UserRepository, store namespace.Store, validator probe.Validator, encryptor *crypto.Encryptor, logger zerolog.Logger) *UserService {
	return &UserService{
		userRepo:  userRepo,
		store:     store,
		validator: validator,
		encryptor: encryptor,
		logger:    logger.With().Str("service", "user").Logger(),
	}
}

// RegisterInput contains the data needed to register a new user.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
	APIKey   string
}

// Register creates a new user account with a provisioned namespace.
// The external API key is probed before anything is persisted, and a
// failed namespace provisioning rolls the credential record back.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if err := domain.ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			return nil, ErrInvalidEmail
		}
	}
	if input.APIKey == "" {
		return nil, domain.ErrInvalidAPIKey
	}

	if err := s.probeKey(ctx, input.APIKey); err != nil {
		return nil, err
	}

	passwordHash, err := token.HashPassword(input.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", ErrInternalError)
	}

	storedKey, err := s.sealKey(input.APIKey)
	if err != nil {
		return nil, err
	}

	user := domain.NewUser(input.Username, input.Email, passwordHash, storedKey)
	user.FullName = input.FullName

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("username", input.Username).Msg("failed to create user record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if err := s.store.Provision(ctx, input.Username); err != nil {
		s.logger.Error().Err(err).Str("username", input.Username).Msg("namespace provisioning failed, rolling back registration")
		if delErr := s.userRepo.Delete(ctx, input.Username); delErr != nil {
			s.logger.Error().Err(delErr).Str("username", input.Username).Msg("rollback of user record failed")
		}
		if rmErr := s.store.RemoveNamespace(ctx, input.Username); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("username", input.Username).Msg("rollback of namespace failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", user.Username).
		Msg("user registered")

	user.APIKey = input.APIKey
	return user, nil
}

// AuthenticateInput carries login credentials plus an optional
// replacement API key submitted alongside them.
type AuthenticateInput struct {
	Username string
	Password string

	// NewAPIKey, when non-empty, is probed and stored in place of the
	// current key. An invalid or unverifiable replacement leaves the
	// stored key untouched; the login still succeeds.
	NewAPIKey string
}

// AuthenticateOutput is the result of a successful login.
type AuthenticateOutput struct {
	User         *domain.User
	APIKeyStatus APIKeyStatus

	// KeyUpdated reports whether a replacement key was accepted and stored.
	KeyUpdated bool
}

// Authenticate verifies credentials and re-validates the user's stored
// API key. Authentication never depends on the probe: an unreachable
// upstream yields APIKeyUnknown and the login proceeds on the last
// known-good key.
func (s *UserService) Authenticate(ctx context.Context, input AuthenticateInput) (*AuthenticateOutput, error) {
	user, err := s.getUser(ctx, input.Username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Debug().Str("username", input.Username).Msg("user not found during authentication")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.CanAuthenticate() {
		s.logger.Debug().Str("username", input.Username).Msg("disabled user attempted authentication")
		return nil, domain.ErrUserDisabled
	}

	if !token.VerifyPassword(input.Password, user.PasswordHash) {
		s.logger.Debug().Str("username", input.Username).Msg("invalid password during authentication")
		return nil, domain.ErrInvalidCredentials
	}

	out := &AuthenticateOutput{User: user}

	if input.NewAPIKey != "" && input.NewAPIKey != user.APIKey {
		out.APIKeyStatus = s.tryReplaceKey(ctx, user, input.NewAPIKey)
		out.KeyUpdated = out.APIKeyStatus == APIKeyValid
	} else {
		out.APIKeyStatus = s.classifyKey(ctx, user.APIKey)
	}

	if err := s.userRepo.TouchLastLogin(ctx, input.Username, time.Now().UTC()); err != nil {
		// Best-effort: a failed timestamp update never blocks a login.
		s.logger.Warn().Err(err).Str("username", input.Username).Msg("failed to record last login")
	}

	s.logger.Info().
		Str("username", user.Username).
		Str("api_key_status", string(out.APIKeyStatus)).
		Msg("user authenticated")

	return out, nil
}

// UpdateAPIKey probes and stores a replacement API key. Unlike the
// login-time replacement this is strict: an invalid or unverifiable
// key is an error and nothing is stored.
func (s *UserService) UpdateAPIKey(ctx context.Context, username, newKey string) error {
	if newKey == "" {
		return domain.ErrInvalidAPIKey
	}
	if err := s.probeKey(ctx, newKey); err != nil {
		return err
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}

	storedKey, err := s.sealKey(newKey)
	if err != nil {
		return err
	}
	user.APIKey = storedKey

	if err := s.userRepo.Update(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to store replacement api key")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Str("username", username).Msg("api key updated")
	return nil
}

// GetByUsername retrieves a user by username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, username)
}

// SetDisabled enables or disables an account. Used by the admin CLI.
func (s *UserService) SetDisabled(ctx context.Context, username string, disabled bool) error {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}
	if user.Disabled == disabled {
		return nil
	}
	user.Disabled = disabled
	user.APIKey, err = s.sealKey(user.APIKey)
	if err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", username).
		Bool("disabled", disabled).
		Msg("user status changed")
	return nil
}

// List returns a page of user records, newest first. Used by the admin
// CLI; stored API keys are not opened.
func (s *UserService) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	result, err := s.userRepo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	for _, u := range result.Items {
		u.APIKey = ""
	}
	return result, nil
}

// getUser loads a record and opens its stored API key.
func (s *UserService) getUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, domain.ErrUserNotFound
		case errors.Is(err, domain.ErrCorruptRecord):
			s.logger.Error().Err(err).Str("username", username).Msg("corrupt user record")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		default:
			s.logger.Error().Err(err).Str("username", username).Msg("failed to load user")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	key, err := s.openKey(user.APIKey)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to decrypt stored api key")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, ErrEncryptionFailed)
	}
	user.APIKey = key
	return user, nil
}

// probeKey validates a key strictly: any non-nil probe verdict is
// surfaced to the caller.
func (s *UserService) probeKey(ctx context.Context, key string) error {
	err := s.validator.Validate(ctx, key)
	switch {
	case err == nil:
		metrics.ObserveProbe("valid")
		return nil
	case errors.Is(err, domain.ErrInvalidAPIKey):
		metrics.ObserveProbe("invalid")
		return domain.ErrInvalidAPIKey
	default:
		metrics.ObserveProbe("error")
		s.logger.Warn().Err(err).Msg("api key probe unavailable")
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
}

// classifyKey re-validates a stored key leniently, for login.
func (s *UserService) classifyKey(ctx context.Context, key string) APIKeyStatus {
	err := s.validator.Validate(ctx, key)
	switch {
	case err == nil:
		metrics.ObserveProbe("valid")
		return APIKeyValid
	case errors.Is(err, domain.ErrInvalidAPIKey):
		metrics.ObserveProbe("invalid")
		return APIKeyInvalid
	default:
		metrics.ObserveProbe("error")
		s.logger.Warn().Err(err).Msg("api key probe unavailable, accepting stored key")
		return APIKeyUnknown
	}
}

// tryReplaceKey probes a replacement key and stores it when accepted.
// The existing key survives any other outcome.
func (s *UserService) tryReplaceKey(ctx context.Context, user *domain.User, newKey string) APIKeyStatus {
	status := s.classifyKey(ctx, newKey)
	if status != APIKeyValid {
		return status
	}

	storedKey, err := s.sealKey(newKey)
	if err != nil {
		s.logger.Error().Err(err).Str("username", user.Username).Msg("failed to encrypt replacement api key")
		return APIKeyUnknown
	}

	updated := *user
	updated.APIKey = storedKey
	if err := s.userRepo.Update(ctx, &updated); err != nil {
		s.logger.Error().Err(err).Str("username", user.Username).Msg("failed to store replacement api key")
		return APIKeyUnknown
	}

	user.APIKey = newKey
	return APIKeyValid
}

// sealKey encrypts a key for persistence when an encryptor is configured.
func (s *UserService) sealKey(key string) (string, error) {
	if s.encryptor == nil || key == "" {
		return key, nil
	}
	sealed, err := s.encryptor.EncryptString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return sealed, nil
}

// openKey reverses sealKey.
func (s *UserService) openKey(stored string) (string, error) {
	if s.encryptor == nil || stored == "" {
		return stored, nil
	}
	key, err := s.encryptor.DecryptString(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return key, nil
}
