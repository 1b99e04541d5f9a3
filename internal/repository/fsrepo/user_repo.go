// Package fsrepo implements the user repository on the local filesystem:
// one credentials.json per user directory, alongside the user's projects/
// namespace. This is the canonical Workroom deployment; the SQLite and
// PostgreSQL repositories exist for installations that want credential
// records in a database.
package fsrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/repository"
)

const credentialsFileName = "credentials.json"

// credentialsRecord is the on-disk shape of a user record.
type credentialsRecord struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"hashed_password"`
	APIKey       string    `json:"api_key"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`
}

// UserRepository stores user records as JSON files under a users root.
type UserRepository struct {
	root   string
	logger zerolog.Logger
}

// NewUserRepository creates a filesystem user repository rooted at the
// given users directory.
func NewUserRepository(root string, logger zerolog.Logger) (*UserRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating users root: %w", err)
	}
	return &UserRepository{
		root:   root,
		logger: logger.With().Str("repository", "fs-users").Logger(),
	}, nil
}

func (r *UserRepository) credentialsPath(username string) (string, error) {
	// The username doubles as a directory name; confine it to one path
	// element even though domain validation already guarantees the format.
	if username == "" || strings.ContainsAny(username, `/\`) || username == "." || username == ".." {
		return "", domain.ErrInvalidUsername
	}
	return filepath.Join(r.root, username, credentialsFileName), nil
}

// Create persists a new user record, failing if one already exists.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	path, err := r.credentialsPath(user.Username)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: creating user directory: %v", domain.ErrStorage, err)
	}

	// O_EXCL makes the uniqueness check and the write one step.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("%w: creating credentials file: %v", domain.ErrStorage, err)
	}

	err = json.NewEncoder(f).Encode(recordFromUser(user))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			r.logger.Error().Err(rmErr).Str("username", user.Username).Msg("cleanup of failed create failed")
		}
		return fmt.Errorf("%w: writing credentials: %v", domain.ErrStorage, err)
	}

	return nil
}

// GetByUsername reads and decodes the user's credentials record.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	path, err := r.credentialsPath(username)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%w: reading credentials: %v", domain.ErrStorage, err)
	}

	var rec credentialsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Error().Err(err).Str("username", username).Msg("credentials record does not decode")
		return nil, domain.ErrCorruptRecord
	}
	if rec.Username == "" || rec.PasswordHash == "" {
		r.logger.Error().Str("username", username).Msg("credentials record missing required fields")
		return nil, domain.ErrCorruptRecord
	}

	return rec.toUser(), nil
}

// Update overwrites an existing record via write-to-temp-then-rename.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	path, err := r.credentialsPath(user.Username)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("%w: checking credentials: %v", domain.ErrStorage, err)
	}
	return r.writeRecord(path, recordFromUser(user))
}

// TouchLastLogin updates the last-login timestamp only.
func (r *UserRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	user, err := r.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	user.LastLogin = at
	return r.Update(ctx, user)
}

// Delete removes the credentials record.
func (r *UserRepository) Delete(ctx context.Context, username string) error {
	path, err := r.credentialsPath(username)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("%w: removing credentials: %v", domain.ErrStorage, err)
	}
	return nil
}

// ExistsByUsername checks whether a credentials record exists.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	path, err := r.credentialsPath(username)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: checking credentials: %v", domain.ErrStorage, err)
	}
	return true, nil
}

// List returns user records with pagination, newest first. Directories with
// a corrupt or missing credentials record are skipped with a log line rather
// than failing the whole listing.
func (r *UserRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("%w: listing users root: %v", domain.ErrStorage, err)
	}

	var users []*domain.User
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		user, err := r.GetByUsername(ctx, entry.Name())
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				r.logger.Warn().Err(err).Str("username", entry.Name()).Msg("skipping unreadable user record")
			}
			continue
		}
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})

	total := int64(len(users))
	start := opts.Offset
	if start > len(users) {
		start = len(users)
	}
	end := len(users)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return &repository.ListResult[domain.User]{
		Items:  users[start:end],
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// writeRecord writes a record to a temp file and renames it into place so a
// crash never leaves a truncated credentials file.
func (r *UserRepository) writeRecord(path string, rec credentialsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding credentials: %v", domain.ErrStorage, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: writing credentials: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.logger.Error().Err(rmErr).Msg("cleanup of temp credentials file failed")
		}
		return fmt.Errorf("%w: replacing credentials: %v", domain.ErrStorage, err)
	}
	return nil
}

func recordFromUser(u *domain.User) credentialsRecord {
	return credentialsRecord{
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		APIKey:       u.APIKey,
		Disabled:     u.Disabled,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}

func (rec credentialsRecord) toUser() *domain.User {
	return &domain.User{
		Username:     rec.Username,
		Email:        rec.Email,
		FullName:     rec.FullName,
		PasswordHash: rec.PasswordHash,
		APIKey:       rec.APIKey,
		Disabled:     rec.Disabled,
		CreatedAt:    rec.CreatedAt,
		LastLogin:    rec.LastLogin,
	}
}

// Ensure UserRepository implements the interface.
var _ repository.UserRepository = (*UserRepository)(nil)
