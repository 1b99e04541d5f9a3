package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/lock"
	"github.com/prn-tf/workroom/internal/namespace"
)

// createLockTTL bounds how long a project-creation lock may be held if
// its owner dies mid-operation.
const createLockTTL = 10 * time.Second

// ProjectService handles project and file operations within a user's
// namespace.
type ProjectService struct {
	store  namespace.Store
	locker lock.Locker
	logger zerolog.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(store namespace.Store, locker lock.Locker, logger zerolog.Logger) *ProjectService {
	return &ProjectService{
		store:  store,
		locker: locker,
		logger: logger.With().Str("service", "project").Logger(),
	}
}

// CreateProject creates an empty project for the user. Creation is
// serialized per (user, project) so concurrent requests for the same
// name resolve to exactly one project and one conflict error.
func (s *ProjectService) CreateProject(ctx context.Context, username, name string) (*domain.Project, error) {
	if err := domain.ValidateProjectName(name); err != nil {
		return nil, err
	}

	var project *domain.Project
	lockKey := fmt.Sprintf("project:create:%s:%s", username, name)
	err := lock.WithLock(ctx, s.locker, lockKey, createLockTTL, func() error {
		var err error
		project, err = s.store.CreateProject(ctx, username, name)
		return err
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockNotAcquired) {
			// Someone else is creating this project right now; from the
			// caller's view it already exists.
			return nil, domain.ErrProjectAlreadyExists
		}
		if errors.Is(err, domain.ErrProjectAlreadyExists) {
			return nil, err
		}
		s.logger.Error().Err(err).
			Str("username", username).
			Str("project", name).
			Msg("failed to create project")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", username).
		Str("project", project.Name).
		Str("project_id", project.ID).
		Msg("project created")

	return project, nil
}

// ListProjects enumerates the user's projects, newest first.
func (s *ProjectService) ListProjects(ctx context.Context, username string) ([]domain.Project, error) {
	projects, err := s.store.ListProjects(ctx, username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to list projects")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return projects, nil
}

// ListFiles reports the main and temp contents of a project.
func (s *ProjectService) ListFiles(ctx context.Context, username, project string) (*domain.FileListing, error) {
	listing, err := s.store.ListFiles(ctx, username, project)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) || errors.Is(err, domain.ErrInvalidProjectName) {
			return nil, err
		}
		s.logger.Error().Err(err).
			Str("username", username).
			Str("project", project).
			Msg("failed to list files")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return listing, nil
}

// UploadInput describes a file upload.
type UploadInput struct {
	Username string
	Project  string
	Folder   domain.Folder
	Filename string
	Content  io.Reader
}

// Upload writes a file into the project. Folder defaults to temp when
// unset; promotion to main is an explicit move.
func (s *ProjectService) Upload(ctx context.Context, input UploadInput) (int64, error) {
	folder := input.Folder
	if folder == "" {
		folder = domain.FolderTemp
	}

	size, err := s.store.Upload(ctx, input.Username, input.Project, folder, input.Filename, input.Content)
	if err != nil {
		if isClientFault(err) {
			return 0, err
		}
		s.logger.Error().Err(err).
			Str("username", input.Username).
			Str("project", input.Project).
			Str("filename", input.Filename).
			Msg("upload failed")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", input.Username).
		Str("project", input.Project).
		Str("folder", string(folder)).
		Str("filename", input.Filename).
		Int64("size", size).
		Msg("file uploaded")

	return size, nil
}

// ReadFile opens a project file, resolving main before temp. The
// caller must close the returned reader.
func (s *ProjectService) ReadFile(ctx context.Context, username, project, filename string) (io.ReadCloser, error) {
	rc, err := s.store.Read(ctx, username, project, filename)
	if err != nil {
		if isClientFault(err) {
			return nil, err
		}
		s.logger.Error().Err(err).
			Str("username", username).
			Str("project", project).
			Str("filename", filename).
			Msg("read failed")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return rc, nil
}

// DeleteFile removes a project file, resolving main before temp.
func (s *ProjectService) DeleteFile(ctx context.Context, username, project, filename string) error {
	if err := s.store.Delete(ctx, username, project, filename); err != nil {
		if isClientFault(err) {
			return err
		}
		s.logger.Error().Err(err).
			Str("username", username).
			Str("project", project).
			Str("filename", filename).
			Msg("delete failed")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", username).
		Str("project", project).
		Str("filename", filename).
		Msg("file deleted")
	return nil
}

// MoveToMain promotes a file from temp to main.
func (s *ProjectService) MoveToMain(ctx context.Context, username, project, filename string) error {
	if err := s.store.MoveToMain(ctx, username, project, filename); err != nil {
		if isClientFault(err) {
			return err
		}
		s.logger.Error().Err(err).
			Str("username", username).
			Str("project", project).
			Str("filename", filename).
			Msg("move failed")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("username", username).
		Str("project", project).
		Str("filename", filename).
		Msg("file promoted to main")
	return nil
}

// isClientFault reports whether an error should reach the caller as-is
// rather than be collapsed into an internal error.
func isClientFault(err error) bool {
	return errors.Is(err, domain.ErrProjectNotFound) ||
		errors.Is(err, domain.ErrProjectAlreadyExists) ||
		errors.Is(err, domain.ErrFileNotFound) ||
		errors.Is(err, domain.ErrInvalidProjectName) ||
		errors.Is(err, domain.ErrInvalidFileName) ||
		errors.Is(err, domain.ErrInvalidFolder)
}
