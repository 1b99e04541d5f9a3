package namespace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
)

const (
	projectsDirName = "projects"
	infoFileName    = "project.json"
)

// projectInfo is the persisted project-info record.
type projectInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FS implements Store on the local filesystem. Layout:
//
//	<root>/<username>/projects/<project>/project.json
//	<root>/<username>/projects/<project>/main/
//	<root>/<username>/projects/<project>/temp/
//
// The credentials record kept by the fs user repository lives alongside
// projects/ in the user directory; FS never touches it.
type FS struct {
	root   string
	logger zerolog.Logger
}

// NewFS creates a filesystem-backed Store rooted at the given users
// directory. The root is created if absent.
func NewFS(root string, logger zerolog.Logger) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating users root: %v", domain.ErrStorage, err)
	}
	return &FS{
		root:   root,
		logger: logger.With().Str("component", "namespace").Logger(),
	}, nil
}

// Root returns the users root directory.
func (s *FS) Root() string {
	return s.root
}

func (s *FS) projectsDir(username string) (string, error) {
	return resolveUnder(s.root, username, projectsDirName)
}

func (s *FS) projectDir(username, project string) (string, error) {
	if err := domain.ValidateProjectName(project); err != nil {
		return "", err
	}
	return resolveUnder(s.root, username, projectsDirName, project)
}

// Provision creates the user's empty namespace.
func (s *FS) Provision(ctx context.Context, username string) error {
	dir, err := s.projectsDir(username)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: provisioning namespace: %v", domain.ErrStorage, err)
	}
	return nil
}

// RemoveNamespace deletes the user's entire namespace directory.
func (s *FS) RemoveNamespace(ctx context.Context, username string) error {
	dir, err := resolveUnder(s.root, username)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: removing namespace: %v", domain.ErrStorage, err)
	}
	return nil
}

// CreateProject creates <project>/, main/, temp/, and the info record.
// All-or-nothing: only a directory this call itself created is ever rolled
// back, so a concurrent winner's tree is never deleted by the loser.
func (s *FS) CreateProject(ctx context.Context, username, name string) (*domain.Project, error) {
	dir, err := s.projectDir(username, name)
	if err != nil {
		return nil, err
	}

	parent, err := s.projectsDir(username)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating projects root: %v", domain.ErrStorage, err)
	}

	// Mkdir (not MkdirAll) so a lost creation race surfaces as EEXIST here,
	// before anything is written.
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, domain.ErrProjectAlreadyExists
		}
		return nil, fmt.Errorf("%w: creating project directory: %v", domain.ErrStorage, err)
	}

	project := &domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.populateProject(dir, project); err != nil {
		// Roll back the tree we created; the EEXIST branch above guarantees
		// it is ours.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("project", name).Msg("rollback of partial project failed")
		}
		return nil, err
	}

	s.logger.Info().Str("username", username).Str("project", name).Msg("project created")
	return project, nil
}

func (s *FS) populateProject(dir string, project *domain.Project) error {
	for _, folder := range []domain.Folder{domain.FolderMain, domain.FolderTemp} {
		if err := os.Mkdir(filepath.Join(dir, string(folder)), 0o755); err != nil {
			return fmt.Errorf("%w: creating %s folder: %v", domain.ErrStorage, folder, err)
		}
	}

	info := projectInfo{ID: project.ID, Name: project.Name, CreatedAt: project.CreatedAt}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: encoding project info: %v", domain.ErrStorage, err)
	}
	if err := os.WriteFile(filepath.Join(dir, infoFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing project info: %v", domain.ErrStorage, err)
	}
	return nil
}

// ListProjects enumerates the user's projects, newest first.
func (s *FS) ListProjects(ctx context.Context, username string) ([]domain.Project, error) {
	dir, err := s.projectsDir(username)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Project{}, nil
		}
		return nil, fmt.Errorf("%w: listing projects: %v", domain.ErrStorage, err)
	}

	projects := make([]domain.Project, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		p := domain.Project{Name: entry.Name()}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name(), infoFileName))
		if err == nil {
			var info projectInfo
			if err := json.Unmarshal(data, &info); err == nil {
				p.ID = info.ID
				p.CreatedAt = info.CreatedAt
			}
		}
		// Missing or unreadable info record: the project still lists, with
		// a zero timestamp.
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.After(projects[j].CreatedAt)
		}
		return projects[i].Name < projects[j].Name
	})

	return projects, nil
}

// ListFiles reports the files in a project's main and temp folders.
func (s *FS) ListFiles(ctx context.Context, username, project string) (*domain.FileListing, error) {
	dir, err := s.projectDir(username, project)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("%w: checking project: %v", domain.ErrStorage, err)
	}

	listing := &domain.FileListing{Main: []string{}, Temp: []string{}}
	for _, folder := range []domain.Folder{domain.FolderMain, domain.FolderTemp} {
		names, err := listFolder(filepath.Join(dir, string(folder)))
		if err != nil {
			return nil, err
		}
		switch folder {
		case domain.FolderMain:
			listing.Main = names
		case domain.FolderTemp:
			listing.Temp = names
		}
	}

	return listing, nil
}

// listFolder lists regular files in a folder, sorted. An absent folder
// yields an empty list, not an error.
func listFolder(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: listing folder: %v", domain.ErrStorage, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Upload writes content to project/folder/filename, overwriting silently.
func (s *FS) Upload(ctx context.Context, username, project string, folder domain.Folder, filename string, content io.Reader) (int64, error) {
	if !folder.Valid() {
		return 0, domain.ErrInvalidFolder
	}

	dir, err := s.projectDir(username, project)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, domain.ErrProjectNotFound
		}
		return 0, fmt.Errorf("%w: checking project: %v", domain.ErrStorage, err)
	}

	dst, err := resolveUnder(s.root, username, projectsDirName, project, string(folder), filename)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("%w: creating folder: %v", domain.ErrStorage, err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("%w: creating file: %v", domain.ErrStorage, err)
	}

	n, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A half-written upload is worse than no upload.
		if rmErr := os.Remove(dst); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("file", filename).Msg("cleanup of failed upload failed")
		}
		return 0, fmt.Errorf("%w: writing file: %v", domain.ErrStorage, err)
	}

	return n, nil
}

// findFile resolves a filename by checking main first, then temp.
func (s *FS) findFile(username, project, filename string) (string, error) {
	dir, err := s.projectDir(username, project)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.ErrProjectNotFound
		}
		return "", fmt.Errorf("%w: checking project: %v", domain.ErrStorage, err)
	}

	for _, folder := range []domain.Folder{domain.FolderMain, domain.FolderTemp} {
		path, err := resolveUnder(s.root, username, projectsDirName, project, string(folder), filename)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", domain.ErrFileNotFound
}

// Read opens a file, main taking precedence over temp.
func (s *FS) Read(ctx context.Context, username, project, filename string) (io.ReadCloser, error) {
	path, err := s.findFile(username, project, filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening file: %v", domain.ErrStorage, err)
	}
	return f, nil
}

// Delete removes the first match, main taking precedence over temp.
func (s *FS) Delete(ctx context.Context, username, project, filename string) error {
	path, err := s.findFile(username, project, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: removing file: %v", domain.ErrStorage, err)
	}
	return nil
}

// MoveToMain relocates a file from temp to main.
func (s *FS) MoveToMain(ctx context.Context, username, project, filename string) error {
	dir, err := s.projectDir(username, project)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrProjectNotFound
		}
		return fmt.Errorf("%w: checking project: %v", domain.ErrStorage, err)
	}

	src, err := resolveUnder(s.root, username, projectsDirName, project, string(domain.FolderTemp), filename)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrFileNotFound
		}
		return fmt.Errorf("%w: checking staged file: %v", domain.ErrStorage, err)
	}

	dst, err := resolveUnder(s.root, username, projectsDirName, project, string(domain.FolderMain), filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: creating main folder: %v", domain.ErrStorage, err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// Rename can fail across filesystems; fall back to copy+delete with
	// cleanup so a failure never leaves a partial copy in main.
	if err := copyFile(src, dst); err != nil {
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Error().Err(rmErr).Str("file", filename).Msg("cleanup of partial move failed")
		}
		return fmt.Errorf("%w: moving file: %v", domain.ErrStorage, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("%w: removing staged file after copy: %v", domain.ErrStorage, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Ensure FS implements Store.
var _ Store = (*FS)(nil)
