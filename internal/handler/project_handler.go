package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/pkg/crypto"
	"github.com/prn-tf/workroom/internal/service"
)

// ProjectHandler serves project and file endpoints.
type ProjectHandler struct {
	projects      *service.ProjectService
	maxUploadSize int64
	logger        zerolog.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *service.ProjectService, maxUploadSize int64, logger zerolog.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects:      projects,
		maxUploadSize: maxUploadSize,
		logger:        logger.With().Str("handler", "project").Logger(),
	}
}

// projectResponse is the public view of a project.
type projectResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func toProjectResponse(p domain.Project) projectResponse {
	resp := projectResponse{ID: p.ID, Name: p.Name}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

// createProjectRequest is the POST /projects body.
type createProjectRequest struct {
	Name string `json:"name"`
}

// Create handles POST /projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "could not parse request body")
		return
	}

	user := UserFromContext(r.Context())
	project, err := h.projects.CreateProject(r.Context(), user.Username, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProjectResponse(*project))
}

// List handles GET /projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	projects, err := h.projects.ListProjects(r.Context(), user.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": resp})
}

// Files handles GET /projects/{name}/files.
func (h *ProjectHandler) Files(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	listing, err := h.projects.ListFiles(r.Context(), user.Username, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// Download handles GET /projects/{name}/files/{file}, streaming the
// file body. Main takes precedence over temp.
func (h *ProjectHandler) Download(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	filename := chi.URLParam(r, "file")

	rc, err := h.projects.ReadFile(r.Context(), user.Username, chi.URLParam(r, "name"), filename)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn().Err(err).Str("filename", filename).Msg("download interrupted")
	}
}

// DeleteFile handles DELETE /projects/{name}/files/{file}.
func (h *ProjectHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	err := h.projects.DeleteFile(r.Context(), user.Username, chi.URLParam(r, "name"), chi.URLParam(r, "file"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move handles POST /projects/{name}/files/{file}/move, promoting a
// temp file to main.
func (h *ProjectHandler) Move(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	filename := chi.URLParam(r, "file")

	err := h.projects.MoveToMain(r.Context(), user.Username, chi.URLParam(r, "name"), filename)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File %q moved to main.", filename),
	})
}

// uploadResponse reports a stored upload.
type uploadResponse struct {
	Filename string `json:"filename"`
	Folder   string `json:"folder"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// Upload handles POST /upload/{project} and POST /upload/{project}/{folder}.
// Without an explicit folder the file lands in temp.
func (h *ProjectHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	project := chi.URLParam(r, "project")

	folder := domain.Folder(chi.URLParam(r, "folder"))
	if folder == "" {
		folder = domain.FolderTemp
	}
	if !folder.Valid() {
		writeError(w, h.logger, domain.ErrInvalidFolder)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: errorDetail{Kind: "too_large", Detail: "upload exceeds the size limit"},
			})
			return
		}
		writeBadRequest(w, "multipart form must carry a \"file\" part")
		return
	}
	defer file.Close()

	hashed := crypto.NewHashReader(file)
	size, err := h.projects.Upload(r.Context(), service.UploadInput{
		Username: user.Username,
		Project:  project,
		Folder:   folder,
		Filename: header.Filename,
		Content:  hashed,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Filename: header.Filename,
		Folder:   string(folder),
		Size:     size,
		SHA256:   hashed.Sum(),
	})
}
