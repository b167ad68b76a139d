package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

const (
	msgEnvProjectNotFound = "Env project not found"
	msgEnvFileNotFound    = "Env file not found"
)

// Envs serves /api/v1/envs: projects holding encrypted dotenv files, one per
// file type.
type Envs struct {
	gate  Gate
	store store.EnvStore
	codec Codec
}

func NewEnvs(gate Gate, s store.EnvStore, codec Codec) *Envs {
	return &Envs{gate: gate, store: s, codec: codec}
}

type envProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (req *envProjectRequest) validate() string {
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		return "name must be between 1 and 255 characters"
	}
	if strPtrLen(req.Description) > 1000 {
		return "description must be at most 1000 characters"
	}
	return ""
}

type envProjectDetail struct {
	*models.EnvProject
	Files []*models.EnvFile `json:"files"`
}

func (h *Envs) List(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsRead)
	if err != nil {
		return err
	}

	projects, err := h.store.ListEnvProjects(r.Context(), p.OwnerID, r.URL.Query().Get("search"))
	if err != nil {
		return fmt.Errorf("list env projects: %w", err)
	}
	response.JSON(w, projects)
	return nil
}

func (h *Envs) Create(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsWrite)
	if err != nil {
		return err
	}

	var req envProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if req.Name == nil {
		response.Error(w, http.StatusBadRequest, "name is required")
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	now := time.Now().UTC()
	project := &models.EnvProject{
		ID:          uuid.New(),
		UserID:      p.OwnerID,
		Name:        *req.Name,
		Description: nonEmpty(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateEnvProject(r.Context(), project); err != nil {
		return fmt.Errorf("create env project: %w", err)
	}
	response.Created(w, project)
	return nil
}

// Get returns the project with its file metadata.
func (h *Envs) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsRead)
	if err != nil {
		return err
	}

	project, ok, err := h.findProject(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	files, err := h.store.ListEnvFiles(r.Context(), project.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("list env files: %w", err)
	}
	response.JSON(w, envProjectDetail{EnvProject: project, Files: files})
	return nil
}

func (h *Envs) Update(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	var req envProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	project, err := h.store.UpdateEnvProject(r.Context(), id, p.OwnerID, models.EnvProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update env project: %w", err)
	}
	response.JSON(w, project)
	return nil
}

// Delete removes the project and, through the foreign key, its files.
func (h *Envs) Delete(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	err = h.store.DeleteEnvProject(r.Context(), id, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete env project: %w", err)
	}
	response.JSON(w, deleted{ID: id})
	return nil
}

func (h *Envs) ListFiles(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsRead)
	if err != nil {
		return err
	}

	project, ok, err := h.findProject(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	files, err := h.store.ListEnvFiles(r.Context(), project.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("list env files: %w", err)
	}
	response.JSON(w, files)
	return nil
}

type envFileRequest struct {
	FileType string `json:"fileType"`
	Content  string `json:"content"`
}

// SaveFile encrypts the content and stores it as the project's file of that
// type, replacing any previous one.
func (h *Envs) SaveFile(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsWrite)
	if err != nil {
		return err
	}

	var req envFileRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if !models.ValidEnvFileType(req.FileType) {
		response.Error(w, http.StatusBadRequest, "fileType must be one of env, env.local, env.production, env.development")
		return nil
	}
	if req.Content == "" {
		response.Error(w, http.StatusBadRequest, "content is required")
		return nil
	}

	project, ok, err := h.findProject(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}

	ciphertext, err := h.codec.Encrypt(req.Content)
	if err != nil {
		return fmt.Errorf("encrypt env file: %w", err)
	}
	now := time.Now().UTC()
	file := &models.EnvFile{
		ID:               uuid.New(),
		ProjectID:        project.ID,
		UserID:           p.OwnerID,
		FileType:         req.FileType,
		EncryptedContent: ciphertext,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = h.store.SaveEnvFile(r.Context(), file)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEnvProjectNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save env file: %w", err)
	}
	response.Created(w, file)
	return nil
}

func (h *Envs) DeleteFile(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsWrite)
	if err != nil {
		return err
	}

	projectID, fileID, ok := fileIDs(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvFileNotFound)
		return nil
	}
	err = h.store.DeleteEnvFile(r.Context(), projectID, fileID, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEnvFileNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete env file: %w", err)
	}
	response.JSON(w, deleted{ID: fileID})
	return nil
}

type revealedEnvFile struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"projectId"`
	FileType  string    `json:"fileType"`
	Content   string    `json:"content"`
}

func (h *Envs) RevealFile(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEnvsReveal)
	if err != nil {
		return err
	}

	projectID, fileID, ok := fileIDs(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgEnvFileNotFound)
		return nil
	}
	file, err := h.store.GetEnvFile(r.Context(), projectID, fileID, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEnvFileNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get env file: %w", err)
	}

	content, err := h.codec.Decrypt(file.EncryptedContent)
	if err != nil {
		return fmt.Errorf("decrypt env file: %w", err)
	}
	response.Sensitive(w, http.StatusOK, revealedEnvFile{
		ID:        file.ID,
		ProjectID: file.ProjectID,
		FileType:  file.FileType,
		Content:   content,
	})
	return nil
}

func (h *Envs) findProject(r *http.Request, userID string) (*models.EnvProject, bool, error) {
	id, ok := pathID(r)
	if !ok {
		return nil, false, nil
	}
	project, err := h.store.GetEnvProject(r.Context(), id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get env project: %w", err)
	}
	return project, true, nil
}

// fileIDs parses the {id} and {fileId} route parameters.
func fileIDs(r *http.Request) (projectID, fileID uuid.UUID, ok bool) {
	projectID, ok = pathID(r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return projectID, fileID, true
}
