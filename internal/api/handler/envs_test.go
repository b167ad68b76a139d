package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dotenv = "DATABASE_URL=postgres://localhost/app\nSTRIPE_KEY=sk_live_123\n"

func createEnvProject(t *testing.T, h *Envs, name string) models.EnvProject {
	t.Helper()
	rec := do(h.Create, http.MethodPost, "/envs", "/envs", map[string]any{
		"name":        name,
		"description": "billing service",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p models.EnvProject
	decodeData(t, rec, &p)
	return p
}

func saveEnvFile(h *Envs, projectID uuid.UUID, fileType, content string) *httptest.ResponseRecorder {
	return do(h.SaveFile, http.MethodPost, "/envs/{id}/files", "/envs/"+projectID.String()+"/files", map[string]any{
		"fileType": fileType,
		"content":  content,
	})
}

func TestEnvs_SaveAndRevealFile(t *testing.T) {
	st := newMemStore()
	codec := testCodec(t)
	h := NewEnvs(sessionGate(), st, codec)
	project := createEnvProject(t, h, "billing")

	rec := saveEnvFile(h, project.ID, models.EnvFileTypeProduction, dotenv)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sk_live_123")
	var file models.EnvFile
	decodeData(t, rec, &file)
	assert.Equal(t, project.ID, file.ProjectID)

	stored := st.envFiles[file.ID]
	require.NotNil(t, stored)
	assert.NotContains(t, stored.EncryptedContent, "sk_live_123")

	path := "/envs/" + project.ID.String() + "/files/" + file.ID.String() + "/reveal"
	rec = do(h.RevealFile, http.MethodPost, "/envs/{id}/files/{fileId}/reveal", path, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var got revealedEnvFile
	decodeData(t, rec, &got)
	assert.Equal(t, dotenv, got.Content)
	assert.Equal(t, models.EnvFileTypeProduction, got.FileType)
}

func TestEnvs_SaveFileReplacesSameType(t *testing.T) {
	st := newMemStore()
	codec := testCodec(t)
	h := NewEnvs(sessionGate(), st, codec)
	project := createEnvProject(t, h, "billing")

	first := saveEnvFile(h, project.ID, models.EnvFileTypeEnv, "A=1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := saveEnvFile(h, project.ID, models.EnvFileTypeEnv, "A=2")
	require.Equal(t, http.StatusCreated, second.Code)

	var a, b models.EnvFile
	decodeData(t, first, &a)
	decodeData(t, second, &b)
	assert.Equal(t, a.ID, b.ID)
	require.Len(t, st.envFiles, 1)

	plain, err := codec.Decrypt(st.envFiles[a.ID].EncryptedContent)
	require.NoError(t, err)
	assert.Equal(t, "A=2", plain)
}

func TestEnvs_SaveFileValidation(t *testing.T) {
	tests := []struct {
		name     string
		fileType string
		content  string
		want     string
	}{
		{"unknown type", "env.staging", "A=1", "fileType must be one of env, env.local, env.production, env.development"},
		{"missing type", "", "A=1", "fileType must be one of env, env.local, env.production, env.development"},
		{"empty content", models.EnvFileTypeEnv, "", "content is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			h := NewEnvs(sessionGate(), st, testCodec(t))
			project := st.addEnvProject(ownerID, "billing")

			rec := saveEnvFile(h, project.ID, tt.fileType, tt.content)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorMessage(t, rec))
		})
	}
}

func TestEnvs_SaveFileUnknownProject(t *testing.T) {
	h := NewEnvs(sessionGate(), newMemStore(), testCodec(t))

	rec := saveEnvFile(h, uuid.New(), models.EnvFileTypeEnv, "A=1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Env project not found", errorMessage(t, rec))
}

func TestEnvs_OtherOwnersProjectIsNotFound(t *testing.T) {
	st := newMemStore()
	h := NewEnvs(sessionGate(), st, testCodec(t))
	theirs := st.addEnvProject("user-2", "theirs")
	file := st.addEnvFile(theirs, models.EnvFileTypeEnv, "ciphertext")

	rec := do(h.Get, http.MethodGet, "/envs/{id}", "/envs/"+theirs.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	path := "/envs/" + theirs.ID.String() + "/files/" + file.ID.String() + "/reveal"
	rec = do(h.RevealFile, http.MethodPost, "/envs/{id}/files/{fileId}/reveal", path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Env file not found", errorMessage(t, rec))
}

func TestEnvs_GetIncludesFileMetadata(t *testing.T) {
	st := newMemStore()
	h := NewEnvs(sessionGate(), st, testCodec(t))
	project := st.addEnvProject(ownerID, "billing")
	st.addEnvFile(project, models.EnvFileTypeEnv, "ciphertext-1")
	st.addEnvFile(project, models.EnvFileTypeLocal, "ciphertext-2")

	rec := do(h.Get, http.MethodGet, "/envs/{id}", "/envs/"+project.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "ciphertext")
	var got struct {
		Name  string           `json:"name"`
		Files []models.EnvFile `json:"files"`
	}
	decodeData(t, rec, &got)
	assert.Equal(t, "billing", got.Name)
	require.Len(t, got.Files, 2)
	assert.Equal(t, models.EnvFileTypeEnv, got.Files[0].FileType)
}

func TestEnvs_ListCountsFiles(t *testing.T) {
	st := newMemStore()
	h := NewEnvs(keyGate(accesskey.ScopeEnvsRead), st, testCodec(t))
	project := st.addEnvProject(ownerID, "billing")
	st.addEnvFile(project, models.EnvFileTypeEnv, "ciphertext")
	st.addEnvProject(ownerID, "search")
	st.addEnvProject("user-2", "billing-other")

	rec := do(h.List, http.MethodGet, "/envs", "/envs?search=BILL", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.EnvProject
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].FileCount)
	assert.Equal(t, 1, *got[0].FileCount)
}

func TestEnvs_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing name", map[string]any{}, "name is required"},
		{"empty name", map[string]any{"name": ""}, "name must be between 1 and 255 characters"},
		{"long description", map[string]any{"name": "a", "description": strings.Repeat("d", 1001)}, "description must be at most 1000 characters"},
		{"invalid json", "{", msgInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewEnvs(sessionGate(), newMemStore(), testCodec(t))

			rec := do(h.Create, http.MethodPost, "/envs", "/envs", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorMessage(t, rec))
		})
	}
}

func TestEnvs_UpdateClearsDescription(t *testing.T) {
	st := newMemStore()
	h := NewEnvs(sessionGate(), st, testCodec(t))
	project := createEnvProject(t, h, "billing")

	rec := do(h.Update, http.MethodPut, "/envs/{id}", "/envs/"+project.ID.String(), map[string]any{
		"name":        "payments",
		"description": "",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got models.EnvProject
	decodeData(t, rec, &got)
	assert.Equal(t, "payments", got.Name)
	assert.Nil(t, got.Description)
}

func TestEnvs_DeleteRemovesFiles(t *testing.T) {
	st := newMemStore()
	h := NewEnvs(sessionGate(), st, testCodec(t))
	project := st.addEnvProject(ownerID, "billing")
	st.addEnvFile(project, models.EnvFileTypeEnv, "ciphertext")

	rec := do(h.Delete, http.MethodDelete, "/envs/{id}", "/envs/"+project.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got deleted
	decodeData(t, rec, &got)
	assert.Equal(t, project.ID, got.ID)
	assert.Empty(t, st.envFiles)

	rec = do(h.Delete, http.MethodDelete, "/envs/{id}", "/envs/"+project.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnvs_DeleteFile(t *testing.T) {
	st := newMemStore()
	h := NewEnvs(sessionGate(), st, testCodec(t))
	project := st.addEnvProject(ownerID, "billing")
	file := st.addEnvFile(project, models.EnvFileTypeEnv, "ciphertext")
	path := "/envs/" + project.ID.String() + "/files/" + file.ID.String()

	rec := do(h.DeleteFile, http.MethodDelete, "/envs/{id}/files/{fileId}", path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.envFiles)

	rec = do(h.DeleteFile, http.MethodDelete, "/envs/{id}/files/{fileId}", path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h.DeleteFile, http.MethodDelete, "/envs/{id}/files/{fileId}", "/envs/"+project.ID.String()+"/files/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnvs_Scopes(t *testing.T) {
	st := newMemStore()
	project := st.addEnvProject(ownerID, "billing")
	file := st.addEnvFile(project, models.EnvFileTypeEnv, "ciphertext")
	h := NewEnvs(keyGate(accesskey.ScopeEnvsRead, accesskey.ScopeEnvsWrite), st, testCodec(t))

	path := "/envs/" + project.ID.String() + "/files/" + file.ID.String() + "/reveal"
	rec := do(h.RevealFile, http.MethodPost, "/envs/{id}/files/{fileId}/reveal", path, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions: 'envs:reveal' scope required", errorMessage(t, rec))

	reader := NewEnvs(keyGate(accesskey.ScopeEnvsRead), st, testCodec(t))
	rec = saveEnvFile(reader, project.ID, models.EnvFileTypeEnv, "A=1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions: 'envs:write' scope required", errorMessage(t, rec))
}

func TestEnvs_StoreErrorIs500(t *testing.T) {
	st := newMemStore()
	st.err = errors.New("db down")
	h := NewEnvs(sessionGate(), st, testCodec(t))

	rec := do(h.List, http.MethodGet, "/envs", "/envs", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
