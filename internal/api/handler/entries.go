package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

const msgEntryNotFound = "Entry not found"

// EntryStore is the persistence the entry handlers need. Categories are
// looked up to check ownership before an entry is attached to one.
type EntryStore interface {
	store.EntryStore
	store.CategoryStore
}

// Entries serves /api/v1/entries.
type Entries struct {
	gate  Gate
	store EntryStore
	codec Codec
	stats Invalidator
}

func NewEntries(gate Gate, s EntryStore, codec Codec, stats Invalidator) *Entries {
	return &Entries{gate: gate, store: s, codec: codec, stats: stats}
}

type entryRequest struct {
	CategoryID  string          `json:"categoryId"`
	ProjectName *string         `json:"projectName"`
	Description *string         `json:"description"`
	Environment *string         `json:"environment"`
	Value       json.RawMessage `json:"value"`
	FileName    *string         `json:"fileName"`
	Notes       *string         `json:"notes"`
	ExpiresAt   *string         `json:"expiresAt"`
}

func (req *entryRequest) validate() string {
	if req.ProjectName != nil && (len(*req.ProjectName) == 0 || len(*req.ProjectName) > 255) {
		return "projectName must be between 1 and 255 characters"
	}
	if strPtrLen(req.Description) > 1000 {
		return "description must be at most 1000 characters"
	}
	if req.Environment != nil && !models.ValidEnvironment(*req.Environment) {
		return "environment must be one of production, staging, development, local"
	}
	if strPtrLen(req.FileName) > 255 {
		return "fileName must be at most 255 characters"
	}
	if strPtrLen(req.Notes) > 2000 {
		return "notes must be at most 2000 characters"
	}
	if _, ok := parseTime(req.ExpiresAt); !ok {
		return "expiresAt must be an RFC3339 timestamp"
	}
	return ""
}

// encryptValue encrypts a string value as-is and a key/value group as JSON.
// ok is false when raw is neither.
func (h *Entries) encryptValue(raw json.RawMessage) (ciphertext string, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return "", false, nil
		}
		ct, err := h.codec.Encrypt(s)
		return ct, true, err
	case '{':
		var group map[string]string
		if json.Unmarshal(raw, &group) != nil {
			return "", false, nil
		}
		ct, err := h.codec.EncryptJSON(group)
		return ct, true, err
	}
	return "", false, nil
}

const msgInvalidValue = "value must be a string or an object of strings"

func (h *Entries) List(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEntriesRead)
	if err != nil {
		return err
	}

	q := r.URL.Query()
	filter := models.EntryFilter{UserID: p.OwnerID, Search: q.Get("search")}
	if raw := q.Get("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.JSON(w, []*models.Entry{})
			return nil
		}
		filter.CategoryID = &id
	}

	entries, err := h.store.ListEntries(r.Context(), filter)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	response.JSON(w, entries)
	return nil
}

func (h *Entries) Create(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEntriesWrite)
	if err != nil {
		return err
	}

	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "categoryId must be a UUID")
		return nil
	}
	if req.ProjectName == nil {
		response.Error(w, http.StatusBadRequest, "projectName is required")
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	if _, err := h.store.GetCategory(r.Context(), categoryID, p.OwnerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, msgCategoryNotFound)
			return nil
		}
		return fmt.Errorf("get category: %w", err)
	}

	ciphertext, ok, err := h.encryptValue(req.Value)
	if err != nil {
		return fmt.Errorf("encrypt value: %w", err)
	}
	if !ok {
		response.Error(w, http.StatusBadRequest, msgInvalidValue)
		return nil
	}

	env := models.EnvProduction
	if req.Environment != nil {
		env = *req.Environment
	}
	expiresAt, _ := parseTime(req.ExpiresAt)
	now := time.Now().UTC()
	e := &models.Entry{
		ID:             uuid.New(),
		CategoryID:     categoryID,
		ProjectName:    *req.ProjectName,
		Description:    nonEmpty(req.Description),
		Environment:    env,
		EncryptedValue: ciphertext,
		FileName:       nonEmpty(req.FileName),
		Notes:          nonEmpty(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      expiresAt,
	}
	if err := h.store.CreateEntry(r.Context(), e); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.Created(w, e)
	return nil
}

func (h *Entries) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEntriesRead)
	if err != nil {
		return err
	}

	e, ok, err := h.find(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgEntryNotFound)
		return nil
	}
	response.JSON(w, e)
	return nil
}

func (h *Entries) Update(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEntriesWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgEntryNotFound)
		return nil
	}
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	upd := models.EntryUpdate{
		ProjectName: req.ProjectName,
		Description: req.Description,
		Environment: req.Environment,
		FileName:    req.FileName,
		Notes:       req.Notes,
	}
	if req.ExpiresAt != nil {
		upd.ExpiresAt, _ = parseTime(req.ExpiresAt)
		upd.ClearExpiry = upd.ExpiresAt == nil
	}
	if len(req.Value) > 0 && string(req.Value) != "null" {
		ciphertext, ok, err := h.encryptValue(req.Value)
		if err != nil {
			return fmt.Errorf("encrypt value: %w", err)
		}
		if !ok {
			response.Error(w, http.StatusBadRequest, msgInvalidValue)
			return nil
		}
		upd.EncryptedValue = &ciphertext
	}

	e, err := h.store.UpdateEntry(r.Context(), id, p.OwnerID, upd)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEntryNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.JSON(w, e)
	return nil
}

func (h *Entries) Delete(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEntriesWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgEntryNotFound)
		return nil
	}
	err = h.store.DeleteEntry(r.Context(), id, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgEntryNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.JSON(w, deleted{ID: id})
	return nil
}

type revealedEntry struct {
	ID               uuid.UUID `json:"id"`
	KeyType          string    `json:"keyType"`
	Value            any       `json:"value"`
	EnvVarName       *string   `json:"envVarName"`
	FieldDefinitions []string  `json:"fieldDefinitions"`
	FileName         *string   `json:"fileName"`
}

// Reveal decrypts an entry's value. Group entries decode to an object, every
// other key type to a string.
func (h *Entries) Reveal(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeEntriesReveal)
	if err != nil {
		return err
	}

	e, ok, err := h.find(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgEntryNotFound)
		return nil
	}

	out := revealedEntry{
		ID:               e.ID,
		KeyType:          e.Category.KeyType,
		EnvVarName:       e.Category.EnvVarName,
		FieldDefinitions: e.Category.FieldDefinitions,
		FileName:         e.FileName,
	}
	if e.Category.KeyType == models.KeyTypeGroup {
		var group map[string]string
		if err := h.codec.DecryptJSON(e.EncryptedValue, &group); err != nil {
			return fmt.Errorf("decrypt entry: %w", err)
		}
		out.Value = group
	} else {
		value, err := h.codec.Decrypt(e.EncryptedValue)
		if err != nil {
			return fmt.Errorf("decrypt entry: %w", err)
		}
		out.Value = value
	}

	response.Sensitive(w, http.StatusOK, out)
	return nil
}

// find loads the entry named by the {id} route parameter. ok is false when it
// does not exist for userID.
func (h *Entries) find(r *http.Request, userID string) (*models.Entry, bool, error) {
	id, ok := pathID(r)
	if !ok {
		return nil, false, nil
	}
	e, err := h.store.GetEntry(r.Context(), id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get entry: %w", err)
	}
	return e, true, nil
}
