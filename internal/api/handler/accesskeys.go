package handler

import (
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

const msgAccessKeyNotFound = "Access key not found"

// AccessKeys serves /api/v1/access-keys. Every route needs a browser
// session: an access key cannot list, create or revoke access keys, whatever
// scopes it holds, and there is no scope that grants key management.
type AccessKeys struct {
	gate  Gate
	store store.AccessKeyStore
}

func NewAccessKeys(gate Gate, s store.AccessKeyStore) *AccessKeys {
	return &AccessKeys{gate: gate, store: s}
}

type accessKeyRequest struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expiresAt"`
}

// createdAccessKey is the only response that ever carries the raw key.
type createdAccessKey struct {
	*models.AccessKey
	Key string `json:"key"`
}

func (h *AccessKeys) List(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.RequireSession(r)
	if err != nil {
		return err
	}

	keys, err := h.store.ListAccessKeys(r.Context(), p.OwnerID)
	if err != nil {
		return fmt.Errorf("list access keys: %w", err)
	}
	response.JSON(w, keys)
	return nil
}

func (h *AccessKeys) Create(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.RequireSession(r)
	if err != nil {
		return err
	}

	var req accessKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if len(req.Name) == 0 || len(req.Name) > 255 {
		response.Error(w, http.StatusBadRequest, "name must be between 1 and 255 characters")
		return nil
	}
	scopes, err := accesskey.ParseScopes(req.Scopes)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return nil
	}
	expiresAt, ok := parseTime(req.ExpiresAt)
	if !ok {
		response.Error(w, http.StatusBadRequest, "expiresAt must be an RFC3339 timestamp")
		return nil
	}

	key, err := accesskey.Generate()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec := &models.AccessKey{
		ID:        uuid.New(),
		UserID:    p.OwnerID,
		Name:      req.Name,
		KeyHash:   key.Hash,
		KeyPrefix: key.DisplayPrefix,
		Scopes:    accesskey.Strings(scopes),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateAccessKey(r.Context(), rec); err != nil {
		return fmt.Errorf("create access key: %w", err)
	}

	response.Sensitive(w, http.StatusCreated, createdAccessKey{AccessKey: rec, Key: key.Token})
	return nil
}

func (h *AccessKeys) Delete(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.RequireSession(r)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgAccessKeyNotFound)
		return nil
	}
	err = h.store.DeleteAccessKey(r.Context(), id, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgAccessKeyNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}

	response.JSON(w, deleted{ID: id})
	return nil
}
