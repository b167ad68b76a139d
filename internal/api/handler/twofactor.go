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

const msgTwoFactorNotFound = "2FA token set not found"

// TwoFactor serves /api/v1/2fa.
type TwoFactor struct {
	gate  Gate
	store store.TwoFactorStore
	codec Codec
	stats Invalidator
}

func NewTwoFactor(gate Gate, s store.TwoFactorStore, codec Codec, stats Invalidator) *TwoFactor {
	return &TwoFactor{gate: gate, store: s, codec: codec, stats: stats}
}

type twoFactorRequest struct {
	Service   *string  `json:"service"`
	Label     *string  `json:"label"`
	Tokens    []string `json:"tokens"`
	UsedCount *int     `json:"usedCount"`
}

func (req *twoFactorRequest) validate() string {
	if req.Service != nil && (len(*req.Service) == 0 || len(*req.Service) > 255) {
		return "service must be between 1 and 255 characters"
	}
	if strPtrLen(req.Label) > 255 {
		return "label must be at most 255 characters"
	}
	if req.Tokens != nil {
		if len(req.Tokens) == 0 {
			return "At least one recovery token is required"
		}
		for _, t := range req.Tokens {
			if t == "" {
				return "Recovery tokens must not be empty"
			}
		}
	}
	if req.UsedCount != nil && *req.UsedCount < 0 {
		return "usedCount must not be negative"
	}
	return ""
}

func (h *TwoFactor) List(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeTwoFactorRead)
	if err != nil {
		return err
	}

	sets, err := h.store.ListTwoFactor(r.Context(), p.OwnerID, r.URL.Query().Get("search"))
	if err != nil {
		return fmt.Errorf("list 2fa sets: %w", err)
	}
	response.JSON(w, sets)
	return nil
}

func (h *TwoFactor) Create(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeTwoFactorWrite)
	if err != nil {
		return err
	}

	var req twoFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if req.Service == nil {
		response.Error(w, http.StatusBadRequest, "service is required")
		return nil
	}
	if req.Tokens == nil {
		req.Tokens = []string{}
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	ciphertext, err := h.codec.EncryptJSON(req.Tokens)
	if err != nil {
		return fmt.Errorf("encrypt tokens: %w", err)
	}
	now := time.Now().UTC()
	set := &models.TwoFactorSet{
		ID:              uuid.New(),
		UserID:          p.OwnerID,
		Service:         *req.Service,
		Label:           nonEmpty(req.Label),
		EncryptedTokens: ciphertext,
		TotalCount:      len(req.Tokens),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.store.CreateTwoFactor(r.Context(), set); err != nil {
		return fmt.Errorf("create 2fa set: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.Created(w, set)
	return nil
}

func (h *TwoFactor) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeTwoFactorRead)
	if err != nil {
		return err
	}

	set, ok, err := h.find(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgTwoFactorNotFound)
		return nil
	}
	response.JSON(w, set)
	return nil
}

func (h *TwoFactor) Update(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeTwoFactorWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgTwoFactorNotFound)
		return nil
	}
	var req twoFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	upd := models.TwoFactorUpdate{
		Service:   req.Service,
		Label:     req.Label,
		UsedCount: req.UsedCount,
	}
	if req.Tokens != nil {
		ciphertext, err := h.codec.EncryptJSON(req.Tokens)
		if err != nil {
			return fmt.Errorf("encrypt tokens: %w", err)
		}
		total := len(req.Tokens)
		upd.EncryptedTokens = &ciphertext
		upd.TotalCount = &total
	}

	set, err := h.store.UpdateTwoFactor(r.Context(), id, p.OwnerID, upd)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgTwoFactorNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update 2fa set: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.JSON(w, set)
	return nil
}

func (h *TwoFactor) Delete(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeTwoFactorWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgTwoFactorNotFound)
		return nil
	}
	err = h.store.DeleteTwoFactor(r.Context(), id, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgTwoFactorNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete 2fa set: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.JSON(w, deleted{ID: id})
	return nil
}

type revealedTwoFactor struct {
	ID      uuid.UUID `json:"id"`
	Service string    `json:"service"`
	Tokens  []string  `json:"tokens"`
}

func (h *TwoFactor) Reveal(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeTwoFactorReveal)
	if err != nil {
		return err
	}

	set, ok, err := h.find(r, p.OwnerID)
	if err != nil {
		return err
	}
	if !ok {
		response.Error(w, http.StatusNotFound, msgTwoFactorNotFound)
		return nil
	}

	var tokens []string
	if err := h.codec.DecryptJSON(set.EncryptedTokens, &tokens); err != nil {
		return fmt.Errorf("decrypt tokens: %w", err)
	}
	response.Sensitive(w, http.StatusOK, revealedTwoFactor{ID: set.ID, Service: set.Service, Tokens: tokens})
	return nil
}

func (h *TwoFactor) find(r *http.Request, userID string) (*models.TwoFactorSet, bool, error) {
	id, ok := pathID(r)
	if !ok {
		return nil, false, nil
	}
	set, err := h.store.GetTwoFactor(r.Context(), id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get 2fa set: %w", err)
	}
	return set, true, nil
}
