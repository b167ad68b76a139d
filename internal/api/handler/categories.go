package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

const msgCategoryNotFound = "Category not found"

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Categories serves /api/v1/categories.
type Categories struct {
	gate  Gate
	store store.CategoryStore
	stats Invalidator
}

func NewCategories(gate Gate, s store.CategoryStore, stats Invalidator) *Categories {
	return &Categories{gate: gate, store: s, stats: stats}
}

type categoryRequest struct {
	Name             *string  `json:"name"`
	Description      *string  `json:"description"`
	IconURL          *string  `json:"iconUrl"`
	IconSlug         *string  `json:"iconSlug"`
	Color            *string  `json:"color"`
	KeyType          string   `json:"keyType"`
	EnvVarName       *string  `json:"envVarName"`
	FieldDefinitions []string `json:"fieldDefinitions"`
}

// validate checks fields shared by create and update. Empty optional strings
// are allowed and mean "unset".
func (req *categoryRequest) validate() string {
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		return "name must be between 1 and 255 characters"
	}
	if strPtrLen(req.Description) > 1000 {
		return "description must be at most 1000 characters"
	}
	if req.IconURL != nil && *req.IconURL != "" {
		u, err := url.ParseRequestURI(*req.IconURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "iconUrl must be a valid URL"
		}
	}
	if strPtrLen(req.IconSlug) > 50 {
		return "iconSlug must be at most 50 characters"
	}
	if req.Color != nil && *req.Color != "" && !colorPattern.MatchString(*req.Color) {
		return "color must be a hex color like #1a2b3c"
	}
	if strPtrLen(req.EnvVarName) > 255 {
		return "envVarName must be at most 255 characters"
	}
	for _, f := range req.FieldDefinitions {
		if f == "" {
			return "fieldDefinitions must not contain empty names"
		}
	}
	return ""
}

func (h *Categories) List(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeCategoriesRead)
	if err != nil {
		return err
	}

	categories, err := h.store.ListCategories(r.Context(), p.OwnerID, r.URL.Query().Get("search"))
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	response.JSON(w, categories)
	return nil
}

func (h *Categories) Create(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeCategoriesWrite)
	if err != nil {
		return err
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if req.Name == nil {
		response.Error(w, http.StatusBadRequest, "name is required")
		return nil
	}
	if !models.ValidKeyType(req.KeyType) {
		response.Error(w, http.StatusBadRequest, "keyType must be one of simple, group, ssh, json")
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}
	if req.KeyType == models.KeyTypeSimple && strPtrLen(req.EnvVarName) == 0 {
		response.Error(w, http.StatusBadRequest, "envVarName is required for simple key type")
		return nil
	}
	if req.KeyType == models.KeyTypeGroup && len(req.FieldDefinitions) == 0 {
		response.Error(w, http.StatusBadRequest, "fieldDefinitions are required for group key type")
		return nil
	}

	now := time.Now().UTC()
	c := &models.Category{
		ID:               uuid.New(),
		UserID:           p.OwnerID,
		Name:             *req.Name,
		Description:      nonEmpty(req.Description),
		IconURL:          nonEmpty(req.IconURL),
		IconSlug:         nonEmpty(req.IconSlug),
		Color:            nonEmpty(req.Color),
		KeyType:          req.KeyType,
		EnvVarName:       nonEmpty(req.EnvVarName),
		FieldDefinitions: req.FieldDefinitions,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.store.CreateCategory(r.Context(), c); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.Created(w, c)
	return nil
}

func (h *Categories) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeCategoriesRead)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgCategoryNotFound)
		return nil
	}
	c, err := h.store.GetCategory(r.Context(), id, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgCategoryNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	response.JSON(w, c)
	return nil
}

func (h *Categories) Update(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeCategoriesWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgCategoryNotFound)
		return nil
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgInvalidJSON)
		return nil
	}
	if req.KeyType != "" {
		response.Error(w, http.StatusBadRequest, "keyType cannot be changed")
		return nil
	}
	if msg := req.validate(); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return nil
	}

	c, err := h.store.UpdateCategory(r.Context(), id, p.OwnerID, models.CategoryUpdate{
		Name:             req.Name,
		Description:      req.Description,
		IconURL:          req.IconURL,
		IconSlug:         req.IconSlug,
		Color:            req.Color,
		EnvVarName:       req.EnvVarName,
		FieldDefinitions: req.FieldDefinitions,
	})
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgCategoryNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	response.JSON(w, c)
	return nil
}

func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeCategoriesWrite)
	if err != nil {
		return err
	}

	id, ok := pathID(r)
	if !ok {
		response.Error(w, http.StatusNotFound, msgCategoryNotFound)
		return nil
	}
	err = h.store.DeleteCategory(r.Context(), id, p.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, msgCategoryNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)

	response.JSON(w, deleted{ID: id})
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
