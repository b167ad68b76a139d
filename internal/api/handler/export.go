package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
	"gopkg.in/yaml.v3"
)

const exportVersion = "1"

// ExportStore is the persistence an export reads from.
type ExportStore interface {
	store.UserStore
	store.CategoryStore
	store.EntryStore
	store.TwoFactorStore
}

// Export serves a metadata-only backup of the caller's vault. Secret values
// and recovery codes are never included.
type Export struct {
	gate  Gate
	store ExportStore
	now   func() time.Time
}

func NewExport(gate Gate, s ExportStore) *Export {
	return &Export{gate: gate, store: s, now: time.Now}
}

type exportDocument struct {
	ExportedAt    time.Time         `json:"exportedAt"    yaml:"exportedAt"`
	Version       string            `json:"version"       yaml:"version"`
	User          exportUser        `json:"user"          yaml:"user"`
	Categories    []exportCategory  `json:"categories"    yaml:"categories"`
	TwoFactorSets []exportTwoFactor `json:"twoFactorSets" yaml:"twoFactorSets"`
}

type exportUser struct {
	Name  string `json:"name"  yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

type exportCategory struct {
	Name             string        `json:"name"             yaml:"name"`
	Description      *string       `json:"description"      yaml:"description"`
	KeyType          string        `json:"keyType"          yaml:"keyType"`
	EnvVarName       *string       `json:"envVarName"       yaml:"envVarName"`
	FieldDefinitions []string      `json:"fieldDefinitions" yaml:"fieldDefinitions"`
	IconSlug         *string       `json:"iconSlug"         yaml:"iconSlug"`
	CreatedAt        time.Time     `json:"createdAt"        yaml:"createdAt"`
	Entries          []exportEntry `json:"entries"          yaml:"entries"`
}

type exportEntry struct {
	ProjectName string     `json:"projectName" yaml:"projectName"`
	Description *string    `json:"description" yaml:"description"`
	Environment string     `json:"environment" yaml:"environment"`
	FileName    *string    `json:"fileName"    yaml:"fileName"`
	Notes       *string    `json:"notes"       yaml:"notes"`
	ExpiresAt   *time.Time `json:"expiresAt"   yaml:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"   yaml:"createdAt"`
}

type exportTwoFactor struct {
	Service    string    `json:"service"    yaml:"service"`
	Label      *string   `json:"label"      yaml:"label"`
	TotalCount int       `json:"totalCount" yaml:"totalCount"`
	UsedCount  int       `json:"usedCount"  yaml:"usedCount"`
	CreatedAt  time.Time `json:"createdAt"  yaml:"createdAt"`
}

// Get writes the export as a JSON attachment, or YAML with ?format=yaml.
func (h *Export) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeExportRead)
	if err != nil {
		return err
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "yaml" {
		response.Error(w, http.StatusBadRequest, "format must be json or yaml")
		return nil
	}

	doc, err := h.build(r, p.OwnerID)
	if err != nil {
		return err
	}

	if format == "yaml" {
		body, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		writeAttachment(w, "application/yaml", h.filename("yaml"), body)
		return nil
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	writeAttachment(w, "application/json", h.filename("json"), body)
	return nil
}

func (h *Export) build(r *http.Request, userID string) (*exportDocument, error) {
	ctx := r.Context()

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	categories, err := h.store.ListCategories(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	entries, err := h.store.ListEntries(ctx, models.EntryFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	sets, err := h.store.ListTwoFactor(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("list 2fa sets: %w", err)
	}

	byCategory := make(map[uuid.UUID][]exportEntry)
	for _, e := range entries {
		byCategory[e.CategoryID] = append(byCategory[e.CategoryID], exportEntry{
			ProjectName: e.ProjectName,
			Description: e.Description,
			Environment: e.Environment,
			FileName:    e.FileName,
			Notes:       e.Notes,
			ExpiresAt:   e.ExpiresAt,
			CreatedAt:   e.CreatedAt,
		})
	}

	doc := &exportDocument{
		ExportedAt:    h.now().UTC(),
		Version:       exportVersion,
		User:          exportUser{Name: user.Name, Email: user.Email},
		Categories:    make([]exportCategory, 0, len(categories)),
		TwoFactorSets: make([]exportTwoFactor, 0, len(sets)),
	}
	for _, c := range categories {
		catEntries := byCategory[c.ID]
		if catEntries == nil {
			catEntries = []exportEntry{}
		}
		doc.Categories = append(doc.Categories, exportCategory{
			Name:             c.Name,
			Description:      c.Description,
			KeyType:          c.KeyType,
			EnvVarName:       c.EnvVarName,
			FieldDefinitions: c.FieldDefinitions,
			IconSlug:         c.IconSlug,
			CreatedAt:        c.CreatedAt,
			Entries:          catEntries,
		})
	}
	for _, s := range sets {
		doc.TwoFactorSets = append(doc.TwoFactorSets, exportTwoFactor{
			Service:    s.Service,
			Label:      s.Label,
			TotalCount: s.TotalCount,
			UsedCount:  s.UsedCount,
			CreatedAt:  s.CreatedAt,
		})
	}
	return doc, nil
}

func (h *Export) filename(ext string) string {
	return fmt.Sprintf("kagi-export-%s.%s", h.now().UTC().Format(time.DateOnly), ext)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
