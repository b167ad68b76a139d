package models

import (
	"time"

	"github.com/google/uuid"
)

// Environments an entry may belong to.
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvLocal       = "local"
)

// ValidEnvironment reports whether env is a known environment.
func ValidEnvironment(env string) bool {
	switch env {
	case EnvProduction, EnvStaging, EnvDevelopment, EnvLocal:
		return true
	}
	return false
}

// Entry is one stored secret. EncryptedValue holds codec ciphertext and is
// never serialized.
type Entry struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	CategoryID     uuid.UUID  `db:"category_id"     json:"categoryId"`
	ProjectName    string     `db:"project_name"    json:"projectName"`
	Description    *string    `db:"description"     json:"description"`
	Environment    string     `db:"environment"     json:"environment"`
	EncryptedValue string     `db:"encrypted_value" json:"-"`
	FileName       *string    `db:"file_name"       json:"fileName"`
	Notes          *string    `db:"notes"           json:"notes"`
	CreatedAt      time.Time  `db:"created_at"      json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updatedAt"`
	ExpiresAt      *time.Time `db:"expires_at"      json:"expiresAt"`

	Category *CategorySummary `db:"-" json:"category,omitempty"`
}

// CategorySummary is the slice of a category embedded in entry listings.
type CategorySummary struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	KeyType          string    `json:"keyType"`
	EnvVarName       *string   `json:"envVarName"`
	FieldDefinitions []string  `json:"fieldDefinitions"`
	IconSlug         *string   `json:"iconSlug"`
	IconURL          *string   `json:"iconUrl"`
	Color            *string   `json:"color"`
}

// EntryFilter narrows entry listings to one owner.
type EntryFilter struct {
	UserID     string
	CategoryID *uuid.UUID
	Search     string
}

// EntryUpdate carries the fields of a partial entry update; nil fields are
// left unchanged.
type EntryUpdate struct {
	ProjectName    *string
	Description    *string
	Environment    *string
	EncryptedValue *string
	FileName       *string
	Notes          *string
	ExpiresAt      *time.Time
	ClearExpiry    bool
}
