package models

import (
	"time"

	"github.com/google/uuid"
)

// Key types decide how an entry's secret value is encoded before encryption.
const (
	KeyTypeSimple = "simple"
	KeyTypeGroup  = "group"
	KeyTypeSSH    = "ssh"
	KeyTypeJSON   = "json"
)

// ValidKeyType reports whether t is a known key type.
func ValidKeyType(t string) bool {
	switch t {
	case KeyTypeSimple, KeyTypeGroup, KeyTypeSSH, KeyTypeJSON:
		return true
	}
	return false
}

// Category groups entries of one provider, e.g. "OpenAI" or "AWS".
type Category struct {
	ID               uuid.UUID `db:"id"                json:"id"`
	UserID           string    `db:"user_id"           json:"userId"`
	Name             string    `db:"name"              json:"name"`
	Description      *string   `db:"description"       json:"description"`
	IconURL          *string   `db:"icon_url"          json:"iconUrl"`
	IconSlug         *string   `db:"icon_slug"         json:"iconSlug"`
	Color            *string   `db:"color"             json:"color"`
	KeyType          string    `db:"key_type"          json:"keyType"`
	EnvVarName       *string   `db:"env_var_name"      json:"envVarName"`
	FieldDefinitions []string  `db:"field_definitions" json:"fieldDefinitions"`
	CreatedAt        time.Time `db:"created_at"        json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updatedAt"`

	// EntryCount is computed by list queries.
	EntryCount *int `db:"-" json:"entryCount,omitempty"`
}

// CategoryUpdate carries the fields of a partial category update; nil fields
// are left unchanged.
type CategoryUpdate struct {
	Name             *string
	Description      *string
	IconURL          *string
	IconSlug         *string
	Color            *string
	EnvVarName       *string
	FieldDefinitions []string
}
