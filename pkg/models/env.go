package models

import (
	"time"

	"github.com/google/uuid"
)

// Env file types. A project holds at most one file of each type.
const (
	EnvFileTypeEnv         = "env"
	EnvFileTypeLocal       = "env.local"
	EnvFileTypeProduction  = "env.production"
	EnvFileTypeDevelopment = "env.development"
)

// ValidEnvFileType reports whether t is a known env file type.
func ValidEnvFileType(t string) bool {
	switch t {
	case EnvFileTypeEnv, EnvFileTypeLocal, EnvFileTypeProduction, EnvFileTypeDevelopment:
		return true
	}
	return false
}

// EnvProject groups the dotenv files of one application.
type EnvProject struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	UserID      string    `db:"user_id"     json:"userId"`
	Name        string    `db:"name"        json:"name"`
	Description *string   `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at"  json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updatedAt"`

	// FileCount is computed by list queries.
	FileCount *int `db:"-" json:"fileCount,omitempty"`
}

// EnvProjectUpdate carries a partial project update; nil fields are left
// unchanged and an empty Description clears it.
type EnvProjectUpdate struct {
	Name        *string
	Description *string
}

// EnvFile is one encrypted dotenv file. The content never leaves the store
// except through reveal.
type EnvFile struct {
	ID               uuid.UUID `db:"id"                json:"id"`
	ProjectID        uuid.UUID `db:"project_id"        json:"projectId"`
	UserID           string    `db:"user_id"           json:"userId"`
	FileType         string    `db:"file_type"         json:"fileType"`
	EncryptedContent string    `db:"encrypted_content" json:"-"`
	CreatedAt        time.Time `db:"created_at"        json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updatedAt"`
}
