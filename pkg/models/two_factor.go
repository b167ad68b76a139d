package models

import (
	"time"

	"github.com/google/uuid"
)

// TwoFactorSet stores the recovery codes of one service as an encrypted JSON
// array of strings.
type TwoFactorSet struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	UserID          string    `db:"user_id"          json:"userId"`
	Service         string    `db:"service"          json:"service"`
	Label           *string   `db:"label"            json:"label"`
	EncryptedTokens string    `db:"encrypted_tokens" json:"-"`
	TotalCount      int       `db:"total_count"      json:"totalCount"`
	UsedCount       int       `db:"used_count"       json:"usedCount"`
	CreatedAt       time.Time `db:"created_at"       json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updatedAt"`
}

// TwoFactorUpdate carries the fields of a partial update; nil fields are left
// unchanged.
type TwoFactorUpdate struct {
	Service         *string
	Label           *string
	EncryptedTokens *string
	TotalCount      *int
	UsedCount       *int
}
