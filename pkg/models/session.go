package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a browser login. Deleting the row revokes it.
type Session struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Token     string    `db:"token"      json:"-"`
	UserID    string    `db:"user_id"    json:"userId"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
