package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessKey is the stored record of an issued bearer access key.
// The raw key is shown once at creation; only its SHA-256 hash is stored.
type AccessKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	UserID     string     `db:"user_id"      json:"-"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"keyPrefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"lastUsedAt"`
	ExpiresAt  *time.Time `db:"expires_at"   json:"expiresAt"`
	CreatedAt  time.Time  `db:"created_at"   json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"-"`
}

// Expired reports whether the key has an expiry at or before now.
func (k *AccessKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
