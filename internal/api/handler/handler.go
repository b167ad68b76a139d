// Package handler implements the vault HTTP operations. Every handler is an
// mw.Handler: it authenticates through the Gate first and returns failures
// for the Authorization Wrapper to render.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/auth"
	"github.com/kiranshivaraju/kagi/internal/cache"
)

const maxBodyBytes = 1 << 20

// Gate is the authentication surface handlers depend on.
type Gate interface {
	Authenticate(r *http.Request) (*auth.Principal, error)
	Require(r *http.Request, scope accesskey.Scope) (*auth.Principal, error)
	RequireSession(r *http.Request) (*auth.Principal, error)
}

// Codec encrypts and decrypts secret values.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	EncryptJSON(v any) (string, error)
	DecryptJSON(ciphertext string, v any) error
}

// Invalidator drops cached values derived from an owner's records.
type Invalidator interface {
	Delete(ctx context.Context, key string) error
}

type deleted struct {
	ID uuid.UUID `json:"id"`
}

const msgInvalidJSON = "Invalid JSON body"

// decodeJSON reads at most maxBodyBytes of JSON into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// pathID parses the {id} route parameter. ok is false when it is not a UUID.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// parseTime parses an optional RFC3339 timestamp.
func parseTime(s *string) (*time.Time, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// invalidateStats drops the owner's cached dashboard stats. Failures only
// leave the cache stale until its TTL.
func invalidateStats(ctx context.Context, inv Invalidator, userID string) {
	if inv == nil {
		return
	}
	if err := inv.Delete(ctx, cache.StatsKey(userID)); err != nil {
		slog.Warn("failed to invalidate stats cache", "user_id", userID, "error", err)
	}
}

func strPtrLen(s *string) int {
	if s == nil {
		return 0
	}
	return len(*s)
}
