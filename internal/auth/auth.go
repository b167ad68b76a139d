// Package auth resolves the caller of a request to a Principal, either from a
// bearer access key or from a browser session, and enforces access-key scopes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/session"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

const touchTimeout = 5 * time.Second

// Error is an authentication or authorization failure. Status is 401 when no
// valid credential was presented and 403 when a scope is missing.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unauthorized returns a 401 error. An empty message defaults to "Unauthorized".
func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

// Forbidden returns a 403 error naming the missing scope.
func Forbidden(scope accesskey.Scope) *Error {
	return &Error{
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("Insufficient permissions: '%s' scope required", scope),
	}
}

const msgInvalidAccessKey = "Invalid or expired access key"

// Kind tells which credential produced a Principal.
type Kind int

const (
	KindSession Kind = iota + 1
	KindAccessKey
)

func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindAccessKey:
		return "access_key"
	}
	return "unknown"
}

// Principal is the resolved caller. Scopes, KeyID and KeyPrefix are set only
// for KindAccessKey.
type Principal struct {
	Kind      Kind
	OwnerID   string
	KeyID     uuid.UUID
	KeyPrefix string
	Scopes    accesskey.ScopeSet
}

// Allows reports whether the principal may perform an operation requiring
// scope. Sessions are never scope-restricted.
func (p *Principal) Allows(scope accesskey.Scope) bool {
	switch p.Kind {
	case KindSession:
		return true
	case KindAccessKey:
		return p.Scopes.Has(scope)
	}
	return false
}

// KeyStore is the slice of the access key store the Gate needs.
type KeyStore interface {
	FindActiveAccessKey(ctx context.Context, hash string, now time.Time) (*models.AccessKey, error)
	TouchAccessKey(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SessionResolver resolves the browser session bound to a request.
type SessionResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*models.Session, error)
}

// Gate authenticates requests.
type Gate struct {
	keys     KeyStore
	sessions SessionResolver
	now      func() time.Time
	logger   *slog.Logger
}

// NewGate creates a new Gate.
func NewGate(keys KeyStore, sessions SessionResolver, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{keys: keys, sessions: sessions, now: time.Now, logger: logger}
}

// Authenticate resolves the caller. A bearer token with the access key prefix
// is checked against stored key hashes; anything else falls through to the
// session cookie. Failures are *Error values; store failures are returned
// as-is.
func (g *Gate) Authenticate(r *http.Request) (*Principal, error) {
	ctx := r.Context()

	if token := extractBearerToken(r); accesskey.IsAccessKey(token) {
		return g.authenticateAccessKey(ctx, token)
	}

	sess, err := g.sessions.Resolve(ctx, r)
	if errors.Is(err, session.ErrNoSession) {
		return nil, Unauthorized("")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return &Principal{Kind: KindSession, OwnerID: sess.UserID}, nil
}

func (g *Gate) authenticateAccessKey(ctx context.Context, token string) (*Principal, error) {
	now := g.now()
	key, err := g.keys.FindActiveAccessKey(ctx, accesskey.Hash(token), now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Unauthorized(msgInvalidAccessKey)
	}
	if err != nil {
		return nil, fmt.Errorf("find access key: %w", err)
	}
	// Expired keys are rejected even if the store returned one.
	if key.Expired(now) {
		return nil, Unauthorized(msgInvalidAccessKey)
	}

	g.touch(ctx, key.ID, now)

	return &Principal{
		Kind:      KindAccessKey,
		OwnerID:   key.UserID,
		KeyID:     key.ID,
		KeyPrefix: key.KeyPrefix,
		Scopes:    accesskey.NewScopeSet(key.Scopes),
	}, nil
}

// touch records key use in the background. Its outcome never reaches the
// request.
func (g *Gate) touch(ctx context.Context, id uuid.UUID, at time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
	go func() {
		defer cancel()
		if err := g.keys.TouchAccessKey(ctx, id, at); err != nil {
			g.logger.Warn("failed to update access key last_used_at",
				"key_id", id, "error", err)
		}
	}()
}

// Require authenticates the request and checks that the caller holds scope.
func (g *Gate) Require(r *http.Request, scope accesskey.Scope) (*Principal, error) {
	p, err := g.Authenticate(r)
	if err != nil {
		return nil, err
	}
	if !p.Allows(scope) {
		return nil, Forbidden(scope)
	}
	return p, nil
}

// RequireSession authenticates the request and rejects access-key callers.
// Access keys cannot manage access keys.
func (g *Gate) RequireSession(r *http.Request) (*Principal, error) {
	p, err := g.Authenticate(r)
	if err != nil {
		return nil, err
	}
	if p.Kind != KindSession {
		return nil, &Error{Status: http.StatusForbidden, Message: "Insufficient permissions: session required"}
	}
	return p, nil
}

// extractBearerToken returns the credential of an "Authorization: Bearer"
// header. The scheme is matched exactly.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
