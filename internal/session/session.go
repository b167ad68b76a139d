// Package session resolves browser sessions. The session cookie carries an
// HS256 token whose sid claim names a row in the sessions table; deleting the
// row revokes the session regardless of the token's own expiry.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/config"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
	"golang.org/x/crypto/hkdf"
)

// ErrNoSession means the request carries no valid session.
var ErrNoSession = errors.New("no valid session")

var signingKeyInfo = []byte("kagi.session.v1")

type claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Issued is a freshly created session and the cookie value that carries it.
type Issued struct {
	Session *models.Session
	Cookie  string
}

// Manager issues, resolves and revokes sessions.
type Manager struct {
	store      store.SessionStore
	cookieName string
	ttl        time.Duration
	signingKey []byte
	now        func() time.Time
}

// NewManager derives the cookie signing key from cfg.Secret.
func NewManager(st store.SessionStore, cfg config.SessionConfig) (*Manager, error) {
	key, err := deriveSigningKey([]byte(cfg.Secret))
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:      st,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		signingKey: key,
		now:        time.Now,
	}, nil
}

func deriveSigningKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, signingKeyInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive session signing key: %w", err)
	}
	return key, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Issue creates a session row for userID and returns the signed cookie value.
func (m *Manager) Issue(ctx context.Context, userID string) (*Issued, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := m.now().UTC().Truncate(time.Microsecond)
	sess := &models.Session{
		ID:        uuid.New(),
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		SessionID: sess.Token,
	})
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign session cookie: %w", err)
	}

	return &Issued{Session: sess, Cookie: signed}, nil
}

// Cookie builds the HTTP cookie for an issued session.
func (m *Manager) Cookie(issued *Issued) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    issued.Cookie,
		Path:     "/",
		Expires:  issued.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Resolve returns the active session bound to the request's cookie. It
// returns ErrNoSession when the cookie is absent, forged, expired or revoked.
// Other errors come from the store.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*models.Session, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}

	var cl claims
	_, err = jwt.ParseWithClaims(c.Value, &cl, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || cl.SessionID == "" {
		return nil, ErrNoSession
	}

	sess, err := m.store.FindActiveSession(ctx, cl.SessionID, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Revoke deletes the session with the given token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if err := m.store.DeleteSession(ctx, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoSession
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
