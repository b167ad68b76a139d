package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/session"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockKeyStore struct {
	mu       sync.Mutex
	keys     map[string]*models.AccessKey
	findErr  error
	touchErr error
	touched  chan uuid.UUID
}

func newMockKeyStore() *mockKeyStore {
	return &mockKeyStore{keys: map[string]*models.AccessKey{}, touched: make(chan uuid.UUID, 8)}
}

func (m *mockKeyStore) add(t *testing.T, expiresAt *time.Time, scopes ...string) string {
	t.Helper()
	k, err := accesskey.Generate()
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[k.Hash] = &models.AccessKey{
		ID: uuid.New(), UserID: "user_1", Name: "ci", KeyHash: k.Hash,
		KeyPrefix: k.DisplayPrefix, Scopes: scopes, ExpiresAt: expiresAt,
	}
	return k.Token
}

func (m *mockKeyStore) FindActiveAccessKey(_ context.Context, hash string, now time.Time) (*models.AccessKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	k, ok := m.keys[hash]
	if !ok || k.Expired(now) {
		return nil, store.ErrNotFound
	}
	return k, nil
}

func (m *mockKeyStore) TouchAccessKey(_ context.Context, id uuid.UUID, _ time.Time) error {
	m.touched <- id
	return m.touchErr
}

type mockSessions struct {
	sess *models.Session
	err  error
}

func (m *mockSessions) Resolve(context.Context, *http.Request) (*models.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.sess == nil {
		return nil, session.ErrNoSession
	}
	return m.sess, nil
}

func bearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func assertAuthError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var ae *Error
	require.True(t, errors.As(err, &ae), "expected *auth.Error, got %v", err)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, msg, ae.Message)
}

// --- Tests ---

func TestAuthenticate_NoCredentials(t *testing.T) {
	g := NewGate(newMockKeyStore(), &mockSessions{}, nil)

	_, err := g.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	assertAuthError(t, err, http.StatusUnauthorized, "Unauthorized")
}

func TestAuthenticate_UnknownAccessKey(t *testing.T) {
	g := NewGate(newMockKeyStore(), &mockSessions{}, nil)

	_, err := g.Authenticate(bearer("kagi_garbage"))
	assertAuthError(t, err, http.StatusUnauthorized, "Invalid or expired access key")
}

func TestAuthenticate_UnknownAccessKeyDoesNotFallBackToSession(t *testing.T) {
	g := NewGate(newMockKeyStore(), &mockSessions{sess: &models.Session{UserID: "user_1"}}, nil)

	_, err := g.Authenticate(bearer("kagi_garbage"))
	assertAuthError(t, err, http.StatusUnauthorized, "Invalid or expired access key")
}

func TestAuthenticate_ExpiredAccessKey(t *testing.T) {
	keys := newMockKeyStore()
	past := time.Now().Add(-time.Minute)
	token := keys.add(t, &past, "entries:read")
	g := NewGate(keys, &mockSessions{}, nil)

	_, err := g.Authenticate(bearer(token))
	assertAuthError(t, err, http.StatusUnauthorized, "Invalid or expired access key")
}

func TestAuthenticate_ExpiredRecordFromStoreRejected(t *testing.T) {
	keys := newMockKeyStore()
	future := time.Now().Add(time.Hour)
	token := keys.add(t, &future, "entries:read")
	g := NewGate(keys, &mockSessions{}, nil)
	g.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := g.Authenticate(bearer(token))
	assertAuthError(t, err, http.StatusUnauthorized, "Invalid or expired access key")
}

func TestAuthenticate_ValidAccessKey(t *testing.T) {
	keys := newMockKeyStore()
	token := keys.add(t, nil, "entries:read", "stats:read")
	g := NewGate(keys, &mockSessions{}, nil)

	p, err := g.Authenticate(bearer(token))
	require.NoError(t, err)
	assert.Equal(t, KindAccessKey, p.Kind)
	assert.Equal(t, "user_1", p.OwnerID)
	assert.Equal(t, accesskey.DisplayPrefix(token), p.KeyPrefix)
	assert.True(t, p.Scopes.Has(accesskey.ScopeStatsRead))

	select {
	case id := <-keys.touched:
		assert.Equal(t, p.KeyID, id)
	case <-time.After(time.Second):
		t.Fatal("last_used_at was not updated")
	}
}

func TestAuthenticate_BearerSchemeIsCaseSensitive(t *testing.T) {
	keys := newMockKeyStore()
	token := keys.add(t, nil, "entries:read")
	g := NewGate(keys, &mockSessions{}, nil)

	for _, scheme := range []string{"bearer", "BEARER", "Bearer:"} {
		t.Run(scheme, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", scheme+" "+token)
			_, err := g.Authenticate(r)
			assertAuthError(t, err, http.StatusUnauthorized, "Unauthorized")
		})
	}
}

func TestAuthenticate_MalformedSchemeFallsBackToSession(t *testing.T) {
	keys := newMockKeyStore()
	token := keys.add(t, nil, "entries:read")
	g := NewGate(keys, &mockSessions{sess: &models.Session{UserID: "user_2"}}, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer "+token)
	p, err := g.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, KindSession, p.Kind)
	assert.Equal(t, "user_2", p.OwnerID)
}

func TestAuthenticate_TouchFailureIgnored(t *testing.T) {
	keys := newMockKeyStore()
	keys.touchErr = errors.New("db down")
	token := keys.add(t, nil, "entries:read")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	g := NewGate(keys, &mockSessions{}, logger)

	p, err := g.Authenticate(bearer(token))
	require.NoError(t, err)
	assert.Equal(t, "user_1", p.OwnerID)
	<-keys.touched
}

func TestAuthenticate_NonAccessKeyBearerFallsThroughToSession(t *testing.T) {
	g := NewGate(newMockKeyStore(), &mockSessions{sess: &models.Session{UserID: "user_2"}}, nil)

	p, err := g.Authenticate(bearer("eyJhbGciOiJIUzI1NiJ9.payload.sig"))
	require.NoError(t, err)
	assert.Equal(t, KindSession, p.Kind)
	assert.Equal(t, "user_2", p.OwnerID)
	assert.Nil(t, p.Scopes)
}

func TestAuthenticate_StoreErrorsPropagate(t *testing.T) {
	keys := newMockKeyStore()
	keys.findErr = errors.New("connection reset")
	g := NewGate(keys, &mockSessions{err: errors.New("session store down")}, nil)

	_, err := g.Authenticate(bearer("kagi_anything"))
	require.Error(t, err)
	var ae *Error
	assert.False(t, errors.As(err, &ae))

	_, err = g.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
	assert.False(t, errors.As(err, &ae))
}

func TestRequire_MissingScope(t *testing.T) {
	keys := newMockKeyStore()
	token := keys.add(t, nil, "entries:read")
	g := NewGate(keys, &mockSessions{}, nil)

	_, err := g.Require(bearer(token), accesskey.ScopeEntriesReveal)
	assertAuthError(t, err, http.StatusForbidden, "Insufficient permissions: 'entries:reveal' scope required")

	p, err := g.Require(bearer(token), accesskey.ScopeEntriesRead)
	require.NoError(t, err)
	assert.Equal(t, "user_1", p.OwnerID)
}

func TestRequire_SessionUnrestricted(t *testing.T) {
	g := NewGate(newMockKeyStore(), &mockSessions{sess: &models.Session{UserID: "user_1"}}, nil)

	for _, scope := range accesskey.AllScopes {
		p, err := g.Require(httptest.NewRequest(http.MethodGet, "/", nil), scope)
		require.NoError(t, err, scope)
		assert.Equal(t, KindSession, p.Kind)
	}
}

func TestRequire_Unauthenticated(t *testing.T) {
	g := NewGate(newMockKeyStore(), &mockSessions{}, nil)

	_, err := g.Require(httptest.NewRequest(http.MethodGet, "/", nil), accesskey.ScopeStatsRead)
	assertAuthError(t, err, http.StatusUnauthorized, "Unauthorized")
}

func TestRequireSession(t *testing.T) {
	keys := newMockKeyStore()
	token := keys.add(t, nil, "entries:read")
	g := NewGate(keys, &mockSessions{sess: &models.Session{UserID: "user_1"}}, nil)

	_, err := g.RequireSession(bearer(token))
	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusForbidden, ae.Status)

	p, err := g.RequireSession(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, KindSession, p.Kind)
}

func TestPrincipal_AllowsUnknownKind(t *testing.T) {
	p := &Principal{}
	assert.False(t, p.Allows(accesskey.ScopeEntriesRead))
	assert.Equal(t, "unknown", p.Kind.String())
	assert.Equal(t, "session", KindSession.String())
	assert.Equal(t, "access_key", KindAccessKey.String())
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, "Unauthorized", Unauthorized("").Error())
	assert.Equal(t, "custom", Unauthorized("custom").Message)
	assert.Equal(t, http.StatusForbidden, Forbidden(accesskey.ScopeStatsRead).Status)
}
