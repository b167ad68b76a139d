package handler

import (
	"net/http"
	"testing"

	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopes_AccessKeyCaller(t *testing.T) {
	h := NewScopes(keyGate(accesskey.ScopeStatsRead, accesskey.ScopeCategoriesRead))

	rec := do(h.List, http.MethodGet, "/scopes", "/scopes", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got scopesResponse
	decodeData(t, rec, &got)
	assert.Len(t, got.Scopes, len(accesskey.AllScopes))
	assert.Equal(t, "access_key", got.Credential)
	assert.Equal(t, []accesskey.Scope{accesskey.ScopeCategoriesRead, accesskey.ScopeStatsRead}, got.Granted)
	assert.Equal(t, "kagi_abcdefgh", got.KeyPrefix)
}

func TestScopes_SessionCaller(t *testing.T) {
	h := NewScopes(sessionGate())

	rec := do(h.List, http.MethodGet, "/scopes", "/scopes", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got scopesResponse
	decodeData(t, rec, &got)
	assert.Equal(t, "session", got.Credential)
	assert.Nil(t, got.Granted)
	assert.Equal(t, "Decrypt and retrieve plaintext secret values", got.Scopes[4].Description)
}

func TestScopes_Unauthenticated(t *testing.T) {
	rec := do(NewScopes(fakeGate{}).List, http.MethodGet, "/scopes", "/scopes", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
