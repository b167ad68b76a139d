package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock Cache ---

type mapCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *mapCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

func (c *mapCache) Ping(context.Context) error { return nil }
func (c *mapCache) Close() error               { return nil }

func TestStats_CachesPerOwner(t *testing.T) {
	st := newMemStore()
	st.stats = &models.Stats{
		TotalCategories: 2,
		KeyTypes:        []models.KeyTypeCount{{Type: "simple", Count: 2}},
	}
	c := newMapCache()
	h := NewStats(keyGate(accesskey.ScopeStatsRead), st, c, 30*time.Second)

	for i := 0; i < 3; i++ {
		rec := do(h.Get, http.MethodGet, "/stats", "/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got models.Stats
		decodeData(t, rec, &got)
		assert.Equal(t, 2, got.TotalCategories)
		assert.Equal(t, []models.KeyTypeCount{{Type: "simple", Count: 2}}, got.KeyTypes)
	}
	assert.Equal(t, 1, st.statsCalls)
	assert.Equal(t, 30*time.Second, c.ttls["stats:"+ownerID])
}

func TestStats_InvalidatedByWrites(t *testing.T) {
	st := newMemStore()
	st.stats = &models.Stats{}
	c := newMapCache()
	stats := NewStats(sessionGate(), st, c, time.Minute)
	categories := NewCategories(sessionGate(), st, c)

	do(stats.Get, http.MethodGet, "/stats", "/stats", nil)
	do(categories.Create, http.MethodPost, "/categories", "/categories", map[string]any{"name": "SSH", "keyType": "ssh"})
	do(stats.Get, http.MethodGet, "/stats", "/stats", nil)

	assert.Equal(t, 2, st.statsCalls)
}

func TestStats_CacheFailureFallsThrough(t *testing.T) {
	st := newMemStore()
	st.stats = &models.Stats{TotalEntries: 7}
	c := newMapCache()
	c.getErr = errors.New("redis down")
	h := NewStats(sessionGate(), st, c, time.Minute)

	rec := do(h.Get, http.MethodGet, "/stats", "/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Stats
	decodeData(t, rec, &got)
	assert.Equal(t, 7, got.TotalEntries)
}

func TestStats_RequiresScope(t *testing.T) {
	h := NewStats(keyGate(accesskey.ScopeEntriesRead), newMemStore(), nil, time.Minute)

	rec := do(h.Get, http.MethodGet, "/stats", "/stats", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions: 'stats:read' scope required", errorMessage(t, rec))
}
