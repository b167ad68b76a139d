package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/cache"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

// Stats serves the dashboard summary. Results are cached per owner for ttl
// and dropped whenever the owner writes.
type Stats struct {
	gate  Gate
	store store.StatsStore
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewStats(gate Gate, s store.StatsStore, c cache.Cache, ttl time.Duration) *Stats {
	return &Stats{gate: gate, store: s, cache: c, ttl: ttl, now: time.Now}
}

func (h *Stats) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Require(r, accesskey.ScopeStatsRead)
	if err != nil {
		return err
	}

	ctx := r.Context()
	key := cache.StatsKey(p.OwnerID)

	if h.cache != nil {
		data, found, err := h.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("stats cache read failed", "user_id", p.OwnerID, "error", err)
		}
		if found {
			var cached models.Stats
			if err := json.Unmarshal(data, &cached); err == nil {
				response.JSON(w, &cached)
				return nil
			}
		}
	}

	stats, err := h.store.GetStats(ctx, p.OwnerID, h.now())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if h.cache != nil && h.ttl > 0 {
		if data, err := json.Marshal(stats); err == nil {
			if err := h.cache.Set(ctx, key, data, h.ttl); err != nil {
				slog.Warn("stats cache write failed", "user_id", p.OwnerID, "error", err)
			}
		}
	}

	response.JSON(w, stats)
	return nil
}
