package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
)

// Account serves owner-wide operations under /api/v1/account.
type Account struct {
	gate  Gate
	store store.AccountStore
	stats Invalidator
}

func NewAccount(gate Gate, s store.AccountStore, stats Invalidator) *Account {
	return &Account{gate: gate, store: s, stats: stats}
}

type wipeResponse struct {
	OK      bool               `json:"ok"`
	Deleted *models.WipeResult `json:"deleted"`
}

// DeleteData wipes every category, entry and 2FA set of the caller. Only a
// browser session may do this; access keys get 403 whatever their scopes.
func (h *Account) DeleteData(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.RequireSession(r)
	if err != nil {
		return err
	}

	res, err := h.store.WipeVaultData(r.Context(), p.OwnerID)
	if err != nil {
		return fmt.Errorf("wipe vault data: %w", err)
	}
	invalidateStats(r.Context(), h.stats, p.OwnerID)
	slog.Info("vault data wiped", "user_id", p.OwnerID,
		"categories", res.Categories, "entries", res.Entries, "two_factor_sets", res.TwoFactorSets)

	response.JSON(w, wipeResponse{OK: true, Deleted: res})
	return nil
}
