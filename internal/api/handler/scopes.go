package handler

import (
	"net/http"

	"github.com/kiranshivaraju/kagi/internal/accesskey"
	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/auth"
)

// Scopes lists the closed scope set and what the calling credential holds.
type Scopes struct {
	gate Gate
}

func NewScopes(gate Gate) *Scopes {
	return &Scopes{gate: gate}
}

type scopeInfo struct {
	Scope       accesskey.Scope `json:"scope"`
	Description string          `json:"description"`
}

type scopesResponse struct {
	Scopes     []scopeInfo `json:"scopes"`
	Credential string      `json:"credential"`
	// Granted is nil for sessions, which are not scope-restricted.
	Granted   []accesskey.Scope `json:"granted"`
	KeyPrefix string            `json:"keyPrefix,omitempty"`
}

func (h *Scopes) List(w http.ResponseWriter, r *http.Request) error {
	p, err := h.gate.Authenticate(r)
	if err != nil {
		return err
	}

	out := scopesResponse{
		Scopes:     make([]scopeInfo, 0, len(accesskey.AllScopes)),
		Credential: p.Kind.String(),
	}
	for _, s := range accesskey.AllScopes {
		out.Scopes = append(out.Scopes, scopeInfo{Scope: s, Description: s.Description()})
	}
	if p.Kind == auth.KindAccessKey {
		out.Granted = p.Scopes.Sorted()
		out.KeyPrefix = p.KeyPrefix
	}

	response.JSON(w, out)
	return nil
}
