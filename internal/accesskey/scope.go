package accesskey

import (
	"errors"
	"fmt"
)

// Scope names a resource-action permission an access key may carry.
type Scope string

const (
	ScopeCategoriesRead  Scope = "categories:read"
	ScopeCategoriesWrite Scope = "categories:write"
	ScopeEntriesRead     Scope = "entries:read"
	ScopeEntriesWrite    Scope = "entries:write"
	ScopeEntriesReveal   Scope = "entries:reveal"
	ScopeTwoFactorRead   Scope = "2fa:read"
	ScopeTwoFactorWrite  Scope = "2fa:write"
	ScopeTwoFactorReveal Scope = "2fa:reveal"
	ScopeStatsRead       Scope = "stats:read"
	ScopeExportRead      Scope = "export:read"
	ScopeEnvsRead        Scope = "envs:read"
	ScopeEnvsWrite       Scope = "envs:write"
	ScopeEnvsReveal      Scope = "envs:reveal"
	ScopeAIExtract       Scope = "ai:extract"
)

// AllScopes is the closed set of scopes, in display order.
var AllScopes = []Scope{
	ScopeCategoriesRead,
	ScopeCategoriesWrite,
	ScopeEntriesRead,
	ScopeEntriesWrite,
	ScopeEntriesReveal,
	ScopeTwoFactorRead,
	ScopeTwoFactorWrite,
	ScopeTwoFactorReveal,
	ScopeStatsRead,
	ScopeExportRead,
	ScopeEnvsRead,
	ScopeEnvsWrite,
	ScopeEnvsReveal,
	ScopeAIExtract,
}

var descriptions = map[Scope]string{
	ScopeCategoriesRead:  "List and view key categories",
	ScopeCategoriesWrite: "Create, update, and delete key categories",
	ScopeEntriesRead:     "List and view key entries (without secret values)",
	ScopeEntriesWrite:    "Create, update, and delete key entries",
	ScopeEntriesReveal:   "Decrypt and retrieve plaintext secret values",
	ScopeTwoFactorRead:   "List and view 2FA token sets",
	ScopeTwoFactorWrite:  "Create, update, and delete 2FA token sets",
	ScopeTwoFactorReveal: "Decrypt and retrieve plaintext recovery tokens",
	ScopeStatsRead:       "View dashboard statistics",
	ScopeExportRead:      "Export vault metadata as JSON",
	ScopeEnvsRead:        "List and view env projects and files (without content)",
	ScopeEnvsWrite:       "Create, update, and delete env projects and files",
	ScopeEnvsReveal:      "Decrypt and retrieve env file contents",
	ScopeAIExtract:       "Use AI to generate .env files from stored keys",
}

// Valid reports whether s belongs to the closed scope set.
func (s Scope) Valid() bool {
	_, ok := descriptions[s]
	return ok
}

// Description returns the human-readable meaning of s.
func (s Scope) Description() string {
	return descriptions[s]
}

// ParseScopes validates raw scope names. Duplicates are collapsed and the
// result follows AllScopes order.
func ParseScopes(raw []string) ([]Scope, error) {
	if len(raw) == 0 {
		return nil, errors.New("at least one scope is required")
	}
	set := make(ScopeSet, len(raw))
	for _, r := range raw {
		s := Scope(r)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown scope %q", r)
		}
		set[s] = struct{}{}
	}
	return set.Sorted(), nil
}

// ScopeSet is an unordered set of scopes.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a set from stored scope strings. Unknown names are kept
// so that a record is never silently widened or narrowed.
func NewScopeSet(raw []string) ScopeSet {
	set := make(ScopeSet, len(raw))
	for _, r := range raw {
		set[Scope(r)] = struct{}{}
	}
	return set
}

// Has reports whether s is in the set.
func (set ScopeSet) Has(s Scope) bool {
	_, ok := set[s]
	return ok
}

// Sorted returns the known scopes of the set in AllScopes order.
func (set ScopeSet) Sorted() []Scope {
	out := make([]Scope, 0, len(set))
	for _, s := range AllScopes {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Strings converts scopes to their stored form.
func Strings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}
