package models

// WipeResult reports what a vault wipe removed.
type WipeResult struct {
	Categories    int64 `json:"categories"`
	Entries       int64 `json:"entries"`
	TwoFactorSets int64 `json:"twoFactorSets"`
}
