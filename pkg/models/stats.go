package models

// Stats summarises one owner's vault for the dashboard.
type Stats struct {
	TotalCategories int                `json:"totalCategories"`
	TotalEntries    int                `json:"totalEntries"`
	TotalTwoFactor  int                `json:"totalTwoFactorSets"`
	KeyTypes        []KeyTypeCount     `json:"keyTypeBreakdown"`
	Environments    []EnvironmentCount `json:"environmentBreakdown"`
	RecentEntries   []*Entry           `json:"recentEntries"`
	ExpiringEntries []*Entry           `json:"expiringEntries"`
}

// KeyTypeCount is the number of categories of one key type.
type KeyTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EnvironmentCount is the number of entries in one environment.
type EnvironmentCount struct {
	Environment string `json:"environment"`
	Count       int    `json:"count"`
}
