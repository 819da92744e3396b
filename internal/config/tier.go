package config

import "strings"

// Tier names.
const (
	TierFree     = "tier1"
	TierStandard = "tier2"
	TierPro      = "tier3"
)

// Tier bounds how much work a session may do at once.
type Tier struct {
	Name         string
	Concurrency  int
	MaxFileBytes int64
}

const mib = 1 << 20

var tiers = map[string]Tier{
	TierFree:     {Name: TierFree, Concurrency: 1, MaxFileBytes: 5 * mib},
	TierStandard: {Name: TierStandard, Concurrency: 10, MaxFileBytes: 25 * mib},
	TierPro:      {Name: TierPro, Concurrency: 20, MaxFileBytes: 100 * mib},
}

// LookupTier returns the named tier, falling back to the free tier for
// unknown names.
func LookupTier(name string) Tier {
	if t, ok := tiers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return tiers[TierFree]
}

// KnownTier reports whether name is one of the tier table entries.
func KnownTier(name string) bool {
	_, ok := tiers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
