package models

// Capability names a kind of cross-user data a relationship can expose.
// The set is closed; unknown names never grant anything.
type Capability string

const (
	CapViewEntries  Capability = "view_entries"
	CapViewInsights Capability = "view_insights"
	CapViewGoals    Capability = "view_goals"
)

// Capabilities lists every known capability in a stable order.
var Capabilities = []Capability{CapViewEntries, CapViewInsights, CapViewGoals}

// ParseCapability returns the capability for name and whether it is known.
func ParseCapability(name string) (Capability, bool) {
	for _, c := range Capabilities {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Grants holds explicit per-capability overrides stored on a relationship.
// A capability absent from the map falls back to the default policy.
type Grants map[Capability]bool

// Lookup returns the explicit grant for c, if one was recorded.
func (g Grants) Lookup(c Capability) (granted bool, explicit bool) {
	if g == nil {
		return false, false
	}
	granted, explicit = g[c]
	return granted, explicit
}

// Clone returns a copy safe to mutate.
func (g Grants) Clone() Grants {
	out := make(Grants, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}
