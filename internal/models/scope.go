package models

import "time"

// ScopeGrant is a cached set of permissions for a user within a tenant.
type ScopeGrant struct {
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Permissions []string  `json:"permissions"`
	CachedAt    time.Time `json:"cached_at"`
}

// Allows reports whether the grant carries the permission, or a wildcard.
func (g *ScopeGrant) Allows(permission string) bool {
	if g == nil {
		return false
	}
	for _, p := range g.Permissions {
		if p == permission || p == "*" {
			return true
		}
	}
	return false
}
