package repository

import (
	"context"
	"sync"
	"time"

	"shopsync/internal/models"
)

// MemoryScopeRepository is a bounded, time-scoped in-process cache of
// permission grants. Entries expire after ttl; Invalidate removes one
// explicitly (e.g. after a role change).
type MemoryScopeRepository struct {
	mu         sync.Mutex
	grants     map[string]*scopeEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type scopeEntry struct {
	grant     *models.ScopeGrant
	expiresAt time.Time
}

func NewMemoryScopeRepository(ttl time.Duration, maxEntries int) *MemoryScopeRepository {
	if maxEntries <= 0 {
		maxEntries = models.DefaultScopeMaxEntries
	}
	return &MemoryScopeRepository{
		grants:     make(map[string]*scopeEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (r *MemoryScopeRepository) GetScope(ctx context.Context, userID, tenantID string) (*models.ScopeGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.grants[scopeKey(userID, tenantID)]
	if !ok {
		return nil, nil
	}
	if r.now().After(entry.expiresAt) {
		delete(r.grants, scopeKey(userID, tenantID))
		return nil, nil
	}
	return entry.grant, nil
}

func (r *MemoryScopeRepository) SetScope(ctx context.Context, grant *models.ScopeGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked()
	r.grants[scopeKey(grant.UserID, grant.TenantID)] = &scopeEntry{
		grant:     grant,
		expiresAt: r.now().Add(r.ttl),
	}
	return nil
}

func (r *MemoryScopeRepository) Invalidate(ctx context.Context, userID, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, scopeKey(userID, tenantID))
	return nil
}

// evictLocked drops expired entries first, then arbitrary ones until the
// cache fits its bound.
func (r *MemoryScopeRepository) evictLocked() {
	if len(r.grants) < r.maxEntries {
		return
	}
	now := r.now()
	for key, entry := range r.grants {
		if now.After(entry.expiresAt) {
			delete(r.grants, key)
		}
	}
	for key := range r.grants {
		if len(r.grants) < r.maxEntries {
			break
		}
		delete(r.grants, key)
	}
}

func scopeKey(userID, tenantID string) string {
	return userID + "|" + tenantID
}
