package syncengine

import "sync"

// TenantLocks serializes local store and queue mutations per tenant. The
// orchestrator and the drain worker share one instance so their writes for
// the same tenant can never interleave non-atomically. Gateway calls are
// made outside the lock; only the reconcile step holds it.
type TenantLocks struct {
	locks sync.Map // map[string]*sync.Mutex
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{}
}

// Lock acquires the tenant's mutex and returns the unlock func.
func (t *TenantLocks) Lock(tenantID string) func() {
	mu := t.mutex(tenantID)
	mu.Lock()
	return mu.Unlock
}

// Drop forgets a tenant's lock state, used on tenant switch.
func (t *TenantLocks) Drop(tenantID string) {
	t.locks.Delete(tenantID)
}

func (t *TenantLocks) mutex(tenantID string) *sync.Mutex {
	if v, ok := t.locks.Load(tenantID); ok {
		return v.(*sync.Mutex)
	}
	mu := &sync.Mutex{}
	actual, _ := t.locks.LoadOrStore(tenantID, mu)
	return actual.(*sync.Mutex)
}
