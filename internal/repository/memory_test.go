package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/models"
)

func testGrant(userID, tenantID string, perms ...string) *models.ScopeGrant {
	return &models.ScopeGrant{UserID: userID, TenantID: tenantID, Permissions: perms}
}

func TestMemoryScopeRoundTrip(t *testing.T) {
	repo := NewMemoryScopeRepository(time.Minute, 10)
	ctx := context.Background()

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenant-a", "write:product")))

	grant, err := repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.True(t, grant.Allows("write:product"))
	assert.False(t, grant.Allows("write:invoice"))

	missing, err := repo.GetScope(ctx, "user-2", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryScopeTTLExpiry(t *testing.T) {
	repo := NewMemoryScopeRepository(time.Minute, 10)
	ctx := context.Background()

	current := time.Now()
	repo.now = func() time.Time { return current }

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenant-a", "*")))

	grant, err := repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	assert.NotNil(t, grant)

	current = current.Add(2 * time.Minute)

	grant, err = repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestMemoryScopeInvalidate(t *testing.T) {
	repo := NewMemoryScopeRepository(time.Minute, 10)
	ctx := context.Background()

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenant-a", "*")))
	require.NoError(t, repo.Invalidate(ctx, "user-1", "tenant-a"))

	grant, err := repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestMemoryScopeEviction(t *testing.T) {
	repo := NewMemoryScopeRepository(time.Minute, 4)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		grant := testGrant(fmt.Sprintf("user-%d", i), "tenant-a", "*")
		require.NoError(t, repo.SetScope(ctx, grant))
	}

	assert.LessOrEqual(t, len(repo.grants), 4)
}

func TestMemoryScopeTenantSeparation(t *testing.T) {
	repo := NewMemoryScopeRepository(time.Minute, 10)
	ctx := context.Background()

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenantA", "write:product")))

	grant, err := repo.GetScope(ctx, "user-1", "tenantB")
	require.NoError(t, err)
	assert.Nil(t, grant)
}
