package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisRepo(t *testing.T, ttl time.Duration) (*RedisScopeRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisScopeRepository(client, ttl), mr
}

func TestRedisScopeRoundTrip(t *testing.T) {
	repo, _ := setupRedisRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenant-a", "write:product", "write:invoice")))

	grant, err := repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, "user-1", grant.UserID)
	assert.True(t, grant.Allows("write:invoice"))

	missing, err := repo.GetScope(ctx, "user-2", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisScopeTTL(t *testing.T) {
	repo, mr := setupRedisRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenant-a", "*")))

	mr.FastForward(2 * time.Minute)

	grant, err := repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestRedisScopeInvalidate(t *testing.T) {
	repo, _ := setupRedisRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.SetScope(ctx, testGrant("user-1", "tenant-a", "*")))
	require.NoError(t, repo.Invalidate(ctx, "user-1", "tenant-a"))

	grant, err := repo.GetScope(ctx, "user-1", "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestRedisScopeServerDown(t *testing.T) {
	repo, mr := setupRedisRepo(t, time.Minute)
	ctx := context.Background()

	mr.Close()

	_, err := repo.GetScope(ctx, "user-1", "tenant-a")
	assert.Error(t, err)
}
