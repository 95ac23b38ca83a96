package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shopsync/internal/models"
)

// RedisScopeRepository caches permission grants in redis so grants survive
// process restarts and are shared across instances.
type RedisScopeRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from address/password/db settings.
func NewRedisClient(addr, password string, db, poolSize int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
}

func NewRedisScopeRepository(client *redis.Client, ttl time.Duration) *RedisScopeRepository {
	return &RedisScopeRepository{client: client, ttl: ttl}
}

func (r *RedisScopeRepository) GetScope(ctx context.Context, userID, tenantID string) (*models.ScopeGrant, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, redisScopeKey(userID, tenantID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scope from redis: %w", err)
	}

	var grant models.ScopeGrant
	if err := json.Unmarshal([]byte(val), &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope: %w", err)
	}
	return &grant, nil
}

func (r *RedisScopeRepository) SetScope(ctx context.Context, grant *models.ScopeGrant) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}
	if err := r.client.Set(ctx, redisScopeKey(grant.UserID, grant.TenantID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set scope in redis: %w", err)
	}
	return nil
}

func (r *RedisScopeRepository) Invalidate(ctx context.Context, userID, tenantID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, redisScopeKey(userID, tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate scope in redis: %w", err)
	}
	return nil
}

func redisScopeKey(userID, tenantID string) string {
	return fmt.Sprintf("scope:%s:%s", tenantID, userID)
}
