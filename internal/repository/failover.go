package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"shopsync/internal/domain"
	"shopsync/internal/models"
)

// FailoverScopeRepository fronts a primary (redis) scope cache with an
// in-memory fallback. After a primary failure it routes to the fallback and
// probes the primary again after a recovery window.
type FailoverScopeRepository struct {
	primary   domain.ScopeRepository
	fallback  domain.ScopeRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	recovery  time.Duration
}

func NewFailoverScopeRepository(primary, fallback domain.ScopeRepository, logger *zerolog.Logger) *FailoverScopeRepository {
	return &FailoverScopeRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		recovery: time.Minute,
	}
}

func (r *FailoverScopeRepository) GetScope(ctx context.Context, userID, tenantID string) (*models.ScopeGrant, error) {
	if r.primaryUp() {
		grant, err := r.primary.GetScope(ctx, userID, tenantID)
		if err == nil {
			return grant, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetScope(ctx, userID, tenantID)
}

func (r *FailoverScopeRepository) SetScope(ctx context.Context, grant *models.ScopeGrant) error {
	if r.primaryUp() {
		err := r.primary.SetScope(ctx, grant)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetScope(ctx, grant)
}

// Invalidate clears both layers so a stale grant can never resurface from
// the fallback after the primary recovers.
func (r *FailoverScopeRepository) Invalidate(ctx context.Context, userID, tenantID string) error {
	_ = r.fallback.Invalidate(ctx, userID, tenantID)
	if r.primaryUp() {
		if err := r.primary.Invalidate(ctx, userID, tenantID); err != nil {
			r.markDown(err)
			return err
		}
	}
	return nil
}

func (r *FailoverScopeRepository) primaryUp() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if time.Since(last) > r.recovery {
		r.isDown.Store(false)
		return true
	}
	return false
}

func (r *FailoverScopeRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary scope cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}
