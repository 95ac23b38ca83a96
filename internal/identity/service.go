package identity

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shopsync/internal/domain"
	"shopsync/internal/models"
)

// ScopeSource loads the authoritative permission grant for a user in a
// tenant; the result is cached by the scope repository.
type ScopeSource interface {
	LoadScope(ctx context.Context, userID, tenantID string) (*models.ScopeGrant, error)
}

// Service answers permission questions through the TTL scope cache,
// falling back to the source on a miss.
type Service struct {
	scopes domain.ScopeRepository
	source ScopeSource
	logger zerolog.Logger
}

func NewService(scopes domain.ScopeRepository, source ScopeSource, logger *zerolog.Logger) *Service {
	return &Service{
		scopes: scopes,
		source: source,
		logger: logger.With().Str("component", "identity").Logger(),
	}
}

// CanWrite reports whether the user may mutate the entity type in the
// tenant. The check consults the cache first; a miss loads from the source
// and repopulates the cache.
func (s *Service) CanWrite(ctx context.Context, userID, tenantID, entityType string) (bool, error) {
	grant, err := s.scopes.GetScope(ctx, userID, tenantID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("scope cache read failed")
	}
	if grant == nil {
		grant, err = s.source.LoadScope(ctx, userID, tenantID)
		if err != nil {
			return false, err
		}
		if grant == nil {
			return false, nil
		}
		grant.CachedAt = time.Now()
		if err := s.scopes.SetScope(ctx, grant); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("scope cache write failed")
		}
	}
	return grant.Allows("write:" + entityType), nil
}

// Invalidate drops the cached grant, forcing a reload on the next check.
func (s *Service) Invalidate(ctx context.Context, userID, tenantID string) error {
	return s.scopes.Invalidate(ctx, userID, tenantID)
}

// StaticSource serves grants from an in-memory table, typically built from
// configuration. Unknown users get no grant.
type StaticSource struct {
	grants map[string][]string
}

// NewStaticSource builds a source from (userID, tenantID) -> permissions.
func NewStaticSource() *StaticSource {
	return &StaticSource{grants: make(map[string][]string)}
}

// Grant registers permissions for a user within a tenant.
func (s *StaticSource) Grant(userID, tenantID string, permissions []string) {
	s.grants[userID+"|"+tenantID] = permissions
}

func (s *StaticSource) LoadScope(ctx context.Context, userID, tenantID string) (*models.ScopeGrant, error) {
	perms, ok := s.grants[userID+"|"+tenantID]
	if !ok {
		return nil, nil
	}
	return &models.ScopeGrant{
		UserID:      userID,
		TenantID:    tenantID,
		Permissions: perms,
	}, nil
}
