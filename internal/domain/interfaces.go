package domain

import (
	"context"
	"time"

	"shopsync/internal/models"
)

// RecordRepository is the tenant-scoped local store of entity records.
// Implementations never perform network I/O.
type RecordRepository interface {
	GetRecords(ctx context.Context, entityType, tenantID string) ([]models.Record, error)
	GetRecord(ctx context.Context, entityType, tenantID, id string) (*models.Record, error)
	PutRecord(ctx context.Context, record *models.Record) error
	RemoveRecord(ctx context.Context, entityType, tenantID, id string) error
}

// QueueRepository is the durable per-tenant retry queue.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	GetItem(ctx context.Context, queueID string) (*models.QueueItem, error)
	// NextEligible returns pending items in FIFO order, excluding any item
	// with an older unfinished sibling for the same entity.
	NextEligible(ctx context.Context, tenantID string, limit int) ([]models.QueueItem, error)
	MarkInProgress(ctx context.Context, queueID string) error
	MarkPending(ctx context.Context, queueID string, retryCount int, lastError string, nextRetryAt time.Time) error
	MarkAbandoned(ctx context.Context, queueID string, retryCount int, lastError string) error
	// RequeueInProgress returns items orphaned in_progress by a crash to
	// pending, reporting how many were recovered.
	RequeueInProgress(ctx context.Context) (int, error)
	Remove(ctx context.Context, queueID string) error
	ListPending(ctx context.Context, tenantID string) ([]models.QueueItem, error)
	ListAbandoned(ctx context.Context, tenantID string) ([]models.QueueItem, error)
	Tenants(ctx context.Context) ([]string, error)
	CountByStatus(ctx context.Context, tenantID string) (map[string]int, error)
}

// Gateway performs remote create/update/delete for one entity type.
// Implementations must be idempotent-safe to retry: a retried create of an id
// that already exists remotely is success, not conflict.
type Gateway interface {
	Create(ctx context.Context, payload *models.Record) (*models.Record, error)
	Update(ctx context.Context, payload *models.Record) (*models.Record, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ScopeRepository caches permission grants with a TTL.
type ScopeRepository interface {
	GetScope(ctx context.Context, userID, tenantID string) (*models.ScopeGrant, error)
	SetScope(ctx context.Context, grant *models.ScopeGrant) error
	Invalidate(ctx context.Context, userID, tenantID string) error
}

// ScopeChecker answers write-permission questions for the orchestrator.
type ScopeChecker interface {
	CanWrite(ctx context.Context, userID, tenantID, entityType string) (bool, error)
}

// SyncWorker is the drain loop's control surface.
type SyncWorker interface {
	Kick()
	SetTenants(tenants []string)
}

// EventPublisher fans out sync lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
