package syncengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shopsync/internal/domain"
	"shopsync/internal/events"
	"shopsync/internal/models"
)

// Engine applies one mutation: validate, attempt remote, reconcile the local
// store, and queue a retry task on remote failure. It is the single entry
// point for entity writes; nothing else touches the local store or queue
// except the drain worker.
type Engine struct {
	records        domain.RecordRepository
	queue          domain.QueueRepository
	registry       *Registry
	scopes         domain.ScopeChecker
	eventBus       domain.EventPublisher
	locks          *TenantLocks
	logger         zerolog.Logger
	gatewayTimeout time.Duration
	maxRetries     int
	now            func() time.Time
}

type Options struct {
	GatewayTimeout time.Duration
	MaxRetries     int
}

func New(records domain.RecordRepository, queue domain.QueueRepository, registry *Registry,
	scopes domain.ScopeChecker, eventBus domain.EventPublisher, locks *TenantLocks,
	logger *zerolog.Logger, opts Options) *Engine {

	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = models.DefaultGatewayTimeout * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = models.DefaultMaxRetries
	}
	if locks == nil {
		locks = NewTenantLocks()
	}

	return &Engine{
		records:        records,
		queue:          queue,
		registry:       registry,
		scopes:         scopes,
		eventBus:       eventBus,
		locks:          locks,
		logger:         logger.With().Str("component", "syncengine").Logger(),
		gatewayTimeout: opts.GatewayTimeout,
		maxRetries:     opts.MaxRetries,
		now:            time.Now,
	}
}

// Locks exposes the per-tenant lock set so the drain worker can share it.
func (e *Engine) Locks() *TenantLocks { return e.locks }

// SyncEntity validates the mutation, attempts it remotely once, and leaves
// the local store consistent regardless of the remote outcome.
//
// Fatal failures (validation, auth) return a non-nil error before any
// storage mutation. Retryable failures return a SyncResult with Success=true
// and Synced=false: the mutation is durable locally and queued for the drain
// worker.
func (e *Engine) SyncEntity(ctx context.Context, record *models.Record, actorUserID, operation, tenantID string) (*models.SyncResult, error) {
	if actorUserID == "" {
		return nil, Authf("actor user id is required")
	}
	if tenantID == "" {
		return nil, Validationf("tenant id is required")
	}
	if record == nil || record.ID == "" {
		return nil, Validationf("record id is required; ids are client-generated")
	}
	if !models.ValidOperation(operation) {
		return nil, Validationf("unknown operation %q", operation)
	}
	if record.TenantID != "" && record.TenantID != tenantID {
		return nil, Validationf("record tenant %q does not match scope %q", record.TenantID, tenantID)
	}

	desc := e.registry.Get(record.EntityType)
	if desc == nil {
		return nil, Validationf("unknown entity type %q", record.EntityType)
	}

	if e.scopes != nil {
		allowed, err := e.scopes.CanWrite(ctx, actorUserID, tenantID, record.EntityType)
		if err != nil {
			return nil, WrapAuth("permission check failed", err)
		}
		if !allowed {
			return nil, Authf("user %s may not write %s in tenant %s", actorUserID, record.EntityType, tenantID)
		}
	}

	if operation != models.OpDelete && desc.Validate != nil {
		if err := desc.Validate(record); err != nil {
			if Classify(err) == KindValidation {
				return nil, err
			}
			return nil, WrapValidation("entity validation failed", err)
		}
	}

	record.TenantID = tenantID
	record.Synced = false
	record.LastModified = e.now()
	record.SyncAttempts++

	gwErr := e.attempt(ctx, desc, record, operation, tenantID)

	unlock := e.locks.Lock(tenantID)
	defer unlock()

	if gwErr == nil {
		return e.reconcileSuccess(ctx, record, operation, tenantID)
	}

	kind := Classify(gwErr)
	if !Retryable(gwErr) {
		// Fatal remote rejection: surfaced to the caller, never queued,
		// local store untouched.
		e.logger.Warn().Err(gwErr).
			Str("entity_type", record.EntityType).
			Str("entity_id", record.ID).
			Str("kind", string(kind)).
			Msg("remote rejected mutation")
		return nil, gwErr
	}

	return e.reconcileFailure(ctx, record, actorUserID, operation, tenantID, gwErr)
}

// ListPending exposes unresolved queue items for operator surfacing.
func (e *Engine) ListPending(ctx context.Context, tenantID string) ([]models.QueueItem, error) {
	return e.queue.ListPending(ctx, tenantID)
}

// ListAbandoned exposes items that exhausted their retry budget.
func (e *Engine) ListAbandoned(ctx context.Context, tenantID string) ([]models.QueueItem, error) {
	return e.queue.ListAbandoned(ctx, tenantID)
}

func (e *Engine) attempt(ctx context.Context, desc *EntityDescriptor, record *models.Record, operation, tenantID string) error {
	tctx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	var err error
	switch operation {
	case models.OpCreate:
		_, err = desc.Gateway.Create(tctx, record)
	case models.OpUpdate:
		_, err = desc.Gateway.Update(tctx, record)
	case models.OpDelete:
		err = desc.Gateway.Delete(tctx, tenantID, record.ID)
	}
	if err != nil && tctx.Err() == context.DeadlineExceeded {
		return WrapNetwork("gateway call timed out", err)
	}
	return err
}

func (e *Engine) reconcileSuccess(ctx context.Context, record *models.Record, operation, tenantID string) (*models.SyncResult, error) {
	if operation == models.OpDelete {
		if err := e.records.RemoveRecord(ctx, record.EntityType, tenantID, record.ID); err != nil {
			return nil, err
		}
	} else {
		record.Synced = true
		record.LastSyncError = nil
		if err := e.records.PutRecord(ctx, record); err != nil {
			return nil, err
		}
	}

	if e.eventBus != nil {
		_ = e.eventBus.PublishJSON(events.EventRecordSynced, events.SyncEventPayload{
			EntityType: record.EntityType,
			EntityID:   record.ID,
			TenantID:   tenantID,
			Operation:  operation,
		})
	}

	return &models.SyncResult{Success: true, Synced: true, Data: record}, nil
}

func (e *Engine) reconcileFailure(ctx context.Context, record *models.Record, actorUserID, operation, tenantID string, gwErr error) (*models.SyncResult, error) {
	msg := gwErr.Error()
	record.LastSyncError = &msg
	if operation == models.OpDelete {
		record.PendingDelete = true
	}
	if err := e.records.PutRecord(ctx, record); err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	item := &models.QueueItem{
		QueueID:     uuid.NewString(),
		EntityType:  record.EntityType,
		EntityID:    record.ID,
		Operation:   operation,
		Payload:     string(snapshot),
		ActorUserID: actorUserID,
		TenantID:    tenantID,
		EnqueuedAt:  e.now(),
		RetryCount:  0,
		MaxRetries:  e.maxRetries,
		Status:      models.QueuePending,
		LastError:   &msg,
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("entity_type", record.EntityType).
		Str("entity_id", record.ID).
		Str("tenant_id", tenantID).
		Str("operation", operation).
		Str("queue_id", item.QueueID).
		Msg("mutation queued for retry")

	if e.eventBus != nil {
		_ = e.eventBus.PublishJSON(events.EventRecordQueued, events.SyncEventPayload{
			QueueID:    item.QueueID,
			EntityType: record.EntityType,
			EntityID:   record.ID,
			TenantID:   tenantID,
			Operation:  operation,
			Error:      msg,
		})
	}

	return &models.SyncResult{
		Success: true,
		Synced:  false,
		Data:    record,
		QueueID: item.QueueID,
		Error:   msg,
	}, nil
}
