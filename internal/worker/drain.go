package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopsync/internal/domain"
	"shopsync/internal/events"
	"shopsync/internal/metrics"
	"shopsync/internal/models"
	"shopsync/internal/syncengine"
)

const (
	wakeKey          = "shopsync:wake"
	deadLetterPrefix = "shopsync:deadletter:"
)

// DrainWorker is the sole consumer of the retry queue. It walks each
// tenant's queue strictly sequentially, re-invokes the gateway per item, and
// removes, re-queues, or abandons items based on outcome. It is the only
// actor permitted to drive in_progress and abandoned transitions.
type DrainWorker struct {
	queue          domain.QueueRepository
	records        domain.RecordRepository
	registry       *syncengine.Registry
	locks          *syncengine.TenantLocks
	redis          *redis.Client
	eventBus       domain.EventPublisher
	policy         Policy
	interval       time.Duration
	batchSize      int
	gatewayTimeout time.Duration
	kick           chan struct{}
	logger         zerolog.Logger
	now            func() time.Time

	mu      sync.Mutex
	tenants []string
}

type Config struct {
	Policy         Policy
	Interval       time.Duration
	BatchSize      int
	GatewayTimeout time.Duration
}

func NewDrainWorker(queue domain.QueueRepository, records domain.RecordRepository,
	registry *syncengine.Registry, locks *syncengine.TenantLocks,
	redisClient *redis.Client, eventBus domain.EventPublisher,
	cfg Config, logger *zerolog.Logger) *DrainWorker {

	if cfg.Policy.MaxRetries == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = models.DefaultDrainInterval * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = models.DefaultDrainBatchSize
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = models.DefaultGatewayTimeout * time.Second
	}
	if locks == nil {
		locks = syncengine.NewTenantLocks()
	}

	return &DrainWorker{
		queue:          queue,
		records:        records,
		registry:       registry,
		locks:          locks,
		redis:          redisClient,
		eventBus:       eventBus,
		policy:         cfg.Policy,
		interval:       cfg.Interval,
		batchSize:      cfg.BatchSize,
		gatewayTimeout: cfg.GatewayTimeout,
		kick:           make(chan struct{}, 1),
		logger:         logger.With().Str("component", "drain_worker").Logger(),
		now:            time.Now,
	}
}

// Kick schedules a drain pass as soon as possible. Safe from any goroutine.
func (w *DrainWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
	if w.redis != nil {
		_ = w.redis.LPush(context.Background(), wakeKey, "1").Err()
	}
}

// SetTenants pins the set of tenants to drain. An empty set means tenants
// are discovered from the durable queue. In-memory state for removed
// tenants is dropped (tenant switch).
func (w *DrainWorker) SetTenants(tenants []string) {
	w.mu.Lock()
	removed := diffTenants(w.tenants, tenants)
	w.tenants = append([]string(nil), tenants...)
	w.mu.Unlock()

	for _, t := range removed {
		w.locks.Drop(t)
	}
}

// BindEvents makes queued-mutation events wake the drain loop immediately.
func (w *DrainWorker) BindEvents(bus *events.EventBus) {
	bus.Subscribe(events.EventRecordQueued, func(*events.Event) error {
		w.Kick()
		return nil
	})
}

// Start runs the drain loop until ctx is done.
func (w *DrainWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("drain worker started")
	defer w.logger.Info().Msg("drain worker stopped")

	w.recoverStale(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("drain pass failed")
		}
		w.wait(ctx)
	}
}

// recoverStale returns items stranded in_progress by an earlier shutdown to
// the pending queue. Without this, a stranded item is never re-attempted and
// blocks every younger item for its entity.
func (w *DrainWorker) recoverStale(ctx context.Context) {
	n, err := w.queue.RequeueInProgress(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("requeue of stale in-progress items failed")
		return
	}
	if n > 0 {
		w.logger.Warn().Int("count", n).Msg("requeued sync items stranded by an earlier shutdown")
	}
}

// Drain runs one pass over every tenant's queue.
func (w *DrainWorker) Drain(ctx context.Context) error {
	tenants, err := w.drainTenants(ctx)
	if err != nil {
		return err
	}

	start := w.now()
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.DrainTenant(ctx, tenant); err != nil {
			w.logger.Error().Err(err).Str("tenant_id", tenant).Msg("tenant drain failed")
		}
		w.reportDepth(ctx, tenant)
	}
	metrics.ObserveDrain(w.now().Sub(start))
	return nil
}

// DrainTenant flushes one tenant's queue until it is empty, everything left
// is deferred, or the pass budget is exhausted.
func (w *DrainWorker) DrainTenant(ctx context.Context, tenantID string) error {
	blocked := make(map[string]bool)
	budget := w.batchSize

	for budget > 0 {
		items, err := w.queue.NextEligible(ctx, tenantID, budget)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		attempted := false
		for i := range items {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			item := &items[i]
			key := item.EntityType + "/" + item.EntityID
			if blocked[key] {
				continue
			}
			attempted = true
			budget--
			if !w.processItem(ctx, item) {
				// Preserve per-entity ordering: once an item fails, its
				// younger siblings must wait for a later pass.
				blocked[key] = true
			}
			if budget == 0 {
				break
			}
		}
		if !attempted {
			return nil
		}
	}
	return nil
}

func (w *DrainWorker) processItem(ctx context.Context, item *models.QueueItem) bool {
	if err := w.queue.MarkInProgress(ctx, item.QueueID); err != nil {
		w.logger.Error().Err(err).Str("queue_id", item.QueueID).Msg("mark in_progress failed")
		return false
	}

	var record models.Record
	if err := json.Unmarshal([]byte(item.Payload), &record); err != nil {
		w.abandon(ctx, item, item.RetryCount, fmt.Errorf("decode payload: %w", err))
		return false
	}

	desc := w.registry.Get(item.EntityType)
	if desc == nil {
		w.abandon(ctx, item, item.RetryCount, fmt.Errorf("no gateway registered for entity type %q", item.EntityType))
		return false
	}

	if err := w.invokeGateway(ctx, desc, item, &record); err != nil {
		w.retryOrAbandon(ctx, item, err)
		return false
	}

	w.finishItem(ctx, item, &record)
	return true
}

func (w *DrainWorker) invokeGateway(ctx context.Context, desc *syncengine.EntityDescriptor, item *models.QueueItem, record *models.Record) error {
	tctx, cancel := context.WithTimeout(ctx, w.gatewayTimeout)
	defer cancel()

	var err error
	switch item.Operation {
	case models.OpCreate:
		_, err = desc.Gateway.Create(tctx, record)
	case models.OpUpdate:
		_, err = desc.Gateway.Update(tctx, record)
	case models.OpDelete:
		err = desc.Gateway.Delete(tctx, item.TenantID, item.EntityID)
	default:
		return fmt.Errorf("unknown operation %q", item.Operation)
	}
	if err != nil && tctx.Err() == context.DeadlineExceeded {
		return syncengine.WrapNetwork("gateway call timed out", err)
	}
	return err
}

// finishItem removes the queue item and reconciles the local store under the
// tenant lock it shares with the orchestrator. The writes run on a detached
// context: the remote call already succeeded, so a shutdown arriving now must
// not leave the item in_progress.
func (w *DrainWorker) finishItem(ctx context.Context, item *models.QueueItem, payload *models.Record) {
	ctx = context.WithoutCancel(ctx)

	unlock := w.locks.Lock(item.TenantID)
	defer unlock()

	if err := w.queue.Remove(ctx, item.QueueID); err != nil {
		w.logger.Error().Err(err).Str("queue_id", item.QueueID).Msg("remove queue item failed")
	}

	switch item.Operation {
	case models.OpDelete:
		if err := w.records.RemoveRecord(ctx, item.EntityType, item.TenantID, item.EntityID); err != nil {
			w.logger.Error().Err(err).Str("entity_id", item.EntityID).Msg("remove record failed")
		}
	default:
		w.markSynced(ctx, item, payload)
	}

	metrics.IncDrainOutcome(item.EntityType, "success")
	if w.eventBus != nil {
		_ = w.eventBus.PublishJSON(events.EventItemDrained, events.SyncEventPayload{
			QueueID:    item.QueueID,
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			TenantID:   item.TenantID,
			Operation:  item.Operation,
			RetryCount: item.RetryCount,
		})
	}
}

// markSynced flips the local record to synced unless a newer local edit
// superseded the queued snapshot; that edit has its own queue item and must
// not be reported as replicated.
func (w *DrainWorker) markSynced(ctx context.Context, item *models.QueueItem, payload *models.Record) {
	current, err := w.records.GetRecord(ctx, item.EntityType, item.TenantID, item.EntityID)
	if err != nil {
		w.logger.Error().Err(err).Str("entity_id", item.EntityID).Msg("load record failed")
		return
	}
	if current == nil {
		return
	}
	if current.LastModified.After(payload.LastModified) {
		return
	}

	current.Synced = true
	current.LastSyncError = nil
	if err := w.records.PutRecord(ctx, current); err != nil {
		w.logger.Error().Err(err).Str("entity_id", item.EntityID).Msg("mark synced failed")
	}
}

func (w *DrainWorker) retryOrAbandon(ctx context.Context, item *models.QueueItem, cause error) {
	// Cancellation mid-pass is a common cause: the status write must still
	// land or the item is stranded in_progress.
	ctx = context.WithoutCancel(ctx)

	retries := item.RetryCount + 1
	if retries >= item.MaxRetries {
		w.abandon(ctx, item, retries, cause)
		return
	}

	nextRetry := w.now().Add(w.policy.Delay(retries))
	if err := w.queue.MarkPending(ctx, item.QueueID, retries, cause.Error(), nextRetry); err != nil {
		w.logger.Error().Err(err).Str("queue_id", item.QueueID).Msg("mark pending failed")
		return
	}
	metrics.IncDrainOutcome(item.EntityType, "retry")
	w.logger.Warn().Err(cause).
		Str("queue_id", item.QueueID).
		Int("retry_count", retries).
		Time("next_retry_at", nextRetry).
		Msg("sync item re-queued")
}

func (w *DrainWorker) abandon(ctx context.Context, item *models.QueueItem, retries int, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := w.queue.MarkAbandoned(ctx, item.QueueID, retries, cause.Error()); err != nil {
		w.logger.Error().Err(err).Str("queue_id", item.QueueID).Msg("mark abandoned failed")
		return
	}
	metrics.IncDrainOutcome(item.EntityType, "abandoned")
	w.pushDeadLetter(ctx, item, cause)
	w.logger.Error().Err(cause).
		Str("queue_id", item.QueueID).
		Str("entity_id", item.EntityID).
		Str("tenant_id", item.TenantID).
		Msg("sync item abandoned; operator intervention required")

	if w.eventBus != nil {
		_ = w.eventBus.PublishJSON(events.EventItemAbandoned, events.SyncEventPayload{
			QueueID:    item.QueueID,
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			TenantID:   item.TenantID,
			Operation:  item.Operation,
			RetryCount: retries,
			Error:      cause.Error(),
		})
	}
}

func (w *DrainWorker) pushDeadLetter(ctx context.Context, item *models.QueueItem, cause error) {
	if w.redis == nil {
		return
	}
	msg := cause.Error()
	item.LastError = &msg
	data, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, deadLetterPrefix+item.TenantID, data).Err(); err != nil {
		w.logger.Warn().Err(err).Str("queue_id", item.QueueID).Msg("dead letter push failed")
	}
}

func (w *DrainWorker) drainTenants(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	pinned := append([]string(nil), w.tenants...)
	w.mu.Unlock()

	if len(pinned) > 0 {
		return pinned, nil
	}
	return w.queue.Tenants(ctx)
}

func (w *DrainWorker) reportDepth(ctx context.Context, tenantID string) {
	counts, err := w.queue.CountByStatus(ctx, tenantID)
	if err != nil {
		return
	}
	for _, status := range []string{models.QueuePending, models.QueueInProgress, models.QueueAbandoned} {
		metrics.SetQueueDepth(tenantID, status, counts[status])
	}
}

// wait blocks until the next scheduled pass, an explicit kick, or a redis
// wake-up, whichever comes first.
func (w *DrainWorker) wait(ctx context.Context) {
	if w.redis != nil {
		res := w.redis.BRPop(ctx, w.interval, wakeKey)
		if err := res.Err(); err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis wake wait failed")
		}
		return
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.kick:
	case <-timer.C:
	}
}

func diffTenants(old, updated []string) []string {
	keep := make(map[string]bool, len(updated))
	for _, t := range updated {
		keep[t] = true
	}
	var removed []string
	for _, t := range old {
		if !keep[t] {
			removed = append(removed, t)
		}
	}
	return removed
}
