package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shopsync/internal/models"
)

const queueColumns = `queue_id, entity_type, entity_id, operation, payload, actor_user_id, tenant_id,
	enqueued_at, retry_count, max_retries, status, last_error, processed_at, next_retry_at`

// Enqueue appends a retry task. FIFO order follows insertion order (rowid).
func (db *DB) Enqueue(ctx context.Context, item *models.QueueItem) error {
	if item.QueueID == "" || item.TenantID == "" || item.EntityID == "" {
		return fmt.Errorf("queue item key is incomplete: id=%q tenant=%q entity=%q",
			item.QueueID, item.TenantID, item.EntityID)
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	if item.Status == "" {
		item.Status = models.QueuePending
	}

	query := `INSERT INTO sync_queue
              (queue_id, entity_type, entity_id, operation, payload, actor_user_id, tenant_id,
               enqueued_at, retry_count, max_retries, status, last_error, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		item.QueueID,
		item.EntityType,
		item.EntityID,
		item.Operation,
		item.Payload,
		item.ActorUserID,
		item.TenantID,
		item.EnqueuedAt,
		item.RetryCount,
		item.MaxRetries,
		item.Status,
		item.LastError,
		item.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return nil
}

// GetItem returns one queue item or nil when absent.
func (db *DB) GetItem(ctx context.Context, queueID string) (*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE queue_id = ?`
	row := db.QueryRowContext(ctx, query, queueID)
	item, err := scanQueueItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// NextEligible returns pending items for the tenant in enqueue order. An item
// is excluded while an older item for the same (entity_type, entity_id) is
// still in progress, deferred by backoff, or abandoned, so a younger update
// can never overtake or outlive a create that has not succeeded. Items behind
// an abandoned sibling stay pending until an operator resolves the chain.
func (db *DB) NextEligible(ctx context.Context, tenantID string, limit int) ([]models.QueueItem, error) {
	now := time.Now()
	query := `SELECT ` + queueColumns + ` FROM sync_queue q
              WHERE q.tenant_id = ? AND q.status = 'pending'
                AND (q.next_retry_at IS NULL OR q.next_retry_at <= ?)
                AND NOT EXISTS (
                    SELECT 1 FROM sync_queue o
                    WHERE o.tenant_id = q.tenant_id
                      AND o.entity_type = q.entity_type
                      AND o.entity_id = q.entity_id
                      AND o.rowid < q.rowid
                      AND (o.status = 'in_progress'
                           OR o.status = 'abandoned'
                           OR (o.status = 'pending' AND o.next_retry_at IS NOT NULL AND o.next_retry_at > ?))
                )
              ORDER BY q.rowid ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, tenantID, now, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible sync items: %w", err)
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// MarkInProgress transitions a pending item to in_progress.
func (db *DB) MarkInProgress(ctx context.Context, queueID string) error {
	query := `UPDATE sync_queue SET status = ? WHERE queue_id = ? AND status = ?`
	if _, err := db.ExecContext(ctx, query, models.QueueInProgress, queueID, models.QueuePending); err != nil {
		return fmt.Errorf("failed to mark sync item in progress: %w", err)
	}
	return nil
}

// MarkPending returns a failed item to the queue for a later drain pass.
func (db *DB) MarkPending(ctx context.Context, queueID string, retryCount int, lastError string, nextRetryAt time.Time) error {
	query := `UPDATE sync_queue SET status = ?, retry_count = ?, last_error = ?, next_retry_at = ? WHERE queue_id = ?`
	if _, err := db.ExecContext(ctx, query, models.QueuePending, retryCount, lastError, nextRetryAt, queueID); err != nil {
		return fmt.Errorf("failed to mark sync item pending: %w", err)
	}
	return nil
}

// MarkAbandoned moves an item to its terminal state. Abandoned items are
// retained for operator visibility, never auto-retried.
func (db *DB) MarkAbandoned(ctx context.Context, queueID string, retryCount int, lastError string) error {
	now := time.Now()
	query := `UPDATE sync_queue SET status = ?, retry_count = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE queue_id = ?`
	if _, err := db.ExecContext(ctx, query, models.QueueAbandoned, retryCount, lastError, now, queueID); err != nil {
		return fmt.Errorf("failed to mark sync item abandoned: %w", err)
	}
	return nil
}

// RequeueInProgress returns items stranded in_progress to the pending queue.
// The drain worker is the queue's only consumer, so anything still
// in_progress before its first pass was orphaned by an earlier shutdown and
// can never complete on its own.
func (db *DB) RequeueInProgress(ctx context.Context) (int, error) {
	res, err := db.ExecContext(ctx, `UPDATE sync_queue SET status = ? WHERE status = ?`,
		models.QueuePending, models.QueueInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue in-progress sync items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Remove deletes an item. Called the moment its operation succeeds remotely.
func (db *DB) Remove(ctx context.Context, queueID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE queue_id = ?`, queueID); err != nil {
		return fmt.Errorf("failed to remove sync item: %w", err)
	}
	return nil
}

// ListPending returns unresolved items (pending or in_progress) in FIFO order.
func (db *DB) ListPending(ctx context.Context, tenantID string) ([]models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
              WHERE tenant_id = ? AND status IN ('pending', 'in_progress')
              ORDER BY rowid ASC`
	rows, err := db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sync items: %w", err)
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// ListAbandoned returns items that exhausted their retry budget, newest first.
func (db *DB) ListAbandoned(ctx context.Context, tenantID string) ([]models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
              WHERE tenant_id = ? AND status = 'abandoned'
              ORDER BY enqueued_at DESC`
	rows, err := db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list abandoned sync items: %w", err)
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// Tenants returns every tenant with unresolved queue items.
func (db *DB) Tenants(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT tenant_id FROM sync_queue WHERE status IN ('pending', 'in_progress') ORDER BY tenant_id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// CountByStatus returns queue depth per status for one tenant.
func (db *DB) CountByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM sync_queue WHERE tenant_id = ? GROUP BY status`
	rows, err := db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync items: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectQueueItems(rows *sql.Rows) ([]models.QueueItem, error) {
	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanQueueItem(scan func(dest ...interface{}) error) (*models.QueueItem, error) {
	var item models.QueueItem
	err := scan(
		&item.QueueID, &item.EntityType, &item.EntityID, &item.Operation, &item.Payload,
		&item.ActorUserID, &item.TenantID, &item.EnqueuedAt, &item.RetryCount, &item.MaxRetries,
		&item.Status, &item.LastError, &item.ProcessedAt, &item.NextRetryAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync item: %w", err)
	}
	return &item, nil
}
