package models

import "time"

// QueueItem is a durable retry task. Payload is the JSON snapshot of the
// record at enqueue time and is immutable once enqueued; later local edits
// never mutate an in-flight retry payload.
type QueueItem struct {
	QueueID     string     `json:"queue_id"`
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Operation   string     `json:"operation"`
	Payload     string     `json:"payload"`
	ActorUserID string     `json:"actor_user_id"`
	TenantID    string     `json:"tenant_id"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	Status      string     `json:"status"`
	LastError   *string    `json:"last_error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}
