package models

// SyncResult reports the outcome of one orchestrated mutation.
//
// Success=true with Synced=false means the mutation was accepted and is
// durable locally, but remote replication is still pending (queued). Fatal
// rejections never produce a SyncResult; they are returned as errors.
type SyncResult struct {
	Success bool    `json:"success"`
	Synced  bool    `json:"synced"`
	Data    *Record `json:"data,omitempty"`
	QueueID string  `json:"queue_id,omitempty"`
	Error   string  `json:"error,omitempty"`
}
