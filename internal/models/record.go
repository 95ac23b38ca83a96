package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is the canonical client-side copy of a syncable entity. Exactly one
// record exists per (entity_type, tenant_id, id) in the local store.
type Record struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entity_type"`
	TenantID      string          `json:"tenant_id"`
	Fields        json.RawMessage `json:"fields"`
	Synced        bool            `json:"synced"`
	LastModified  time.Time       `json:"last_modified"`
	SyncAttempts  int             `json:"sync_attempts"`
	LastSyncError *string         `json:"last_sync_error,omitempty"`
	// PendingDelete marks a record whose remote delete is still queued.
	// The local row is removed by the drain worker once the delete lands.
	PendingDelete bool `json:"pending_delete,omitempty"`
}

// NewID returns a client-generated globally unique record id.
func NewID() string {
	return uuid.NewString()
}

// FieldMap decodes the entity-specific fields for validation.
func (r *Record) FieldMap() (map[string]interface{}, error) {
	if len(r.Fields) == 0 {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(r.Fields, &m); err != nil {
		return nil, err
	}
	return m, nil
}
