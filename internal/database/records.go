package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"shopsync/internal/models"
)

const recordColumns = `entity_type, tenant_id, id, fields, synced, last_modified, sync_attempts, last_sync_error, pending_delete`

// PutRecord inserts or replaces the record keyed by (entity_type, tenant_id, id).
func (db *DB) PutRecord(ctx context.Context, record *models.Record) error {
	if record.EntityType == "" || record.TenantID == "" || record.ID == "" {
		return fmt.Errorf("record key is incomplete: type=%q tenant=%q id=%q",
			record.EntityType, record.TenantID, record.ID)
	}

	fields := record.Fields
	if len(fields) == 0 {
		fields = json.RawMessage(`{}`)
	}

	query := `INSERT OR REPLACE INTO entity_records
              (entity_type, tenant_id, id, fields, synced, last_modified, sync_attempts, last_sync_error, pending_delete)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		record.EntityType,
		record.TenantID,
		record.ID,
		string(fields),
		record.Synced,
		record.LastModified,
		record.SyncAttempts,
		record.LastSyncError,
		record.PendingDelete,
	)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// GetRecords returns every record for the (entityType, tenantID) namespace.
// Order is not semantically meaningful.
func (db *DB) GetRecords(ctx context.Context, entityType, tenantID string) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM entity_records WHERE entity_type = ? AND tenant_id = ?`
	rows, err := db.QueryContext(ctx, query, entityType, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// GetRecord returns one record or nil when absent.
func (db *DB) GetRecord(ctx context.Context, entityType, tenantID, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM entity_records WHERE entity_type = ? AND tenant_id = ? AND id = ?`
	row := db.QueryRowContext(ctx, query, entityType, tenantID, id)
	record, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RemoveRecord deletes the record from the local cache.
func (db *DB) RemoveRecord(ctx context.Context, entityType, tenantID, id string) error {
	query := `DELETE FROM entity_records WHERE entity_type = ? AND tenant_id = ? AND id = ?`
	if _, err := db.ExecContext(ctx, query, entityType, tenantID, id); err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	return nil
}

func scanRecord(scan func(dest ...interface{}) error) (*models.Record, error) {
	var r models.Record
	var fields string
	err := scan(&r.EntityType, &r.TenantID, &r.ID, &fields, &r.Synced, &r.LastModified, &r.SyncAttempts, &r.LastSyncError, &r.PendingDelete)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	r.Fields = json.RawMessage(fields)
	return &r, nil
}
