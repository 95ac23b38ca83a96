package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/models"
)

func testRecord(entityType, tenantID, id string) *models.Record {
	return &models.Record{
		ID:           id,
		EntityType:   entityType,
		TenantID:     tenantID,
		Fields:       json.RawMessage(`{"name":"Widget","selling_price":9.99}`),
		LastModified: time.Now(),
	}
}

func TestPutRecordInsertOrReplace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := testRecord(models.EntityProduct, "tenant-a", "p-1")
	require.NoError(t, db.PutRecord(ctx, rec))

	// Replacing by the same key must never create a second version.
	rec.Fields = json.RawMessage(`{"name":"Widget v2","selling_price":12.50}`)
	rec.Synced = true
	require.NoError(t, db.PutRecord(ctx, rec))

	records, err := db.GetRecords(ctx, models.EntityProduct, "tenant-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Synced)
	assert.JSONEq(t, `{"name":"Widget v2","selling_price":12.50}`, string(records[0].Fields))
}

func TestTenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutRecord(ctx, testRecord(models.EntityProduct, "tenantA", "p-1")))

	other, err := db.GetRecords(ctx, models.EntityProduct, "tenantB")
	require.NoError(t, err)
	assert.Empty(t, other)

	rec, err := db.GetRecord(ctx, models.EntityProduct, "tenantB", "p-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEntityTypeNamespacing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// The same id may exist under different entity types without clashing.
	require.NoError(t, db.PutRecord(ctx, testRecord(models.EntityProduct, "tenant-a", "x-1")))
	require.NoError(t, db.PutRecord(ctx, testRecord(models.EntityCustomer, "tenant-a", "x-1")))

	products, err := db.GetRecords(ctx, models.EntityProduct, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, products, 1)

	customers, err := db.GetRecords(ctx, models.EntityCustomer, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestRemoveRecord(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutRecord(ctx, testRecord(models.EntityInvoice, "tenant-a", "inv-1")))
	require.NoError(t, db.RemoveRecord(ctx, models.EntityInvoice, "tenant-a", "inv-1"))

	rec, err := db.GetRecord(ctx, models.EntityInvoice, "tenant-a", "inv-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Removing an absent record is not an error.
	require.NoError(t, db.RemoveRecord(ctx, models.EntityInvoice, "tenant-a", "inv-1"))
}

func TestPutRecordRejectsIncompleteKey(t *testing.T) {
	db := setupTestDB(t)

	err := db.PutRecord(context.Background(), &models.Record{ID: "p-1", EntityType: models.EntityProduct})
	assert.Error(t, err)
}

func TestRecordSyncStateRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg := "remote returned 503"
	rec := testRecord(models.EntityTransaction, "tenant-a", "tx-1")
	rec.SyncAttempts = 2
	rec.LastSyncError = &msg
	rec.PendingDelete = true
	require.NoError(t, db.PutRecord(ctx, rec))

	got, err := db.GetRecord(ctx, models.EntityTransaction, "tenant-a", "tx-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Synced)
	assert.Equal(t, 2, got.SyncAttempts)
	require.NotNil(t, got.LastSyncError)
	assert.Equal(t, msg, *got.LastSyncError)
	assert.True(t, got.PendingDelete)
}
