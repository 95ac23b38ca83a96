package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite store backing both the local record cache and the
// sync queue. Every table is namespaced by tenant_id so cross-tenant access
// is structurally impossible.
type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS entity_records (
            entity_type TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            id TEXT NOT NULL,
            fields TEXT NOT NULL DEFAULT '{}',
            synced INTEGER NOT NULL DEFAULT 0,
            last_modified DATETIME NOT NULL,
            sync_attempts INTEGER NOT NULL DEFAULT 0,
            last_sync_error TEXT,
            pending_delete INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (entity_type, tenant_id, id)
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            queue_id TEXT PRIMARY KEY,
            entity_type TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            operation TEXT NOT NULL,
            payload TEXT NOT NULL,
            actor_user_id TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            enqueued_at DATETIME NOT NULL,
            retry_count INTEGER NOT NULL DEFAULT 0,
            max_retries INTEGER NOT NULL DEFAULT 3,
            status TEXT NOT NULL DEFAULT 'pending',
            last_error TEXT,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_records_tenant ON entity_records(tenant_id, entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_records_synced ON entity_records(tenant_id, synced)`,

		`CREATE INDEX IF NOT EXISTS idx_queue_tenant_status ON sync_queue(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entity ON sync_queue(tenant_id, entity_type, entity_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}
