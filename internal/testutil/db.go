package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'hiker',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE guide_profiles (
		profile_id TEXT PRIMARY KEY,
		stripe_account_id TEXT UNIQUE,
		kyc_status TEXT NOT NULL DEFAULT 'pending',
		bank_last4 TEXT,
		requirements TEXT NOT NULL DEFAULT '{}',
		account_synced_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE tours (
		id TEXT PRIMARY KEY,
		guide_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE bookings (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		tour_id TEXT NOT NULL,
		hiker_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		total_price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		deposit_amount INTEGER,
		final_payment_amount INTEGER,
		final_payment_status TEXT,
		final_payment_due_date DATETIME,
		payment_intent_id TEXT,
		final_payment_intent_id TEXT,
		refund_id TEXT,
		refund_status TEXT NOT NULL DEFAULT 'not_applicable',
		refund_amount INTEGER,
		refund_reason TEXT,
		refunded_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE user_sessions (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL DEFAULT 'stripe',
		provider_event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		api_version TEXT NOT NULL DEFAULT '',
		livemode BOOLEAN NOT NULL DEFAULT FALSE,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE TABLE payment_event_queue (
		id INTEGER PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		api_version TEXT NOT NULL DEFAULT '',
		livemode BOOLEAN NOT NULL DEFAULT FALSE,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE transfers (
		id INTEGER PRIMARY KEY,
		provider_transfer_id TEXT NOT NULL UNIQUE,
		booking_id TEXT,
		guide_id TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		destination TEXT NOT NULL DEFAULT '',
		source_transaction TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_retry_at DATETIME,
		failure_event_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		transferred_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payouts (
		id INTEGER PRIMARY KEY,
		provider_payout_id TEXT NOT NULL UNIQUE,
		guide_id TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		arrival_date DATETIME,
		status TEXT NOT NULL DEFAULT 'pending',
		method TEXT NOT NULL DEFAULT 'standard',
		failure_code TEXT,
		failure_message TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
}

// NewDB opens an isolated in-memory SQLite database with the reconciliation schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Count runs a COUNT query and returns its result.
func Count(t *testing.T, db *gorm.DB, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
