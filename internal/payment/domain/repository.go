package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	// InsertEvent reports false when the event id is already logged.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error

	InsertQueueEntry(ctx context.Context, db *gorm.DB, entry *QueueEntry) (bool, error)
	MarkQueueSucceeded(ctx context.Context, db *gorm.DB, eventID string, now time.Time) error
	MarkQueueFailed(ctx context.Context, db *gorm.DB, eventID, lastError string, now time.Time) error
	ListReplayable(ctx context.Context, db *gorm.DB, maxAttempts int, updatedBefore time.Time, limit int) ([]QueueEntry, error)
	CountFailed(ctx context.Context, db *gorm.DB) (int64, error)
}
