package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/trailpay/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, api_version, livemode,
			processed, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payload, api_version, livemode,
			processed, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.APIVersion,
		event.Livemode,
		event.Processed,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed = ?, processed_at = ?
		 WHERE provider = ? AND provider_event_id = ? AND processed = ?`,
		true,
		processedAt,
		provider,
		providerEventID,
		false,
	).Error
}

func (r *repo) InsertQueueEntry(ctx context.Context, db *gorm.DB, entry *domain.QueueEntry) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_event_queue (
			id, event_id, event_type, payload, status, api_version, livemode,
			attempts, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		entry.ID,
		entry.EventID,
		entry.EventType,
		entry.Payload,
		entry.Status,
		entry.APIVersion,
		entry.Livemode,
		entry.Attempts,
		entry.LastError,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkQueueSucceeded(ctx context.Context, db *gorm.DB, eventID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_event_queue
		 SET status = ?, attempts = attempts + 1, last_error = NULL, updated_at = ?
		 WHERE event_id = ?`,
		domain.QueueStatusSucceeded,
		now,
		eventID,
	).Error
}

func (r *repo) MarkQueueFailed(ctx context.Context, db *gorm.DB, eventID, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_event_queue
		 SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		 WHERE event_id = ? AND status <> ?`,
		domain.QueueStatusFailed,
		lastError,
		now,
		eventID,
		domain.QueueStatusSucceeded,
	).Error
}

func (r *repo) ListReplayable(ctx context.Context, db *gorm.DB, maxAttempts int, updatedBefore time.Time, limit int) ([]domain.QueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.QueueEntry
	err := db.WithContext(ctx).Raw(
		`SELECT q.id, q.event_id, q.event_type, q.payload, q.status, q.api_version, q.livemode,
			q.attempts, q.last_error, q.created_at, q.updated_at
		 FROM payment_event_queue q
		 JOIN payment_events e ON e.provider_event_id = q.event_id
		 WHERE q.status = ? AND q.attempts < ? AND q.updated_at < ? AND e.processed = ?
		 ORDER BY q.updated_at ASC
		 LIMIT ?`,
		domain.QueueStatusFailed,
		maxAttempts,
		updatedBefore,
		false,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountFailed(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_event_queue WHERE status = ?`,
		domain.QueueStatusFailed,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
