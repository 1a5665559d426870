package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trailpay/internal/transfer/domain"
	"github.com/smallbiznis/trailpay/pkg/db"
	"gorm.io/gorm"
)

const transferColumns = `id, provider_transfer_id, booking_id, guide_id, amount, currency, destination,
	source_transaction, status, retry_count, next_retry_at, failure_event_id, metadata, transferred_at,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, t *domain.Transfer) (bool, error) {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO transfers (`+transferColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.ProviderTransferID,
		t.BookingID,
		t.GuideID,
		t.Amount,
		t.Currency,
		t.Destination,
		t.SourceTransaction,
		t.Status,
		t.RetryCount,
		t.NextRetryAt,
		t.FailureEventID,
		t.Metadata,
		t.TransferredAt,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repo) FindByProviderID(ctx context.Context, conn *gorm.DB, providerTransferID string) (*domain.Transfer, error) {
	var item domain.Transfer
	err := conn.WithContext(ctx).Raw(
		`SELECT `+transferColumns+`
		 FROM transfers
		 WHERE provider_transfer_id = ?
		 LIMIT 1`,
		providerTransferID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkPaid(ctx context.Context, conn *gorm.DB, providerTransferID string, paidAt time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE transfers
		 SET status = ?, transferred_at = ?, next_retry_at = NULL, updated_at = ?
		 WHERE provider_transfer_id = ? AND status <> ?`,
		domain.StatusPaid, paidAt, paidAt,
		providerTransferID, domain.StatusPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, conn *gorm.DB, providerTransferID, eventID string, nextRetryAt, now time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE transfers
		 SET status = ?, retry_count = retry_count + 1, next_retry_at = ?, failure_event_id = ?, updated_at = ?
		 WHERE provider_transfer_id = ? AND COALESCE(failure_event_id, '') <> ?`,
		domain.StatusFailed, nextRetryAt, eventID, now,
		providerTransferID, eventID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDueAttributionRetries(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]domain.Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Transfer
	err := conn.WithContext(ctx).Raw(
		`SELECT `+transferColumns+`
		 FROM transfers
		 WHERE status = ? AND guide_id IS NULL AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY next_retry_at ASC
		 LIMIT ?`,
		domain.StatusFailed, now, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Attribute(ctx context.Context, conn *gorm.DB, id snowflake.ID, attribution domain.Attribution, now time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE transfers
		 SET booking_id = ?, guide_id = ?, metadata = ?, status = ?, next_retry_at = NULL, updated_at = ?
		 WHERE id = ? AND guide_id IS NULL AND status = ?`,
		attribution.BookingID, attribution.GuideID, attribution.Metadata, domain.StatusPending, now,
		id, domain.StatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ScheduleRetry(ctx context.Context, conn *gorm.DB, id snowflake.ID, nextRetryAt, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE transfers
		 SET retry_count = retry_count + 1, next_retry_at = ?, updated_at = ?
		 WHERE id = ?`,
		nextRetryAt, now, id,
	).Error
}
