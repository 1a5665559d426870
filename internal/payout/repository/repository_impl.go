package repository

import (
	"context"

	"github.com/smallbiznis/trailpay/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, p *domain.Payout) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, provider_payout_id, guide_id, amount, currency, arrival_date, status, method,
			failure_code, failure_message, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_payout_id) DO UPDATE SET
			status = excluded.status,
			arrival_date = excluded.arrival_date,
			failure_code = excluded.failure_code,
			failure_message = excluded.failure_message,
			metadata = excluded.metadata,
			guide_id = COALESCE(payouts.guide_id, excluded.guide_id),
			updated_at = excluded.updated_at
		WHERE excluded.status <> 'pending' OR payouts.status = 'pending'`,
		p.ID,
		p.ProviderPayoutID,
		p.GuideID,
		p.Amount,
		p.Currency,
		p.ArrivalDate,
		p.Status,
		p.Method,
		p.FailureCode,
		p.FailureMessage,
		p.Metadata,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByProviderID(ctx context.Context, db *gorm.DB, providerPayoutID string) (*domain.Payout, error) {
	var item domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider_payout_id, guide_id, amount, currency, arrival_date, status, method,
			failure_code, failure_message, metadata, created_at, updated_at
		 FROM payouts
		 WHERE provider_payout_id = ?
		 LIMIT 1`,
		providerPayoutID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
