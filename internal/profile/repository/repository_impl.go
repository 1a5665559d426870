package repository

import (
	"context"

	"github.com/smallbiznis/trailpay/internal/profile/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, full_name, role
		 FROM profiles
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindGuideByAccount(ctx context.Context, db *gorm.DB, stripeAccountID string) (*domain.GuideAccount, error) {
	var item domain.GuideAccount
	err := db.WithContext(ctx).Raw(
		`SELECT profile_id, stripe_account_id, kyc_status, bank_last4, requirements, account_synced_at
		 FROM guide_profiles
		 WHERE stripe_account_id = ?
		 LIMIT 1`,
		stripeAccountID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ProfileID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ReplaceAccountStatus(ctx context.Context, db *gorm.DB, stripeAccountID string, status domain.AccountStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE guide_profiles
		 SET kyc_status = ?, bank_last4 = ?, requirements = ?, account_synced_at = ?, updated_at = ?
		 WHERE stripe_account_id = ?`,
		status.KYCStatus,
		status.BankLast4,
		status.Requirements,
		status.SyncedAt,
		status.SyncedAt,
		stripeAccountID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
