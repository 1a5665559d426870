package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleAdmin = "admin"
	RoleGuide = "guide"
	RoleHiker = "hiker"
)

const (
	KYCVerified   = "verified"
	KYCPending    = "pending"
	KYCIncomplete = "incomplete"
	KYCFailed     = "failed"
)

type Profile struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (Profile) TableName() string { return "profiles" }

// GuideAccount is the connected-account status cached on guide_profiles.
type GuideAccount struct {
	ProfileID       string         `json:"profile_id"`
	StripeAccountID string         `json:"stripe_account_id"`
	KYCStatus       string         `json:"kyc_status"`
	BankLast4       *string        `json:"bank_last4,omitempty"`
	Requirements    datatypes.JSON `json:"requirements"`
	AccountSyncedAt *time.Time     `json:"account_synced_at,omitempty"`
}

// AccountStatus is a full replacement for a guide's connected-account columns.
type AccountStatus struct {
	KYCStatus    string
	BankLast4    *string
	Requirements datatypes.JSON
	SyncedAt     time.Time
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Profile, error)
	FindGuideByAccount(ctx context.Context, db *gorm.DB, stripeAccountID string) (*GuideAccount, error)
	ReplaceAccountStatus(ctx context.Context, db *gorm.DB, stripeAccountID string, status AccountStatus) (bool, error)
}
